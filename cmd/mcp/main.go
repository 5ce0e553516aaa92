package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/creditlens/internal/app"
	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/mcp"
	"github.com/maraichr/creditlens/internal/mcp/tools"
)

func main() {
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to build service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	// Wire tool handlers (in cmd to avoid import cycle mcp <-> mcp/tools)
	analyzeCredit := tools.NewAnalyzeCreditHandler(a.Service, logger)
	var results tools.ResultReader
	if a.Results != nil {
		results = a.Results
	}
	getReport := tools.NewGetReportHandler(results, logger)

	server := mcp.NewServer("1.0.0")

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "analyze_credit",
		Description: "Run a credit-risk analysis for a Brazilian company (CNPJ). Gathers registry data and news, extracts indicators from the supplied financial documents, scores the company and validates the result. Returns a markdown report with the recommendation (APPROVE, REVIEW or REJECT).",
	}, tools.WrapHandler[tools.AnalyzeCreditParams](analyzeCredit))

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Fetch the report of a previous analysis by request_id while it is still retained. Requires Valkey.",
	}, tools.WrapHandler[tools.GetReportParams](getReport))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MCP.Port),
		Handler: mcp.NewHandler(server, logger),
	}

	go func() {
		logger.Info("MCP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("MCP HTTP server error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	logger.Info("MCP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("MCP server stopped")
}
