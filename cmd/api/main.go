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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maraichr/creditlens/internal/api"
	apihandler "github.com/maraichr/creditlens/internal/api/handler"
	"github.com/maraichr/creditlens/internal/app"
	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/pipeline"
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, logger, app.Options{Registerer: reg})
	if err != nil {
		logger.Error("failed to build service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	deps := api.RouterDeps{
		Analyzer: a.Service,
		Probes:   map[string]apihandler.Probe{},
		Gatherer: reg,
	}
	for name, probe := range a.Probes {
		deps.Probes[name] = probe
	}
	// Interface fields stay nil without Valkey so the handlers can tell.
	if a.Valkey != nil {
		deps.Queue = pipeline.NewProducer(a.Valkey)
		deps.Results = a.Results
	}

	router := api.NewRouter(logger, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}
