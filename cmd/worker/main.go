package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
	a, err := app.Build(ctx, cfg, logger, app.Options{Registerer: reg})
	if err != nil {
		logger.Error("failed to build service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if a.Valkey == nil {
		logger.Error("worker requires valkey")
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	workers := envInt("WORKER_CONCURRENCY", 2)

	// Metrics endpoint (optional)
	var metricsSrv *http.Server
	if addr := os.Getenv("WORKER_METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	handle := func(ctx context.Context, req pipeline.AnalyzeRequest) error {
		state, err := a.Service.Analyze(ctx, req)
		if err != nil {
			if pipeline.IsInputError(err) {
				logger.Warn("analysis rejected",
					slog.String("request_id", req.RequestID.String()),
					slog.String("error", err.Error()))
			}
			return err
		}
		logger.Info("analysis finished",
			slog.String("request_id", state.RequestID.String()),
			slog.String("status", string(state.Status)))
		return nil
	}

	var wg sync.WaitGroup
	for i := range workers {
		consumer := pipeline.NewConsumer(a.Valkey, hostname+"-"+strconv.Itoa(i+1), logger)
		if i == 0 {
			if err := consumer.EnsureGroup(ctx); err != nil {
				logger.Error("failed to ensure consumer group", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting worker, consuming from stream",
				slog.String("stream", pipeline.StreamName), slog.Int("worker", i+1))
			if err := consumer.Consume(ctx, handle); err != nil {
				if ctx.Err() == nil {
					logger.Error("consumer error", slog.String("error", err.Error()))
				}
			}
		}()
	}

	wg.Wait()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("worker stopped")
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
