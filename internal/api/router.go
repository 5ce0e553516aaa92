package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandler "github.com/maraichr/creditlens/internal/api/handler"
	apimw "github.com/maraichr/creditlens/internal/api/middleware"
)

// RouterDeps holds the router's collaborators. Queue and Results are optional.
type RouterDeps struct {
	Analyzer apihandler.Analyzer
	Queue    apihandler.Enqueuer
	Results  apihandler.ResultReader
	Probes   map[string]apihandler.Probe
	Gatherer prometheus.Gatherer
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(deps.Probes)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		analyses := apihandler.NewAnalysisHandler(logger, deps.Analyzer, deps.Queue, deps.Results)
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", analyses.Create)
			r.Post("/async", analyses.CreateAsync)
			r.Get("/{id}", analyses.Get)
		})
	})

	return r
}
