package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/pkg/models"
)

func offlineConfig(registryURL string) *config.Config {
	return &config.Config{
		LLM:      config.LLMConfig{Provider: "none", Language: "en"},
		Registry: config.RegistryConfig{PrimaryURL: registryURL, FallbackURL: registryURL},
		Index:    config.IndexConfig{ChunkSize: 1000, ChunkOverlap: 200, TopK: 3, MemoryEntries: 4},
		Pipeline: config.PipelineConfig{MaxRetries: 2},
	}
}

func TestBuildOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(context.Background(), offlineConfig(srv.URL), logger, Options{Registerer: reg, Offline: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Valkey != nil || a.Results != nil {
		t.Error("offline build must not connect to valkey")
	}
	if len(a.Probes) != 0 {
		t.Errorf("expected no readiness probes, got %d", len(a.Probes))
	}

	s, err := a.Service.Analyze(context.Background(), pipeline.AnalyzeRequest{SubjectID: "11.222.333/0001-81"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !s.Status.Terminal() || s.Status == models.StatusFailed {
		t.Fatalf("expected a completed run, got %s (%s)", s.Status, s.Error)
	}
	if s.Registry != nil {
		t.Error("registry should be absent when both providers return 404")
	}
	if s.Risk == nil || s.Risk.Recommendation == models.RecommendApprove {
		t.Errorf("a run without evidence must not be approved: %+v", s.Risk)
	}

	n, err := testutil.GatherAndCount(reg, "creditlens_runs_total")
	if err != nil || n != 1 {
		t.Errorf("expected one run series, got %d (%v)", n, err)
	}
}

func TestBuildBadCalibration(t *testing.T) {
	cfg := offlineConfig("http://127.0.0.1:1")
	cfg.Pipeline.CalibrationFile = filepath.Join(t.TempDir(), "missing.yaml")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Build(context.Background(), cfg, logger, Options{Offline: true}); err == nil {
		t.Fatal("expected error for missing calibration file")
	}
}
