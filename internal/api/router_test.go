package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/pkg/models"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, req pipeline.AnalyzeRequest) (*models.RunState, error) {
	return models.NewRunState(req.SubjectID, nil), nil
}

func TestRouterRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	pipeline.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(logger, RouterDeps{Analyzer: stubAnalyzer{}, Gatherer: reg})

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodPost, "/api/v1/analyses", `{"cnpj":"11222333000181"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/analyses/async", `{"cnpj":"11222333000181"}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/analyses/00000000-0000-0000-0000-000000000000", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "creditlens_validation_retries_total") {
		t.Errorf("expected pipeline metrics to be exposed, got %d", w.Code)
	}
}
