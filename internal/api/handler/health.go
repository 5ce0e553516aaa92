package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/maraichr/creditlens/pkg/apierr"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type HealthHandler struct {
	probes map[string]Probe
}

// NewHealthHandler takes the dependencies /readyz must reach; an empty map is
// always ready.
func NewHealthHandler(probes map[string]Probe) *HealthHandler {
	return &HealthHandler{probes: probes}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for _, name := range names {
		if err := h.probes[name](ctx); err != nil {
			writeAPIError(w, nil, apierr.DependencyNotReady(name, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
