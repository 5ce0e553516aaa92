package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/internal/report"
	vk "github.com/maraichr/creditlens/internal/store/valkey"
	"github.com/maraichr/creditlens/pkg/apierr"
	"github.com/maraichr/creditlens/pkg/models"
)

// maxRequestBytes bounds a request body: inline documents plus envelope.
const maxRequestBytes = 4 * documents.MaxDocumentBytes

type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.AnalyzeRequest) (*models.RunState, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, req pipeline.AnalyzeRequest) (string, error)
}

type ResultReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.RunState, error)
}

type AnalysisHandler struct {
	logger   *slog.Logger
	analyzer Analyzer
	queue    Enqueuer
	results  ResultReader
}

// NewAnalysisHandler creates the handler; queue and results may be nil when
// Valkey is not configured.
func NewAnalysisHandler(logger *slog.Logger, analyzer Analyzer, queue Enqueuer, results ResultReader) *AnalysisHandler {
	return &AnalysisHandler{logger: logger, analyzer: analyzer, queue: queue, results: results}
}

// AcceptedResponse is returned for asynchronous submissions.
type AcceptedResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Status    string    `json:"status"`
	ResultURL string    `json:"result_url"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (pipeline.AnalyzeRequest, *apierr.Error) {
	var req pipeline.AnalyzeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, apierr.InvalidRequestBody()
	}
	return req, nil
}

// Create runs an analysis synchronously and returns the final state.
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeRequest(w, r)
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}
	req.RequestID = uuid.New()

	state, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		e := analysisError(err)
		if errors.Is(err, pipeline.ErrDocumentLoad) {
			e = e.ForRun(req.RequestID, "load")
		}
		writeAPIError(w, h.logger, e)
		return
	}
	if state.Status == models.StatusFailed {
		writeAPIError(w, h.logger, runFailed(state))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// runFailed maps a run that ended FAILED to a 500 naming the run, so the
// caller can fetch its trace.
func runFailed(s *models.RunState) *apierr.Error {
	stage := ""
	if n := len(s.Trace); n > 0 {
		stage = s.Trace[n-1].Stage
	}
	return apierr.AnalysisFailed(errors.New(s.Error)).ForRun(s.RequestID, stage)
}

// CreateAsync validates and enqueues an analysis for the worker.
func (h *AnalysisHandler) CreateAsync(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil || h.results == nil {
		writeAPIError(w, h.logger, apierr.QueueUnavailable())
		return
	}
	req, apiErr := decodeRequest(w, r)
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}
	if _, err := pipeline.CheckRequest(req); err != nil {
		writeAPIError(w, h.logger, analysisError(err))
		return
	}
	req.RequestID = uuid.New()

	if _, err := h.queue.Enqueue(r.Context(), req); err != nil {
		writeAPIError(w, h.logger, apierr.EnqueueFailed(err))
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		RequestID: req.RequestID,
		Status:    "QUEUED",
		ResultURL: "/api/v1/analyses/" + req.RequestID.String(),
	})
}

// Get returns a retained result as JSON, or as an HTML report when the client
// prefers text/html.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeAPIError(w, h.logger, apierr.ResultsDisabled())
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("analysis"))
		return
	}

	state, err := h.results.Get(r.Context(), id)
	if errors.Is(err, vk.ErrResultNotFound) {
		writeAPIError(w, h.logger, apierr.AnalysisNotFound())
		return
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}

	if wantsHTML(r) {
		page, err := report.HTML(state)
		if err != nil {
			writeAPIError(w, h.logger, apierr.InternalError(err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(page)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.HasPrefix(accept, "application/json")
}

func analysisError(err error) *apierr.Error {
	switch {
	case errors.Is(err, pipeline.ErrInvalidSubject):
		return apierr.InvalidSubjectID(err)
	case errors.Is(err, pipeline.ErrInvalidAmount):
		return apierr.InvalidRequestedAmount()
	case errors.Is(err, pipeline.ErrUnsupportedDocument), errors.Is(err, documents.ErrNoStore):
		return apierr.UnsupportedDocument(err)
	case errors.Is(err, pipeline.ErrDocumentLoad):
		return apierr.DocumentLoadFailed(err)
	default:
		return apierr.AnalysisFailed(err)
	}
}
