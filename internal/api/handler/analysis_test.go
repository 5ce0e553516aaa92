package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/pipeline"
	vk "github.com/maraichr/creditlens/internal/store/valkey"
	"github.com/maraichr/creditlens/pkg/apierr"
	"github.com/maraichr/creditlens/pkg/models"
)

type fakeAnalyzer struct {
	err    error
	failAt string
	got    pipeline.AnalyzeRequest
	runs   int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req pipeline.AnalyzeRequest) (*models.RunState, error) {
	f.runs++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	s := models.NewRunState(req.SubjectID, nil)
	s.RequestID = req.RequestID
	s.Status = models.StatusApproved
	if f.failAt != "" {
		s.Status = models.StatusFailed
		s.Error = "stage " + f.failAt + " failed: registry timeout"
		s.Tracef(f.failAt, "stage failed", "stage="+f.failAt)
	}
	return s, nil
}

type fakeQueue struct {
	err      error
	enqueued []pipeline.AnalyzeRequest
}

func (f *fakeQueue) Enqueue(_ context.Context, req pipeline.AnalyzeRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, req)
	return "1-0", nil
}

type fakeResults map[uuid.UUID]*models.RunState

func (f fakeResults) Get(_ context.Context, id uuid.UUID) (*models.RunState, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, vk.ErrResultNotFound
}

func newTestRouter(h *AnalysisHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/analyses", h.Create)
	r.Post("/api/v1/analyses/async", h.CreateAsync)
	r.Get("/api/v1/analyses/{id}", h.Get)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apierr.Code {
	t.Helper()
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.Error.Code
}

func TestAnalysisHandler_Create(t *testing.T) {
	an := &fakeAnalyzer{}
	r := newTestRouter(NewAnalysisHandler(nil, an, nil, nil))

	w := do(t, r, http.MethodPost, "/api/v1/analyses",
		`{"cnpj":"11.222.333/0001-81","documents":[{"filename":"bp.txt","text":"Ativo total 10"}],"purpose":"expansion"}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var s models.RunState
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.RequestID == uuid.Nil || s.RequestID != an.got.RequestID {
		t.Errorf("expected server-assigned request id, got %s", s.RequestID)
	}
	if len(an.got.Documents) != 1 || an.got.Purpose != "expansion" {
		t.Errorf("request not forwarded: %+v", an.got)
	}
}

func TestAnalysisHandler_Create_FailedRun(t *testing.T) {
	an := &fakeAnalyzer{failAt: "gather"}
	r := newTestRouter(NewAnalysisHandler(nil, an, nil, nil))

	w := do(t, r, http.MethodPost, "/api/v1/analyses", `{"cnpj":"11.222.333/0001-81"}`, nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != apierr.CodeAnalysisFailed {
		t.Errorf("expected %s, got %s", apierr.CodeAnalysisFailed, resp.Error.Code)
	}
	if resp.Error.RequestID == nil || *resp.Error.RequestID != an.got.RequestID {
		t.Errorf("expected request id %s, got %v", an.got.RequestID, resp.Error.RequestID)
	}
	if resp.Error.Stage != "gather" {
		t.Errorf("expected stage gather, got %q", resp.Error.Stage)
	}
	if resp.Error.ResultURL != "/api/v1/analyses/"+an.got.RequestID.String() {
		t.Errorf("unexpected result url %q", resp.Error.ResultURL)
	}
	if strings.Contains(resp.Error.Message, "registry timeout") {
		t.Errorf("cause leaked to client: %q", resp.Error.Message)
	}
}

func TestAnalysisHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   apierr.Code
	}{
		{"invalid body", "not json", nil, http.StatusBadRequest, apierr.CodeInvalidRequestBody},
		{"invalid subject", `{"cnpj":"1"}`, fmt.Errorf("%w: bad digits", pipeline.ErrInvalidSubject), http.StatusBadRequest, apierr.CodeInvalidSubjectID},
		{"unsupported document", `{"cnpj":"1"}`, fmt.Errorf("%w: pdf", documents.ErrUnsupported), http.StatusBadRequest, apierr.CodeUnsupportedDocument},
		{"no store", `{"cnpj":"1"}`, fmt.Errorf("%w: %w", pipeline.ErrDocumentLoad, documents.ErrNoStore), http.StatusBadRequest, apierr.CodeUnsupportedDocument},
		{"load failure", `{"cnpj":"1"}`, fmt.Errorf("%w: %w", pipeline.ErrDocumentLoad, errors.New("s3 down")), http.StatusBadGateway, apierr.CodeDocumentLoadFailed},
		{"amount", `{"cnpj":"1"}`, pipeline.ErrInvalidAmount, http.StatusBadRequest, apierr.CodeInvalidRequestAmount},
		{"other", `{"cnpj":"1"}`, errors.New("boom"), http.StatusInternalServerError, apierr.CodeAnalysisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{err: tt.err}, nil, nil))
			w := do(t, r, http.MethodPost, "/api/v1/analyses", tt.body, nil)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestAnalysisHandler_CreateAsync(t *testing.T) {
	q := &fakeQueue{}
	an := &fakeAnalyzer{}
	r := newTestRouter(NewAnalysisHandler(nil, an, q, fakeResults{}))

	w := do(t, r, http.MethodPost, "/api/v1/analyses/async", `{"cnpj":"11222333000181"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp AcceptedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].RequestID != resp.RequestID {
		t.Errorf("expected enqueued request with id %s, got %+v", resp.RequestID, q.enqueued)
	}
	if resp.ResultURL != "/api/v1/analyses/"+resp.RequestID.String() {
		t.Errorf("unexpected result url %s", resp.ResultURL)
	}
	if an.runs != 0 {
		t.Error("async submission must not run the pipeline inline")
	}
}

func TestAnalysisHandler_CreateAsync_ValidatesBeforeEnqueue(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{}, q, fakeResults{}))

	w := do(t, r, http.MethodPost, "/api/v1/analyses/async", `{"cnpj":"11222333000182"}`, nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != apierr.CodeInvalidSubjectID {
		t.Errorf("expected invalid subject, got %d", w.Code)
	}
	if len(q.enqueued) != 0 {
		t.Error("invalid requests must not be enqueued")
	}
}

func TestAnalysisHandler_CreateAsync_Unavailable(t *testing.T) {
	r := newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{}, nil, nil))
	w := do(t, r, http.MethodPost, "/api/v1/analyses/async", `{"cnpj":"11222333000181"}`, nil)
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != apierr.CodeQueueUnavailable {
		t.Errorf("expected 503 queue unavailable, got %d", w.Code)
	}

	r = newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{}, &fakeQueue{err: errors.New("xadd")}, fakeResults{}))
	w = do(t, r, http.MethodPost, "/api/v1/analyses/async", `{"cnpj":"11222333000181"}`, nil)
	if w.Code != http.StatusInternalServerError || errorCode(t, w) != apierr.CodeEnqueueFailed {
		t.Errorf("expected 500 enqueue failed, got %d", w.Code)
	}
}

func TestAnalysisHandler_Get(t *testing.T) {
	s := models.NewRunState("11222333000181", nil)
	s.Status = models.StatusApproved
	r := newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{}, &fakeQueue{}, fakeResults{s.RequestID: s}))
	path := "/api/v1/analyses/" + s.RequestID.String()

	w := do(t, r, http.MethodGet, path, "", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected JSON 200, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = do(t, r, http.MethodGet, path, "", map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected HTML 200, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "11.222.333/0001-81") {
		t.Error("expected formatted CNPJ in report")
	}

	w = do(t, r, http.MethodGet, "/api/v1/analyses/"+uuid.NewString(), "", nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != apierr.CodeAnalysisNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/api/v1/analyses/not-a-uuid", "", nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != apierr.CodeInvalidID {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalysisHandler_Get_ResultsDisabled(t *testing.T) {
	r := newTestRouter(NewAnalysisHandler(nil, &fakeAnalyzer{}, nil, nil))
	w := do(t, r, http.MethodGet, "/api/v1/analyses/"+uuid.NewString(), "", nil)
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != apierr.CodeResultsDisabled {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	ok := NewHealthHandler(map[string]Probe{"valkey": func(context.Context) error { return nil }})
	w := httptest.NewRecorder()
	ok.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	down := NewHealthHandler(map[string]Probe{"postgres": func(context.Context) error { return errors.New("refused") }})
	w = httptest.NewRecorder()
	down.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != apierr.CodeDependencyNotReady {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
