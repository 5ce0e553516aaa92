package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/creditlens/internal/pipeline"
	vk "github.com/maraichr/creditlens/internal/store/valkey"
	"github.com/maraichr/creditlens/pkg/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAnalyzer struct {
	got    pipeline.AnalyzeRequest
	err    error
	failed bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req pipeline.AnalyzeRequest) (*models.RunState, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	s := models.NewRunState(req.SubjectID, nil)
	s.Status = models.StatusExhausted
	s.Risk = &models.RiskResult{OverallScore: 6.1, Recommendation: models.RecommendReview, Confidence: 0.4}
	if f.failed {
		s.Status = models.StatusFailed
		s.Risk = nil
		s.Error = "stage analyze_docs failed: embedder down"
	}
	return s, nil
}

type fakeResults map[uuid.UUID]*models.RunState

func (f fakeResults) Get(_ context.Context, id uuid.UUID) (*models.RunState, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, vk.ErrResultNotFound
}

// --- analyze_credit ---

func TestAnalyzeCredit_ForwardsRequest(t *testing.T) {
	an := &fakeAnalyzer{}
	h := NewAnalyzeCreditHandler(an, discard)
	amount := 250000.0

	out, err := h.Handle(context.Background(), AnalyzeCreditParams{
		CNPJ:    "11.222.333/0001-81",
		Amount:  &amount,
		Purpose: "working capital",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if an.got.SubjectID != "11.222.333/0001-81" || an.got.RequestedAmount == nil || *an.got.RequestedAmount != amount {
		t.Errorf("request not forwarded: %+v", an.got)
	}
	if !strings.Contains(out, "# Credit analysis 11.222.333/0001-81") {
		t.Errorf("default verbosity should render the full report:\n%s", out)
	}
	if !strings.Contains(out, "unvalidated") {
		t.Error("exhausted run should be flagged as unvalidated")
	}
}

func TestAnalyzeCredit_SummarySuggestsReport(t *testing.T) {
	h := NewAnalyzeCreditHandler(&fakeAnalyzer{}, discard)
	out, err := h.Handle(context.Background(), AnalyzeCreditParams{CNPJ: "11222333000181", Verbosity: "summary"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "# Credit analysis") {
		t.Error("summary should not render the full report")
	}
	if !strings.Contains(out, "`get_report`") {
		t.Errorf("summary should point at get_report:\n%s", out)
	}
}

func TestAnalyzeCredit_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: check digits", pipeline.ErrInvalidSubject), "14-digit CNPJ"},
		{pipeline.ErrInvalidAmount, "amount must be positive"},
		{fmt.Errorf("%w: report.pdf", pipeline.ErrUnsupportedDocument), ".txt, .md or .csv"},
		{fmt.Errorf("%w: %w", pipeline.ErrDocumentLoad, errors.New("timeout")), "could not load documents"},
		{errors.New("boom"), "analysis failed"},
	}
	for _, tt := range tests {
		h := NewAnalyzeCreditHandler(&fakeAnalyzer{err: tt.err}, discard)
		_, err := h.Handle(context.Background(), AnalyzeCreditParams{CNPJ: "1"})
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("error %v: expected message containing %q, got %v", tt.err, tt.want, err)
		}
	}
}

func TestAnalyzeCredit_FailedRunIsError(t *testing.T) {
	h := NewAnalyzeCreditHandler(&fakeAnalyzer{failed: true}, discard)
	out, err := h.Handle(context.Background(), AnalyzeCreditParams{CNPJ: "11222333000181"})
	if err == nil {
		t.Fatalf("expected error, got result %q", out)
	}
	for _, want := range []string{"analysis failed", "request_id", "embedder down", "get_report"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}

	res, _, _ := WrapHandler[AnalyzeCreditParams](h)(context.Background(), nil, &AnalyzeCreditParams{CNPJ: "11222333000181"})
	if !res.IsError {
		t.Error("expected IsError result for a failed run")
	}
}

// --- get_report ---

func TestGetReport(t *testing.T) {
	s := models.NewRunState("11222333000181", nil)
	s.Status = models.StatusApproved
	h := NewGetReportHandler(fakeResults{s.RequestID: s}, discard)

	out, err := h.Handle(context.Background(), GetReportParams{RequestID: s.RequestID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, s.RequestID.String()) {
		t.Error("report should include the request id")
	}

	if _, err := h.Handle(context.Background(), GetReportParams{RequestID: uuid.NewString()}); err == nil ||
		!strings.Contains(err.Error(), "no longer retained") {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := h.Handle(context.Background(), GetReportParams{RequestID: "nope"}); err == nil {
		t.Error("expected invalid id error")
	}
}

func TestGetReport_Disabled(t *testing.T) {
	h := NewGetReportHandler(nil, discard)
	_, err := h.Handle(context.Background(), GetReportParams{RequestID: uuid.NewString()})
	if err == nil || !strings.Contains(err.Error(), "Valkey") {
		t.Errorf("expected disabled error, got %v", err)
	}
}

// --- WrapHandler ---

type echoHandler struct{ err error }

func (e echoHandler) Handle(_ context.Context, p GetReportParams) (string, error) {
	return "id=" + p.RequestID, e.err
}

func TestWrapHandler(t *testing.T) {
	fn := WrapHandler[GetReportParams](echoHandler{})
	res, _, err := fn(context.Background(), nil, nil)
	if err != nil || res.IsError {
		t.Fatalf("nil params should use zero value, got %v %+v", err, res)
	}
	if text := res.Content[0].(*sdkmcp.TextContent).Text; text != "id=" {
		t.Errorf("unexpected text %q", text)
	}

	fn = WrapHandler[GetReportParams](echoHandler{err: errors.New("bad")})
	res, _, err = fn(context.Background(), nil, &GetReportParams{})
	if err != nil {
		t.Fatalf("tool errors must not be protocol errors: %v", err)
	}
	if !res.IsError || res.Content[0].(*sdkmcp.TextContent).Text != "bad" {
		t.Errorf("expected error result, got %+v", res)
	}
}
