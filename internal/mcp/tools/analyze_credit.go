package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/mcp"
	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/pkg/models"
)

// Analyzer runs one analysis to completion.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.AnalyzeRequest) (*models.RunState, error)
}

// AnalyzeCreditParams are the parameters for the analyze_credit tool.
type AnalyzeCreditParams struct {
	CNPJ              string             `json:"cnpj" jsonschema:"company CNPJ, formatted or digits only"`
	Documents         []documents.Source `json:"documents,omitempty" jsonschema:"financial documents as inline text or object keys"`
	Amount            *float64           `json:"amount,omitempty" jsonschema:"requested credit amount in BRL"`
	Purpose           string             `json:"purpose,omitempty" jsonschema:"intended use of the credit"`
	Verbosity         string             `json:"verbosity,omitempty" jsonschema:"summary, standard or full (default full)"`
	MaxResponseTokens int                `json:"max_response_tokens,omitempty"`
}

// AnalyzeCreditHandler implements the analyze_credit MCP tool.
type AnalyzeCreditHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAnalyzeCreditHandler creates a new handler.
func NewAnalyzeCreditHandler(analyzer Analyzer, logger *slog.Logger) *AnalyzeCreditHandler {
	return &AnalyzeCreditHandler{analyzer: analyzer, logger: logger}
}

// Handle runs the pipeline synchronously and renders the outcome.
func (h *AnalyzeCreditHandler) Handle(ctx context.Context, params AnalyzeCreditParams) (string, error) {
	state, err := h.analyzer.Analyze(ctx, pipeline.AnalyzeRequest{
		SubjectID:       params.CNPJ,
		Documents:       params.Documents,
		RequestedAmount: params.Amount,
		Purpose:         params.Purpose,
	})
	if err != nil {
		return "", WrapAnalysisError(err)
	}
	if state.Status == models.StatusFailed {
		h.logger.Error("mcp analysis failed",
			slog.String("request_id", state.RequestID.String()),
			slog.String("error", state.Error))
		return "", fmt.Errorf("analysis failed (request_id %s): %s; call get_report for the trace",
			state.RequestID, state.Error)
	}
	h.logger.Info("mcp analysis completed",
		slog.String("request_id", state.RequestID.String()),
		slog.String("status", string(state.Status)))

	verbosity := mcp.VerbosityFull
	if params.Verbosity != "" {
		verbosity = mcp.ParseVerbosity(params.Verbosity)
	}
	rb := mcp.NewResponseBuilder(params.MaxResponseTokens)
	rb.AddAnalysisCard(state, verbosity)

	var steps []mcp.NextStep
	if verbosity != mcp.VerbosityFull || rb.IsTruncated() {
		steps = append(steps, mcp.NextStep{
			Tool:        "get_report",
			Description: "Fetch the full report with request_id " + state.RequestID.String(),
		})
	}
	return rb.FinalizeWithHints(steps), nil
}
