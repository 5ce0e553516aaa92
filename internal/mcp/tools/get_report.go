package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maraichr/creditlens/internal/mcp"
	vk "github.com/maraichr/creditlens/internal/store/valkey"
	"github.com/maraichr/creditlens/pkg/models"
)

// ResultReader returns a retained run by request id.
type ResultReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.RunState, error)
}

// GetReportParams are the parameters for the get_report tool.
type GetReportParams struct {
	RequestID         string `json:"request_id" jsonschema:"request id returned by analyze_credit or the async API"`
	Verbosity         string `json:"verbosity,omitempty" jsonschema:"summary, standard or full (default full)"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
}

// GetReportHandler implements the get_report MCP tool.
type GetReportHandler struct {
	results ResultReader
	logger  *slog.Logger
}

// NewGetReportHandler creates a new handler; results may be nil when Valkey
// is not configured.
func NewGetReportHandler(results ResultReader, logger *slog.Logger) *GetReportHandler {
	return &GetReportHandler{results: results, logger: logger}
}

func (h *GetReportHandler) Handle(ctx context.Context, params GetReportParams) (string, error) {
	if h.results == nil {
		return "", errors.New("report retrieval requires Valkey")
	}
	id, err := uuid.Parse(params.RequestID)
	if err != nil {
		return "", fmt.Errorf("invalid request_id %q", params.RequestID)
	}

	state, err := h.results.Get(ctx, id)
	if errors.Is(err, vk.ErrResultNotFound) {
		return "", fmt.Errorf("analysis %s not found or no longer retained", id)
	}
	if err != nil {
		return "", fmt.Errorf("get result: %w", err)
	}

	verbosity := mcp.VerbosityFull
	if params.Verbosity != "" {
		verbosity = mcp.ParseVerbosity(params.Verbosity)
	}
	rb := mcp.NewResponseBuilder(params.MaxResponseTokens)
	rb.AddAnalysisCard(state, verbosity)
	return rb.Finalize(), nil
}
