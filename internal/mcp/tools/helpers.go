package tools

import (
	"context"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/creditlens/internal/pipeline"
)

// ToolHandler is the interface that all tool handlers implement.
type ToolHandler[P any] interface {
	Handle(ctx context.Context, params P) (string, error)
}

// WrapHandler adapts a ToolHandler into the SDK's AddTool callback.
// It handles nil params by using a zero value and maps errors to CallToolResult.
func WrapHandler[P any](h ToolHandler[P]) func(context.Context, *sdkmcp.CallToolRequest, *P) (*sdkmcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, params *P) (*sdkmcp.CallToolResult, any, error) {
		if params == nil {
			params = new(P)
		}
		result, err := h.Handle(ctx, *params)
		if err != nil {
			return &sdkmcp.CallToolResult{
				IsError: true,
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: result}},
		}, nil, nil
	}
}

// WrapAnalysisError translates pipeline errors into messages a model can act on.
func WrapAnalysisError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInvalidSubject):
		return fmt.Errorf("cnpj must be a valid 14-digit CNPJ: %w", err)
	case errors.Is(err, pipeline.ErrInvalidAmount):
		return errors.New("amount must be positive")
	case errors.Is(err, pipeline.ErrUnsupportedDocument):
		return fmt.Errorf("documents must be inline text or .txt, .md or .csv object keys: %w", err)
	case errors.Is(err, pipeline.ErrDocumentLoad):
		return fmt.Errorf("could not load documents: %w", err)
	default:
		return fmt.Errorf("analysis failed: %w", err)
	}
}
