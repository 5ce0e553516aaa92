package embedding

import (
	"context"
	"fmt"

	"github.com/maraichr/creditlens/internal/config"
)

// Input types understood by the providers.
const (
	InputDocument = "search_document"
	InputQuery    = "search_query"
)

// Embedder is the interface for embedding providers.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)
	ModelID() string
}

// NewEmbedder auto-selects provider: OpenRouter (if API key set) > Bedrock (if
// region set) > Ollama (if host set) > nil.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	if cfg.OpenRouter.APIKey != "" {
		client, err := NewOpenRouterClient(cfg.OpenRouter)
		if err != nil {
			return nil, fmt.Errorf("openrouter client: %w", err)
		}
		return client, nil
	}

	if cfg.Bedrock.Region != "" {
		client, err := NewBedrockEmbedder(ctx, cfg.Bedrock)
		if err != nil {
			return nil, fmt.Errorf("bedrock client: %w", err)
		}
		return client, nil
	}

	if cfg.Ollama.Host != "" {
		client, err := NewOllamaEmbedder(cfg.Ollama.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return client, nil
	}

	return nil, nil
}
