package llm

import (
	"context"
	"fmt"

	"github.com/maraichr/creditlens/internal/config"
)

// NewCompleter builds the backend named by cfg.LLM.Provider. It returns nil, nil
// when no language model is configured.
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, error) {
	opts := []Option{WithTemperature(cfg.LLM.Temperature), WithMaxTokens(cfg.LLM.MaxTokens)}

	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "openai", "openrouter":
		if cfg.LLM.APIKey == "" {
			return nil, nil
		}
		return NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, opts...), nil
	case "bedrock":
		if cfg.Bedrock.Region == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=bedrock requires BEDROCK_REGION")
		}
		return NewBedrockClient(ctx, cfg.Bedrock.Region, cfg.Bedrock.ChatModel, opts...)
	case "ollama":
		return NewOllamaClient(cfg.Ollama.ChatModel, opts...)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLM.Provider)
	}
}
