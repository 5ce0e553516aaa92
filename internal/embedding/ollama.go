package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/errgroup"
)

const ollamaConcurrency = 4

// OllamaEmbedder embeds one text per request against a local Ollama server.
type OllamaEmbedder struct {
	cli   *api.Client
	model string
}

// NewOllamaEmbedder reads OLLAMA_HOST from the environment.
func NewOllamaEmbedder(model string) (*OllamaEmbedder, error) {
	cli, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{cli: cli, model: model}, nil
}

func (c *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ollamaConcurrency)
	for i, text := range texts {
		eg.Go(func() error {
			resp, err := c.cli.Embeddings(egCtx, &api.EmbeddingRequest{
				Model:     c.model,
				Prompt:    PrepareInput(c.model, inputType, text),
				KeepAlive: &api.Duration{Duration: 60 * time.Minute},
			})
			if err != nil {
				return fmt.Errorf("ollama embed %d: %w", i, err)
			}
			vec := make([]float32, len(resp.Embedding))
			for j, v := range resp.Embedding {
				vec[j] = float32(v)
			}
			out[i] = vec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OllamaEmbedder) ModelID() string { return c.model }
