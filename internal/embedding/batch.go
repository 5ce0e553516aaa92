package embedding

import (
	"context"
	"fmt"
)

// EmbedTexts embeds texts and checks that the provider returned one vector
// per input, all of the same dimension.
func EmbedTexts(ctx context.Context, client Embedder, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := client.EmbedBatch(ctx, texts, inputType)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(texts))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedding 0 is empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return vectors, nil
}
