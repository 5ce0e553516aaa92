package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maraichr/creditlens/pkg/models"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s stubEmbedder) EmbedBatch(context.Context, []string, string) ([][]float32, error) {
	return s.vectors, s.err
}

func (s stubEmbedder) ModelID() string { return "stub" }

func TestEmbedTexts(t *testing.T) {
	ctx := context.Background()

	got, err := EmbedTexts(ctx, stubEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}, []string{"a", "b"}, InputDocument)
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}

	if _, err := EmbedTexts(ctx, stubEmbedder{vectors: [][]float32{{1, 0}}}, []string{"a", "b"}, InputDocument); err == nil {
		t.Error("expected count mismatch error")
	}
	if _, err := EmbedTexts(ctx, stubEmbedder{vectors: [][]float32{{1, 0}, {1}}}, []string{"a", "b"}, InputDocument); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := EmbedTexts(ctx, stubEmbedder{err: errors.New("boom")}, []string{"a"}, InputDocument); err == nil {
		t.Error("expected provider error")
	}
	if v, err := EmbedTexts(ctx, stubEmbedder{}, nil, InputDocument); err != nil || v != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", v, err)
	}
}

func TestBuildChunkText(t *testing.T) {
	got := BuildChunkText(models.RoleBalanceSheet, "Ativo total 1.000")
	if !strings.HasPrefix(got, "Balance sheet") || !strings.HasSuffix(got, "Ativo total 1.000") {
		t.Errorf("unexpected chunk text %q", got)
	}
	if got := BuildChunkText(models.RoleUnknown, "x"); got != "x" {
		t.Errorf("expected unknown role to be unprefixed, got %q", got)
	}
}
