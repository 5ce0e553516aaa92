//go:build integration

package minio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/index"
)

func TestIndexCache_StoreAndLoad(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	client, err := NewClient(config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "creditlens-test",
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := client.EnsureBucket(ctx); err != nil {
		t.Skipf("minio not available: %v", err)
	}

	cache := NewIndexCache(client)
	key := "test-" + uuid.NewString()
	if _, err := cache.Load(ctx, key); !errors.Is(err, index.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	idx, err := index.New(key, "m", []index.Chunk{{DocumentID: "d", Text: "Receita 10"}}, [][]float32{{0.5, 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Store(ctx, idx); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := cache.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 1 || got.Chunks()[0].Text != "Receita 10" {
		t.Errorf("unexpected index %+v", got.Chunks())
	}
}
