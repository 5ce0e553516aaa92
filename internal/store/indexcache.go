package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/maraichr/creditlens/internal/index"
	"github.com/maraichr/creditlens/internal/store/postgres"
	"github.com/maraichr/creditlens/pkg/models"
)

// IndexCache persists embedding indexes in Postgres with pgvector columns.
type IndexCache struct {
	s *Store
}

func NewIndexCache(s *Store) *IndexCache {
	return &IndexCache{s: s}
}

func (c *IndexCache) Name() string { return "postgres" }

func (c *IndexCache) Load(ctx context.Context, key string) (*index.Index, error) {
	header, err := c.s.GetEmbeddingIndex(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, index.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get index %s: %w", key, err)
	}

	rows, err := c.s.ListIndexChunks(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list chunks of %s: %w", key, err)
	}
	if len(rows) != header.ChunkCount {
		return nil, fmt.Errorf("index %s: %d chunks stored, header says %d", key, len(rows), header.ChunkCount)
	}

	chunks := make([]index.Chunk, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		chunks[i] = index.Chunk{
			DocumentID: r.DocumentID,
			Role:       models.DocumentRole(r.Role),
			Ordinal:    r.Ordinal,
			Text:       r.Body,
		}
		vectors[i] = r.Embedding.Slice()
	}
	return index.New(key, header.Model, chunks, vectors)
}

func (c *IndexCache) Store(ctx context.Context, idx *index.Index) error {
	return c.s.WithTx(ctx, func(q *postgres.Queries) error {
		inserted, err := q.InsertEmbeddingIndex(ctx, postgres.EmbeddingIndex{
			ContentHash: idx.Key(),
			Model:       idx.Model(),
			Dimensions:  idx.Dim(),
			ChunkCount:  idx.Len(),
		})
		if err != nil {
			return fmt.Errorf("insert index %s: %w", idx.Key(), err)
		}
		if !inserted {
			return nil
		}

		rows := make([]postgres.IndexChunk, idx.Len())
		for i, ch := range idx.Chunks() {
			rows[i] = postgres.IndexChunk{
				Position:   i,
				DocumentID: ch.DocumentID,
				Role:       string(ch.Role),
				Ordinal:    ch.Ordinal,
				Body:       ch.Text,
				Embedding:  pgvector.NewVector(idx.Vector(i)),
			}
		}
		return q.InsertIndexChunks(ctx, idx.Key(), rows)
	})
}
