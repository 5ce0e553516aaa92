package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// EmbeddingIndex is the header row of a persisted index.
type EmbeddingIndex struct {
	ContentHash string
	Model       string
	Dimensions  int
	ChunkCount  int
	CreatedAt   time.Time
}

// IndexChunk is one embedded chunk of a persisted index.
type IndexChunk struct {
	Position   int
	DocumentID string
	Role       string
	Ordinal    int
	Body       string
	Embedding  pgvector.Vector
}

func (q *Queries) GetEmbeddingIndex(ctx context.Context, contentHash string) (EmbeddingIndex, error) {
	var i EmbeddingIndex
	err := q.db.QueryRow(ctx,
		`SELECT content_hash, model, dimensions, chunk_count, created_at
		 FROM embedding_indexes WHERE content_hash = $1`,
		contentHash).Scan(&i.ContentHash, &i.Model, &i.Dimensions, &i.ChunkCount, &i.CreatedAt)
	return i, err
}

func (q *Queries) ListIndexChunks(ctx context.Context, contentHash string) ([]IndexChunk, error) {
	rows, err := q.db.Query(ctx,
		`SELECT position, document_id, role, ordinal, body, embedding
		 FROM index_chunks WHERE content_hash = $1 ORDER BY position`,
		contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []IndexChunk
	for rows.Next() {
		var c IndexChunk
		if err := rows.Scan(&c.Position, &c.DocumentID, &c.Role, &c.Ordinal, &c.Body, &c.Embedding); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// InsertEmbeddingIndex returns false when the hash is already stored.
func (q *Queries) InsertEmbeddingIndex(ctx context.Context, i EmbeddingIndex) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO embedding_indexes (content_hash, model, dimensions, chunk_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (content_hash) DO NOTHING`,
		i.ContentHash, i.Model, i.Dimensions, i.ChunkCount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertIndexChunks writes all chunks in one pipelined batch.
func (q *Queries) InsertIndexChunks(ctx context.Context, contentHash string, chunks []IndexChunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO index_chunks (content_hash, position, document_id, role, ordinal, body, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			contentHash, c.Position, c.DocumentID, c.Role, c.Ordinal, c.Body, c.Embedding)
	}
	br := q.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return nil
}

func (q *Queries) DeleteEmbeddingIndex(ctx context.Context, contentHash string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM embedding_indexes WHERE content_hash = $1`, contentHash)
	return err
}
