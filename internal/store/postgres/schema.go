package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS embedding_indexes (
    content_hash TEXT PRIMARY KEY,
    model        TEXT NOT NULL,
    dimensions   INT NOT NULL,
    chunk_count  INT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS index_chunks (
    content_hash TEXT NOT NULL REFERENCES embedding_indexes(content_hash) ON DELETE CASCADE,
    position     INT NOT NULL,
    document_id  TEXT NOT NULL,
    role         TEXT NOT NULL,
    ordinal      INT NOT NULL,
    body         TEXT NOT NULL,
    embedding    vector NOT NULL,
    PRIMARY KEY (content_hash, position)
);
`

// Migrate creates the embedding index tables if they do not exist.
func (q *Queries) Migrate(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
