package minio

import (
	"bytes"
	"context"

	"github.com/maraichr/creditlens/internal/index"
)

const indexPrefix = "indexes/"

// IndexCache stores index snapshots as JSON objects so workers on different
// hosts can share them.
type IndexCache struct {
	client *Client
}

func NewIndexCache(client *Client) *IndexCache {
	return &IndexCache{client: client}
}

func (c *IndexCache) Name() string { return "minio" }

func (c *IndexCache) Load(ctx context.Context, key string) (*index.Index, error) {
	data, err := c.client.ReadFile(ctx, indexPrefix+key+".json")
	if err != nil {
		if IsNotFound(err) {
			return nil, index.ErrCacheMiss
		}
		return nil, err
	}
	return index.Decode(data)
}

func (c *IndexCache) Store(ctx context.Context, idx *index.Index) error {
	data, err := index.Encode(idx)
	if err != nil {
		return err
	}
	return c.client.UploadFile(ctx, indexPrefix+idx.Key()+".json", bytes.NewReader(data), int64(len(data)), "application/json")
}
