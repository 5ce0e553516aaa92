package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/creditlens/pkg/models"
)

const (
	cacheKeyPrefix  = "creditlens:registry:"
	notFoundMarker  = "not_found"
	notFoundTTLFrac = 4
)

// CachedLookup memoizes registry answers in Valkey. Not-found answers are
// cached for a quarter of the TTL; errors are never cached.
type CachedLookup struct {
	next   Lookup
	client valkey.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLookup(next Lookup, client valkey.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	return &CachedLookup{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedLookup) Lookup(ctx context.Context, cnpj string) (*models.RegistryRecord, error) {
	cnpj = Normalize(cnpj)
	key := cacheKeyPrefix + cnpj

	data, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, ErrNotFound
		}
		var rec models.RegistryRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
	case !valkey.IsValkeyNil(err):
		c.logger.Warn("registry cache read failed", slog.String("error", err.Error()))
	}

	rec, err := c.next.Lookup(ctx, cnpj)
	switch {
	case errors.Is(err, ErrNotFound):
		c.set(ctx, key, notFoundMarker, c.ttl/notFoundTTLFrac)
		return nil, err
	case err != nil:
		return nil, err
	}

	if payload, err := json.Marshal(rec); err == nil {
		c.set(ctx, key, string(payload), c.ttl)
	}
	return rec, nil
}

func (c *CachedLookup) set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < time.Second {
		return
	}
	if err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(value).Ex(ttl).Build()).Error(); err != nil {
		c.logger.Warn("registry cache write failed", slog.String("error", err.Error()))
	}
}
