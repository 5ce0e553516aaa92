package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maraichr/creditlens/internal/embedding"
	"github.com/maraichr/creditlens/pkg/models"
)

// Locker serializes builds of one key across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Observer is told about every cache lookup.
type Observer func(cache string, hit bool)

// Builder returns the index for a document set, building it at most once per
// content hash. Concurrent callers with the same key share one build; callers
// with different keys proceed independently.
type Builder struct {
	embedder embedding.Embedder
	caches   []Cache
	locker   Locker
	observe  Observer
	size     int
	overlap  int
	group    singleflight.Group
	logger   *slog.Logger
}

type BuilderOption func(*Builder)

// WithCache appends a cache layer. Layers are consulted in the order added.
func WithCache(c Cache) BuilderOption {
	return func(b *Builder) {
		if c != nil {
			b.caches = append(b.caches, c)
		}
	}
}

func WithLocker(l Locker) BuilderOption {
	return func(b *Builder) { b.locker = l }
}

func WithObserver(o Observer) BuilderOption {
	return func(b *Builder) { b.observe = o }
}

func NewBuilder(embedder embedding.Embedder, size, overlap int, logger *slog.Logger, opts ...BuilderOption) *Builder {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	b := &Builder{
		embedder: embedder,
		size:     size,
		overlap:  overlap,
		logger:   logger,
		observe:  func(string, bool) {},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Key returns the cache key Build would use for docs.
func (b *Builder) Key(docs []models.Document) string {
	return ContentHash(b.embedder.ModelID(), b.size, b.overlap, docs)
}

// Build returns the shared read-only index for docs.
func (b *Builder) Build(ctx context.Context, docs []models.Document) (*Index, error) {
	key := b.Key(docs)
	v, err, shared := b.group.Do(key, func() (any, error) {
		return b.build(ctx, key, docs)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.Debug("index build shared", slog.String("key", key))
	}
	return v.(*Index), nil
}

func (b *Builder) build(ctx context.Context, key string, docs []models.Document) (*Index, error) {
	if idx := b.lookup(ctx, key); idx != nil {
		return idx, nil
	}

	if b.locker != nil {
		unlock, err := b.locker.Lock(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn("index build lock unavailable, building unlocked",
				slog.String("key", key), slog.String("error", err.Error()))
		} else {
			defer unlock()
			// Another process may have finished while we waited.
			if idx := b.lookup(ctx, key); idx != nil {
				return idx, nil
			}
		}
	}

	start := time.Now()
	chunks := ChunkDocuments(docs, b.size, b.overlap)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embedding.BuildChunkText(c.Role, c.Text)
	}

	vectors, err := embedding.EmbedTexts(ctx, b.embedder, texts, embedding.InputDocument)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	idx, err := New(key, b.embedder.ModelID(), chunks, vectors)
	if err != nil {
		return nil, err
	}

	b.logger.Info("index built",
		slog.String("key", key),
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)))

	if len(chunks) > 0 {
		b.storeAll(ctx, idx, len(b.caches))
	}
	return idx, nil
}

// lookup walks the cache layers and back-fills faster layers on a hit.
func (b *Builder) lookup(ctx context.Context, key string) *Index {
	for i, c := range b.caches {
		idx, err := c.Load(ctx, key)
		if err == nil {
			b.observe(c.Name(), true)
			b.storeAll(ctx, idx, i)
			return idx
		}
		b.observe(c.Name(), false)
		if !errors.Is(err, ErrCacheMiss) {
			b.logger.Warn("index cache load failed",
				slog.String("cache", c.Name()),
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// storeAll writes idx into the first n cache layers; failures are logged.
func (b *Builder) storeAll(ctx context.Context, idx *Index, n int) {
	for _, c := range b.caches[:n] {
		if err := c.Store(ctx, idx); err != nil {
			b.logger.Warn("index cache store failed",
				slog.String("cache", c.Name()),
				slog.String("key", idx.Key()),
				slog.String("error", err.Error()))
		}
	}
}
