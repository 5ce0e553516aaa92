package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrCacheMiss is returned by Cache.Load when no index is stored under key.
var ErrCacheMiss = errors.New("index cache miss")

// Cache persists built indexes by content hash.
type Cache interface {
	Name() string
	Load(ctx context.Context, key string) (*Index, error)
	Store(ctx context.Context, idx *Index) error
}

// MemoryCache shares built indexes between concurrent runs of one process.
type MemoryCache struct {
	entries *lru.Cache[string, *Index]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 32
	}
	c, err := lru.New[string, *Index](size)
	if err != nil {
		return nil, fmt.Errorf("memory index cache: %w", err)
	}
	return &MemoryCache{entries: c}, nil
}

func (m *MemoryCache) Name() string { return "memory" }

func (m *MemoryCache) Load(_ context.Context, key string) (*Index, error) {
	if idx, ok := m.entries.Get(key); ok {
		return idx, nil
	}
	return nil, ErrCacheMiss
}

func (m *MemoryCache) Store(_ context.Context, idx *Index) error {
	m.entries.Add(idx.Key(), idx)
	return nil
}

// DiskCache stores one JSON snapshot per key under dir.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

func (d *DiskCache) Name() string { return "disk" }

func (d *DiskCache) path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

func (d *DiskCache) Load(_ context.Context, key string) (*Index, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", key, err)
	}
	return Decode(data)
}

// Store writes through a temp file so readers never see a partial snapshot.
func (d *DiskCache) Store(_ context.Context, idx *Index) error {
	data, err := Encode(idx)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, idx.Key()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write index %s: %w", idx.Key(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index %s: %w", idx.Key(), err)
	}
	if err := os.Rename(tmp.Name(), d.path(idx.Key())); err != nil {
		return fmt.Errorf("rename index %s: %w", idx.Key(), err)
	}
	return nil
}

// Encode serializes an index snapshot as JSON.
func Encode(idx *Index) ([]byte, error) {
	data, err := json.Marshal(idx.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode index %s: %w", idx.Key(), err)
	}
	return data, nil
}

// Decode restores an index written by Encode.
func Decode(data []byte) (*Index, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return FromSnapshot(snap)
}
