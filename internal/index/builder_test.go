package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maraichr/creditlens/pkg/models"
)

type countingEmbedder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) ModelID() string { return "counting" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDocs(text string) []models.Document {
	return []models.Document{{ID: "doc-1", Role: models.RoleBalanceSheet, Text: text}}
}

func TestBuilderSharesConcurrentBuilds(t *testing.T) {
	emb := &countingEmbedder{delay: 50 * time.Millisecond}
	mem, err := NewMemoryCache(4)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(emb, 100, 20, discardLogger(), WithCache(mem))

	var wg sync.WaitGroup
	results := make([]*Index, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := b.Build(context.Background(), sampleDocs("Ativo total 1.000,00"))
			if err != nil {
				t.Errorf("Build: %v", err)
				return
			}
			results[i] = idx
		}()
	}
	wg.Wait()

	if emb.calls.Load() != 1 {
		t.Errorf("expected exactly one embedding call, got %d", emb.calls.Load())
	}
	for i, idx := range results {
		if idx == nil || idx.Key() != results[0].Key() {
			t.Errorf("result %d does not share the index", i)
		}
	}
}

func TestBuilderReusesDiskIndex(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskCache(dir)
	if err != nil {
		t.Fatal(err)
	}

	emb := &countingEmbedder{}
	first := NewBuilder(emb, 100, 20, discardLogger(), WithCache(disk))
	idx, err := first.Build(context.Background(), sampleDocs("Passivo circulante 500,00"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// A fresh builder (new process) finds the persisted index.
	var hits []string
	second := NewBuilder(emb, 100, 20, discardLogger(),
		WithCache(disk),
		WithObserver(func(cache string, hit bool) {
			if hit {
				hits = append(hits, cache)
			}
		}))
	again, err := second.Build(context.Background(), sampleDocs("Passivo circulante 500,00"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if emb.calls.Load() != 1 {
		t.Errorf("expected cached index to skip embedding, got %d calls", emb.calls.Load())
	}
	if again.Key() != idx.Key() || again.Len() != idx.Len() {
		t.Errorf("expected identical index, got %s/%d", again.Key(), again.Len())
	}
	if len(hits) != 1 || hits[0] != "disk" {
		t.Errorf("expected one disk hit, got %v", hits)
	}

	// Different bytes mean a different key and a new build.
	if _, err := second.Build(context.Background(), sampleDocs("Passivo circulante 501,00")); err != nil {
		t.Fatal(err)
	}
	if emb.calls.Load() != 2 {
		t.Errorf("expected a second build for changed content, got %d calls", emb.calls.Load())
	}
}

type fakeLocker struct {
	mu     sync.Mutex
	locked int
	fail   bool
}

func (l *fakeLocker) Lock(context.Context, string) (func(), error) {
	if l.fail {
		return nil, errors.New("valkey down")
	}
	l.mu.Lock()
	l.locked++
	l.mu.Unlock()
	return func() {}, nil
}

func TestBuilderUsesLocker(t *testing.T) {
	emb := &countingEmbedder{}
	locker := &fakeLocker{}
	b := NewBuilder(emb, 100, 20, discardLogger(), WithLocker(locker))
	if _, err := b.Build(context.Background(), sampleDocs("x")); err != nil {
		t.Fatal(err)
	}
	if locker.locked != 1 {
		t.Errorf("expected lock taken once, got %d", locker.locked)
	}

	// Lock failures degrade to an unlocked build.
	b = NewBuilder(emb, 100, 20, discardLogger(), WithLocker(&fakeLocker{fail: true}))
	if _, err := b.Build(context.Background(), sampleDocs("y")); err != nil {
		t.Fatalf("expected unlocked build to succeed, got %v", err)
	}
}

func TestBuilderPropagatesEmbeddingError(t *testing.T) {
	b := NewBuilder(&countingEmbedder{err: errors.New("timeout")}, 100, 20, discardLogger())
	if _, err := b.Build(context.Background(), sampleDocs("x")); err == nil {
		t.Fatal("expected error")
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("m", 1000, 200, sampleDocs("abc"))
	if a != ContentHash("m", 1000, 200, sampleDocs("abc")) {
		t.Error("expected identical hash for identical input")
	}
	if a == ContentHash("m", 1000, 100, sampleDocs("abc")) {
		t.Error("expected chunk parameters to change the hash")
	}
	if a == ContentHash("other", 1000, 200, sampleDocs("abc")) {
		t.Error("expected model to change the hash")
	}
}
