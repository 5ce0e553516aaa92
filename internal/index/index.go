package index

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
)

// Index is an immutable in-memory embedding index. Vectors are normalized on
// construction so a dot product is the cosine similarity. Safe for concurrent
// readers.
type Index struct {
	key     string
	model   string
	dim     int
	chunks  []Chunk
	vectors [][]float32
}

// Hit is one search result.
type Hit struct {
	Chunk Chunk
	Score float64
}

// New builds an index over chunks; vectors[i] embeds chunks[i].
func New(key, model string, chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	idx := &Index{key: key, model: model, chunks: chunks, vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if i == 0 {
			idx.dim = len(v)
		} else if len(v) != idx.dim {
			return nil, fmt.Errorf("index: vector %d has dimension %d, expected %d", i, len(v), idx.dim)
		}
		idx.vectors[i] = normalize(v)
	}
	return idx, nil
}

func (x *Index) Key() string     { return x.key }
func (x *Index) Model() string   { return x.model }
func (x *Index) Dim() int        { return x.dim }
func (x *Index) Len() int        { return len(x.chunks) }
func (x *Index) Chunks() []Chunk { return x.chunks }

// Vector returns the normalized vector of chunk i.
func (x *Index) Vector(i int) []float32 { return x.vectors[i] }

// Search returns at most k chunks with cosine similarity >= minScore, best
// first. filter, when non-nil, restricts the candidates. Equal scores keep
// document order.
func (x *Index) Search(query []float32, k int, minScore float64, filter func(Chunk) bool) []Hit {
	if k <= 0 || len(query) != x.dim || x.dim == 0 {
		return nil
	}
	q := normalize(query)

	h := &minHeap{}
	for i, vec := range x.vectors {
		if filter != nil && !filter(x.chunks[i]) {
			continue
		}
		score := dotProduct(q, vec)
		if score < minScore {
			continue
		}
		item := scored{pos: i, score: score}
		if h.Len() < k {
			heap.Push(h, item)
		} else if item.better((*h)[0]) {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}

	hits := make([]Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		s := heap.Pop(h).(scored)
		hits[i] = Hit{Chunk: x.chunks[s.pos], Score: s.score}
	}
	return hits
}

type scored struct {
	pos   int
	score float64
}

func (s scored) better(o scored) bool {
	if s.score != o.score {
		return s.score > o.score
	}
	return s.pos < o.pos
}

// minHeap keeps the worst of the current top-k at the root.
type minHeap []scored

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Snapshot is the persisted form of an index.
type Snapshot struct {
	Key     string  `json:"key"`
	Model   string  `json:"model"`
	Dim     int     `json:"dim"`
	Chunks  []Chunk `json:"chunks"`
	Vectors []byte  `json:"vectors"` // little-endian float32, row-major
}

func (x *Index) Snapshot() Snapshot {
	buf := make([]byte, 0, len(x.vectors)*x.dim*4)
	for _, v := range x.vectors {
		buf = append(buf, float32ToBlob(v)...)
	}
	return Snapshot{Key: x.key, Model: x.model, Dim: x.dim, Chunks: x.chunks, Vectors: buf}
}

// FromSnapshot restores an index written by Snapshot.
func FromSnapshot(s Snapshot) (*Index, error) {
	if want := len(s.Chunks) * s.Dim * 4; len(s.Vectors) != want {
		return nil, fmt.Errorf("index snapshot %s: %d vector bytes, expected %d", s.Key, len(s.Vectors), want)
	}
	vectors := make([][]float32, len(s.Chunks))
	for i := range vectors {
		vectors[i] = blobToFloat32(s.Vectors[i*s.Dim*4:(i+1)*s.Dim*4], s.Dim)
	}
	return New(s.Key, s.Model, s.Chunks, vectors)
}

// --- math helpers ---

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// --- serialization helpers ---

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
