package index

import (
	"strings"
	"unicode"

	"github.com/maraichr/creditlens/pkg/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is one retrievable window of a document.
type Chunk struct {
	DocumentID string              `json:"document_id"`
	Role       models.DocumentRole `json:"role"`
	Ordinal    int                 `json:"ordinal"`
	Text       string              `json:"text"`
}

// Split cuts text into overlapping windows of about size runes. A window ends
// on whitespace when one is available in its last quarter, and boundaries
// never fall inside a numeric token such as "1.234.567,89" or "-12,5", so a
// window may run past size to finish a number.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	r := []rune(text)
	n := len(r)
	var out []string
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			if b := lastSpace(r, start+size*3/4, end); b > start {
				end = b
			}
			for end < n && splitsNumber(r, end) {
				end++
			}
		}

		if piece := strings.TrimSpace(string(r[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end >= n {
			break
		}

		next := end - overlap
		for next > start && splitsNumber(r, next) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// ChunkDocuments splits every document in order.
func ChunkDocuments(docs []models.Document, size, overlap int) []Chunk {
	var chunks []Chunk
	for _, d := range docs {
		for i, text := range Split(d.Text, size, overlap) {
			chunks = append(chunks, Chunk{DocumentID: d.ID, Role: d.Role, Ordinal: i, Text: text})
		}
	}
	return chunks
}

func lastSpace(r []rune, from, to int) int {
	for j := to; j > from && j > 0; j-- {
		if unicode.IsSpace(r[j-1]) {
			return j - 1
		}
	}
	return -1
}

// splitsNumber reports whether a boundary before r[i] would cut a numeric token.
func splitsNumber(r []rune, i int) bool {
	if i <= 0 || i >= len(r) {
		return false
	}
	return numericAt(r, i-1) && numericAt(r, i)
}

func numericAt(r []rune, i int) bool {
	c := r[i]
	if unicode.IsDigit(c) {
		return true
	}
	next := i+1 < len(r) && unicode.IsDigit(r[i+1])
	switch c {
	case '.', ',':
		return next && i > 0 && unicode.IsDigit(r[i-1])
	case '-':
		return next
	}
	return false
}
