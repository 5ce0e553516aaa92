// Package documents turns analysis inputs into the plain-text documents the
// pipeline consumes. Text extraction from binary formats happens upstream.
package documents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/maraichr/creditlens/pkg/models"
)

// MaxDocumentBytes bounds a single document's text.
const MaxDocumentBytes = 8 << 20

var (
	// ErrUnsupported marks inputs the loader refuses before a run starts.
	ErrUnsupported = errors.New("unsupported document")
	// ErrNoStore is returned for object references when no store is configured.
	ErrNoStore = errors.New("no document store configured")
)

var supportedExt = map[string]bool{
	"":     true,
	".txt": true,
	".md":  true,
	".csv": true,
}

// Source is one document as supplied by a caller: inline text or an object key.
type Source struct {
	Filename  string              `json:"filename,omitempty"`
	Role      models.DocumentRole `json:"role,omitempty"`
	Text      string              `json:"text,omitempty"`
	ObjectKey string              `json:"object_key,omitempty"`
}

// Reader fetches raw bytes by key.
type Reader interface {
	Read(ctx context.Context, key string, maxBytes int64) ([]byte, error)
}

// Loader validates sources and resolves object references.
type Loader struct {
	store Reader
}

// NewLoader creates a loader; store may be nil when only inline text is accepted.
func NewLoader(store Reader) *Loader {
	return &Loader{store: store}
}

// Validate rejects sources that can never become a document.
func Validate(sources []Source) error {
	for i, src := range sources {
		name := src.Filename
		if name == "" {
			name = src.ObjectKey
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !supportedExt[ext] {
			return fmt.Errorf("%w: document %d has type %q", ErrUnsupported, i+1, ext)
		}
		if src.Role != "" && !models.ValidRole(src.Role) {
			return fmt.Errorf("%w: document %d has role %q", ErrUnsupported, i+1, src.Role)
		}
		if src.Text != "" && src.ObjectKey != "" {
			return fmt.Errorf("%w: document %d sets both text and object_key", ErrUnsupported, i+1)
		}
		if len(src.Text) > MaxDocumentBytes {
			return fmt.Errorf("%w: document %d exceeds %d bytes", ErrUnsupported, i+1, MaxDocumentBytes)
		}
	}
	return nil
}

// Load validates sources and returns documents with positional IDs (doc-1, doc-2, ...).
// Empty text is kept; extraction records it as unreadable.
func (l *Loader) Load(ctx context.Context, sources []Source) ([]models.Document, error) {
	if err := Validate(sources); err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(sources))
	for i, src := range sources {
		text := src.Text
		if src.ObjectKey != "" {
			if l.store == nil {
				return nil, fmt.Errorf("document %d: %w", i+1, ErrNoStore)
			}
			data, err := l.store.Read(ctx, src.ObjectKey, MaxDocumentBytes)
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", i+1, err)
			}
			if !utf8.Valid(data) {
				return nil, fmt.Errorf("%w: document %d is not UTF-8 text", ErrUnsupported, i+1)
			}
			text = string(data)
		}
		filename := src.Filename
		if filename == "" && src.ObjectKey != "" {
			filename = filepath.Base(src.ObjectKey)
		}
		docs = append(docs, models.Document{
			ID:        fmt.Sprintf("doc-%d", i+1),
			Filename:  filename,
			Role:      src.Role,
			ObjectKey: src.ObjectKey,
			Text:      text,
		})
	}
	return docs, nil
}
