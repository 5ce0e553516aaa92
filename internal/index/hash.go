package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/maraichr/creditlens/pkg/models"
)

// ContentHash keys an index by embedding model, chunking parameters and the
// exact bytes and roles of every document, in order.
func ContentHash(model string, size, overlap int, docs []models.Document) string {
	h := sha256.New()
	var n [8]byte
	writeField := func(b []byte) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeField([]byte(model))
	binary.LittleEndian.PutUint64(n[:], uint64(size))
	h.Write(n[:])
	binary.LittleEndian.PutUint64(n[:], uint64(overlap))
	h.Write(n[:])
	for _, d := range docs {
		writeField([]byte(d.ID))
		writeField([]byte(d.Role))
		writeField([]byte(d.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
