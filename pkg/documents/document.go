// Package documents turns PDF reports into pages and retrieval-sized chunks.
package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNotFound is returned when the document path does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnreadable is returned when no text can be extracted.
	ErrUnreadable = errors.New("document is unreadable")
)

// Meta identifies the document a page or chunk came from.
type Meta struct {
	DocumentID string
	Title      string
	Source     string
}

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Meta
	Number int
	Text   string
}

// Chunk is a retrieval unit carved from a page.
type Chunk struct {
	Meta
	ID       string
	Page     int
	Index    int
	Content  string
	Checksum string
}

// ChunkID is stable for a given document and chunk index, so re-indexing
// the same document overwrites rather than duplicates. The document ID is
// path-escaped, which keeps distinct documents apart and the '#' unambiguous.
func ChunkID(documentID string, idx int) string {
	return fmt.Sprintf("%s#%d", url.PathEscape(documentID), idx)
}

func checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
