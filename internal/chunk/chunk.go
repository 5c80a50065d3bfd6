// Package chunk provides the CodeChunk type and extraction of chunks from
// Python source files.
package chunk

import (
	"errors"
	"fmt"
)

// EmbeddingDimension is the length of every chunk embedding.
const EmbeddingDimension = 384

// UnknownName is used for definitions without an identifier.
const UnknownName = "<unknown>"

// ErrDimensionMismatch is returned when an embedding does not have
// EmbeddingDimension components.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Kind is the syntactic category of a chunk.
type Kind string

const (
	KindFunction      Kind = "Function"
	KindAsyncFunction Kind = "AsyncFunction"
	KindClass         Kind = "Class"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFunction, KindAsyncFunction, KindClass:
		return true
	}
	return false
}

// CodeChunk is a function, async function or class extracted from a file.
type CodeChunk struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"type"`
	Code      string `json:"code"`
	StartLine int    `json:"start_line"` // 1-based, inclusive
	EndLine   int    `json:"end_line"`   // 1-based, inclusive

	// Provenance, set when the chunk is embedded
	FilePath string `json:"file_path"`
	Repo     string `json:"repo"`

	// Vector (populated after embedding)
	Embedding []float32 `json:"embedding,omitempty"`
}

// Key returns the tuple that identifies a chunk. Chunks carry no other
// identity; two ingestions of the same file produce equal keys.
func (c *CodeChunk) Key() string {
	return fmt.Sprintf("%s:%s:%d-%d:%s", c.Repo, c.FilePath, c.StartLine, c.EndLine, c.Name)
}

// Validate checks line bounds and, when present, the embedding length.
func (c *CodeChunk) Validate() error {
	if c.StartLine < 1 {
		return fmt.Errorf("start line %d out of range", c.StartLine)
	}
	if c.EndLine < c.StartLine {
		return fmt.Errorf("end line %d before start line %d", c.EndLine, c.StartLine)
	}
	if c.Embedding != nil {
		return CheckDimension(c.Embedding)
	}
	return nil
}

// ValidateForIndex is Validate plus a required embedding.
func (c *CodeChunk) ValidateForIndex() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return CheckDimension(c.Embedding)
}

// CheckDimension returns ErrDimensionMismatch unless v has exactly
// EmbeddingDimension components.
func CheckDimension(v []float32) error {
	if len(v) != EmbeddingDimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), EmbeddingDimension)
	}
	return nil
}
