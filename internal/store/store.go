// Package store provides vector storage backends for code chunks.
package store

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_store.go -package=mocks github.com/randalmurphal/code-search/internal/store Store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/config"
)

var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrNoCollection is returned by writes before EnsureSchema has run.
	ErrNoCollection = errors.New("collection does not exist")
)

// Hit is a stored document as returned by a read. Chunk.Embedding is set by
// Scan and left nil by Nearest.
type Hit struct {
	ID    string
	Chunk chunk.CodeChunk
	Score float64
}

// Stats describes the collection.
type Stats struct {
	PointsCount int64
	VectorSize  int
	Status      string
}

// IngestFailure records one chunk that could not be written.
type IngestFailure struct {
	Index    int
	Name     string
	FilePath string
	Err      error
}

func (f IngestFailure) Error() string {
	return fmt.Sprintf("chunk %d (%s in %s): %v", f.Index, f.Name, f.FilePath, f.Err)
}

func (f IngestFailure) Unwrap() error {
	return f.Err
}

// IngestReport is the outcome of one Ingest call.
type IngestReport struct {
	Submitted int
	Written   int
	Failures  []IngestFailure
}

// Err joins every failure, or returns nil when all chunks were written.
func (r *IngestReport) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r *IngestReport) fail(i int, c *chunk.CodeChunk, err error) {
	r.Failures = append(r.Failures, IngestFailure{Index: i, Name: c.Name, FilePath: c.FilePath, Err: err})
}

// Store persists embedded chunks and answers similarity reads.
type Store interface {
	// EnsureSchema creates the collection if absent. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// Ingest appends one document per chunk. It never replaces existing
	// documents; ingesting the same chunks twice stores them twice.
	// Per-chunk problems land in the report; the error is reserved for a
	// store that could not be used at all.
	Ingest(ctx context.Context, chunks []chunk.CodeChunk) (*IngestReport, error)

	// Nearest returns up to k documents closest to vector by cosine
	// similarity, using the store's own index.
	Nearest(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Scan calls fn for every document, vectors included, in an order that
	// is stable for an unchanged collection. A non-nil error from fn stops
	// the scan and is returned.
	Scan(ctx context.Context, fn func(Hit) error) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Open builds the configured backend.
func Open(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.Collection, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero vectors
// and vectors of different lengths score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
