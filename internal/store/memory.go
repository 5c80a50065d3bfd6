package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/code-search/internal/chunk"
)

// MemoryStore keeps documents in process memory and answers Nearest by exact
// search. Documents are scanned in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	created bool
	docs    []Hit

	creations atomic.Int32
}

// NewMemoryStore creates an empty store. The collection does not exist until
// EnsureSchema is called.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// EnsureSchema implements Store.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		s.created = true
		s.creations.Add(1)
	}
	return nil
}

// Creations returns how many times the collection was created.
func (s *MemoryStore) Creations() int {
	return int(s.creations.Load())
}

// Ingest implements Store.
func (s *MemoryStore) Ingest(ctx context.Context, chunks []chunk.CodeChunk) (*IngestReport, error) {
	report := &IngestReport{Submitted: len(chunks)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return nil, ErrNoCollection
	}

	for i := range chunks {
		c := chunks[i]
		if err := c.ValidateForIndex(); err != nil {
			report.fail(i, &c, err)
			continue
		}

		c.Embedding = append([]float32(nil), c.Embedding...)
		s.docs = append(s.docs, Hit{ID: uuid.NewString(), Chunk: c})
		report.Written++
	}

	return report, nil
}

// Nearest implements Store.
func (s *MemoryStore) Nearest(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	s.mu.RLock()
	hits := make([]Hit, len(s.docs))
	for i, d := range s.docs {
		hits[i] = Hit{ID: d.ID, Chunk: d.Chunk, Score: Cosine(vector, d.Chunk.Embedding)}
		hits[i].Chunk.Embedding = nil
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Scan implements Store. It walks a snapshot taken at call time.
func (s *MemoryStore) Scan(ctx context.Context, fn func(Hit) error) error {
	s.mu.RLock()
	snapshot := append([]Hit(nil), s.docs...)
	s.mu.RUnlock()

	for _, d := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "missing"
	if s.created {
		status = "green"
	}
	return &Stats{
		PointsCount: int64(len(s.docs)),
		VectorSize:  chunk.EmbeddingDimension,
		Status:      status,
	}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
