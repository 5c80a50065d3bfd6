// Package embedding maps code and query text to dense vectors through a
// single, lazily constructed model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/config"
)

// Dimension is the length of every vector produced by this package.
const Dimension = chunk.EmbeddingDimension

var (
	// ErrModelUnavailable is returned by every call once model construction
	// has failed. Construction is not retried.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrDimensionMismatch is returned when the model produces a vector of
	// the wrong length.
	ErrDimensionMismatch = chunk.ErrDimensionMismatch
)

// Model encodes texts into vectors, one per input, in input order.
type Model interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Loader constructs a Model. It is the expensive step (weights, remote
// health checks) and runs at most once per Shared.
type Loader func(ctx context.Context) (Model, error)

// Shared is a lazily initialized model handle meant to be created once per
// process and handed to every component that needs embeddings.
type Shared struct {
	load Loader

	mu    sync.Mutex
	ready atomic.Bool
	model Model
	err   error

	loads atomic.Int32
}

// NewShared wraps load. Nothing is constructed until the first Get.
func NewShared(load Loader) *Shared {
	return &Shared{load: load}
}

// Get returns the model, constructing it on first use. Callers that find the
// model ready never take the lock; concurrent first callers wait for the one
// constructing it. A construction failure is remembered and returned to
// every later caller.
//
// Construction ignores ctx cancellation so an abandoned request cannot leave
// the handle half built.
func (s *Shared) Get(ctx context.Context) (Model, error) {
	if s.ready.Load() {
		return s.model, s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready.Load() {
		s.loads.Add(1)
		model, err := s.load(context.WithoutCancel(ctx))
		if err == nil && model == nil {
			err = errors.New("loader returned no model")
		}
		if err != nil {
			s.err = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		} else {
			s.model = model
		}
		s.ready.Store(true)
	}

	return s.model, s.err
}

// Loads returns how many times the loader has run. It is at most one.
func (s *Shared) Loads() int {
	return int(s.loads.Load())
}

// Generator produces embeddings for chunks and queries from a Shared model.
// Queries and code share one model and one vector space.
type Generator struct {
	shared    *Shared
	batchSize int
}

// NewGenerator creates a generator. batchSize <= 0 selects 64.
func NewGenerator(shared *Shared, batchSize int) *Generator {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Generator{shared: shared, batchSize: batchSize}
}

// Ready constructs the model if needed and reports whether it is usable.
func (g *Generator) Ready(ctx context.Context) error {
	_, err := g.shared.Get(ctx)
	return err
}

// EmbedTexts returns one Dimension-length vector per text, in input order.
func (g *Generator) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := g.encode(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, v := range vectors {
		if err := chunk.CheckDimension(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}

	return vectors, nil
}

// EmbedQuery encodes a single query string.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedChunks sets Embedding, FilePath and Repo on every chunk. Vector
// lengths are not checked here: a chunk with a bad vector is rejected by the
// store on ingest and reported there, without failing its siblings.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []chunk.CodeChunk, filePath, repo string) ([]chunk.CodeChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Code
	}

	vectors, err := g.encode(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunks[i].FilePath = filePath
		chunks[i].Repo = repo
	}

	return chunks, nil
}

func (g *Generator) encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model, err := g.shared.Get(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += g.batchSize {
		end := min(i+g.batchSize, len(texts))

		batch, err := model.Encode(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", i, end, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("batch %d-%d: expected %d vectors, got %d", i, end, end-i, len(batch))
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// NewLoader selects the Loader for the configured provider.
func NewLoader(cfg config.EmbeddingConfig) (Loader, error) {
	switch cfg.Provider {
	case "service":
		return ServiceLoader(cfg.URL), nil
	case "openai":
		return OpenAILoader(cfg.URL, cfg.APIKey, cfg.Model), nil
	case "hash":
		return HashLoader(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
