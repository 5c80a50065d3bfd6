package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/embedding"
	"github.com/randalmurphal/code-search/internal/metrics"
	"github.com/randalmurphal/code-search/internal/store"
)

// Embedder attaches vectors and provenance to extracted chunks.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunk.CodeChunk, filePath, repo string) ([]chunk.CodeChunk, error)
}

// Invalidator is told when the collection has changed so cached query
// results can be retired.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Options configures an Indexer. Zero values are usable.
type Options struct {
	Workers int
	Include []string
	Exclude []string
	Cache   Invalidator
	Metrics *metrics.Logger
	Logger  *slog.Logger
}

// Indexer coordinates the indexing pipeline: file discovery, parsing,
// embedding generation, and storage.
type Indexer struct {
	extractor *chunk.Extractor
	embedder  Embedder
	store     store.Store
	walker    *Walker
	workers   int
	cache     Invalidator
	metrics   *metrics.Logger
	logger    *slog.Logger
}

// NewIndexer creates a new indexer writing to s.
func NewIndexer(embedder Embedder, s store.Store, opts Options) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Indexer{
		extractor: chunk.NewExtractor(),
		embedder:  embedder,
		store:     s,
		walker:    NewWalker(opts.Include, opts.Exclude),
		workers:   opts.Workers,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// IndexResult contains statistics from an indexing run.
type IndexResult struct {
	Repo           string
	FilesProcessed int
	FilesSkipped   int
	ChunksCreated  int
	ChunksFailed   int
	Errors         []error
	Duration       time.Duration
}

func (r *IndexResult) addFile(fr *FileResult) {
	r.FilesProcessed++
	r.ChunksCreated += fr.Written
	r.ChunksFailed += len(fr.Failures)
	for _, f := range fr.Failures {
		r.Errors = append(r.Errors, fmt.Errorf("%s: %w", fr.RelPath, f))
	}
}

func (r *IndexResult) skip(relPath string, err error) {
	r.FilesSkipped++
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", relPath, err))
}

// FileResult is the outcome of indexing one file.
type FileResult struct {
	RelPath   string
	Extracted int
	Written   int
	Failures  []store.IngestFailure
}

// IndexRepo indexes every matching file under root as repo. Files with
// syntax errors or read errors are skipped and counted. The run stops early
// only when the store or the embedding model cannot be used at all; the
// partial result is returned with that error.
func (idx *Indexer) IndexRepo(ctx context.Context, root, repo string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Repo: repo}

	if err := idx.store.EnsureSchema(ctx); err != nil {
		return result, fmt.Errorf("ensure schema: %w", err)
	}

	files, err := idx.walker.Files(root)
	if err != nil {
		return result, fmt.Errorf("walk failed: %w", err)
	}

	idx.logger.Info("indexing repository", "repo", repo, "root", root, "files", len(files), "workers", idx.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fr, err := idx.IndexFile(gctx, f.Path, f.RelPath, repo)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				result.addFile(fr)
				idx.logger.Debug("indexed file", "path", f.RelPath, "chunks", fr.Written, "failed", len(fr.Failures))
				return nil
			case isFatal(err):
				return err
			default:
				result.skip(f.RelPath, err)
				idx.logger.Warn("skipping file", "path", f.RelPath, "error", err)
				return nil
			}
		})
	}

	runErr := g.Wait()
	result.Duration = time.Since(start)

	if result.ChunksCreated > 0 && idx.cache != nil {
		if version, err := idx.cache.Invalidate(ctx); err != nil {
			idx.logger.Warn("failed to bump index version", "error", err)
		} else {
			idx.logger.Debug("index version bumped", "version", version)
		}
	}

	idx.metrics.LogIndexUpdate(metrics.IndexRun{
		Repo:           repo,
		FilesProcessed: result.FilesProcessed,
		FilesSkipped:   result.FilesSkipped,
		ChunksCreated:  result.ChunksCreated,
		ChunksFailed:   result.ChunksFailed,
		DurationMs:     result.Duration.Milliseconds(),
	})

	if runErr != nil {
		idx.metrics.LogError("index", runErr.Error())
		return result, fmt.Errorf("indexing %s: %w", repo, runErr)
	}

	idx.logger.Info("indexing complete",
		"repo", repo,
		"files", result.FilesProcessed,
		"skipped", result.FilesSkipped,
		"chunks", result.ChunksCreated,
		"failed", result.ChunksFailed,
		"duration", result.Duration,
	)

	return result, nil
}

// IndexFile reads and indexes one file.
func (idx *Indexer) IndexFile(ctx context.Context, path, relPath, repo string) (*FileResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return idx.IndexSource(ctx, source, relPath, repo)
}

// IndexSource extracts, embeds and ingests the chunks of one file's source.
// Ingestion appends; indexing the same source twice stores its chunks twice.
func (idx *Indexer) IndexSource(ctx context.Context, source []byte, relPath, repo string) (*FileResult, error) {
	fr := &FileResult{RelPath: relPath}

	chunks, err := idx.extractor.Extract(source)
	if err != nil {
		return nil, err
	}
	fr.Extracted = len(chunks)
	if len(chunks) == 0 {
		return fr, nil
	}

	embedded, err := idx.embedder.EmbedChunks(ctx, chunks, relPath, repo)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	report, err := idx.store.Ingest(ctx, embedded)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	fr.Written = report.Written
	fr.Failures = report.Failures
	return fr, nil
}

// isFatal reports errors that would fail every remaining file too.
func isFatal(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, store.ErrNoCollection) ||
		errors.Is(err, embedding.ErrModelUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
