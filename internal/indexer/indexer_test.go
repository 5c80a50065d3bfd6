package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/embedding"
	"github.com/randalmurphal/code-search/internal/store"
	"github.com/randalmurphal/code-search/internal/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const serviceModule = `class UserService:
    def get(self, user_id):
        return self.db[user_id]

async def fetch(url):
    return await client.get(url)
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func hashGenerator() *embedding.Generator {
	return embedding.NewGenerator(embedding.NewShared(embedding.HashLoader()), 16)
}

type countingInvalidator struct {
	calls atomic.Int64
}

func (c *countingInvalidator) Invalidate(context.Context) (int64, error) {
	return c.calls.Add(1), nil
}

func TestIndexRepo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/service.py", serviceModule)
	writeFile(t, root, "app/util.py", "def helper():\n    return 1\n")
	writeFile(t, root, "app/constants.py", "X = 1\n")
	writeFile(t, root, "broken.py", "def broken(:\n    pass\n")
	writeFile(t, root, "README.md", "# not python\n")

	s := store.NewMemoryStore()
	inv := &countingInvalidator{}
	idx := NewIndexer(hashGenerator(), s, Options{Workers: 2, Cache: inv})

	result, err := idx.IndexRepo(context.Background(), root, "demo")
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesProcessed)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 4, result.ChunksCreated) // UserService, get, fetch, helper
	assert.Zero(t, result.ChunksFailed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], chunk.ErrSyntax)
	assert.Equal(t, int64(1), inv.calls.Load())

	var hits []store.Hit
	require.NoError(t, s.Scan(context.Background(), func(h store.Hit) error {
		hits = append(hits, h)
		return nil
	}))
	require.Len(t, hits, 4)
	for _, h := range hits {
		assert.Equal(t, "demo", h.Chunk.Repo)
		assert.Contains(t, []string{"app/service.py", "app/util.py"}, h.Chunk.FilePath)
		assert.Len(t, h.Chunk.Embedding, chunk.EmbeddingDimension)
	}
}

func TestIndexRepoTwiceAppends(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "service.py", serviceModule)

	s := store.NewMemoryStore()
	idx := NewIndexer(hashGenerator(), s, Options{})

	for range 2 {
		result, err := idx.IndexRepo(context.Background(), root, "demo")
		require.NoError(t, err)
		assert.Equal(t, 3, result.ChunksCreated)
	}

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.PointsCount)
	assert.Equal(t, 1, s.Creations())
}

func TestIndexSourceRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.EnsureSchema(context.Background()))
	idx := NewIndexer(hashGenerator(), s, Options{})

	fr, err := idx.IndexSource(context.Background(), []byte(serviceModule), "svc.py", "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, fr.Extracted)
	assert.Equal(t, 3, fr.Written)

	require.NoError(t, s.Scan(context.Background(), func(h store.Hit) error {
		assert.Equal(t, chunk.SliceLines([]byte(serviceModule), h.Chunk.StartLine, h.Chunk.EndLine), h.Chunk.Code)
		return nil
	}))
}

// shortModel returns vectors one component short.
type shortModel struct{}

func (shortModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, chunk.EmbeddingDimension-1)
	}
	return out, nil
}

func TestIndexRepoCountsRejectedChunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "service.py", serviceModule)

	gen := embedding.NewGenerator(embedding.NewShared(func(context.Context) (embedding.Model, error) {
		return shortModel{}, nil
	}), 0)
	idx := NewIndexer(gen, store.NewMemoryStore(), Options{})

	result, err := idx.IndexRepo(context.Background(), root, "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Zero(t, result.ChunksCreated)
	assert.Equal(t, 3, result.ChunksFailed)
	for _, e := range result.Errors {
		assert.ErrorIs(t, e, chunk.ErrDimensionMismatch)
	}
}

func TestIndexRepoModelUnavailable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", serviceModule)
	writeFile(t, root, "b.py", serviceModule)

	gen := embedding.NewGenerator(embedding.NewShared(func(context.Context) (embedding.Model, error) {
		return nil, errors.New("no weights")
	}), 0)
	idx := NewIndexer(gen, store.NewMemoryStore(), Options{Workers: 1})

	result, err := idx.IndexRepo(context.Background(), root, "demo")
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrModelUnavailable)
	assert.Zero(t, result.ChunksCreated)
}

func TestIndexRepoStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStore(ctrl)
	mockStore.EXPECT().EnsureSchema(gomock.Any()).Return(store.ErrUnavailable)

	idx := NewIndexer(hashGenerator(), mockStore, Options{})
	_, err := idx.IndexRepo(context.Background(), t.TempDir(), "demo")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestIndexRepoStopsWhenIngestUnavailable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", serviceModule)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStore(ctrl)
	mockStore.EXPECT().EnsureSchema(gomock.Any()).Return(nil)
	mockStore.EXPECT().Ingest(gomock.Any(), gomock.Len(3)).Return(nil, store.ErrUnavailable)

	inv := &countingInvalidator{}
	idx := NewIndexer(hashGenerator(), mockStore, Options{Cache: inv})

	result, err := idx.IndexRepo(context.Background(), root, "demo")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Zero(t, result.FilesProcessed)
	assert.Zero(t, inv.calls.Load())
}
