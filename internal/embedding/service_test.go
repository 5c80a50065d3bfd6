package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedServer(t *testing.T, dim int, healthy bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		var req EmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := EmbedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			resp.Embeddings[i] = make([]float32, dim)
			resp.Embeddings[i][0] = float32(i)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{Status: "loading"})
			return
		}
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceClientEncode(t *testing.T) {
	srv := newEmbedServer(t, Dimension, true)
	client := NewServiceClient(srv.URL + "/")

	vectors, err := client.Encode(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Len(t, v, Dimension)
		assert.Equal(t, float32(i), v[0])
	}
}

func TestServiceClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewServiceClient(srv.URL).Encode(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestServiceLoaderHealthProbe(t *testing.T) {
	healthy := newEmbedServer(t, Dimension, true)
	model, err := ServiceLoader(healthy.URL)(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, model)

	unhealthy := newEmbedServer(t, Dimension, false)
	_, err = ServiceLoader(unhealthy.URL)(context.Background())
	assert.Error(t, err)
}

func TestServiceDimensionMismatchThroughGenerator(t *testing.T) {
	srv := newEmbedServer(t, 768, true)
	gen := NewGenerator(NewShared(ServiceLoader(srv.URL)), 0)

	_, err := gen.EmbedQuery(context.Background(), "find users")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpenAIClientEncode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		// Reverse order to check reordering by index
		var resp openAIResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, Dimension)
			v[0] = float32(i)
			resp.Data = append(resp.Data, openAIEmbedding{Embedding: v, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "secret", "all-minilm")
	vectors, err := client.Encode(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][0])

	model, err := OpenAILoader(srv.URL, "secret", "all-minilm")(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestOpenAILoaderRejectsWrongWidth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{Data: []openAIEmbedding{{Embedding: make([]float32, 1536)}}})
	}))
	defer srv.Close()

	_, err := OpenAILoader(srv.URL, "", "text-embedding-3-small")(context.Background())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
