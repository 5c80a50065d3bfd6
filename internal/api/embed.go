package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/randalmurphal/code-search/internal/logging"
)

// maxEmbedBody bounds a POST /embed body.
const maxEmbedBody = 8 << 20

// TextEmbedder is the model behind the embedding service.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Ready(ctx context.Context) error
}

// Texts accepts either a JSON string or a JSON array of strings.
type Texts []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Texts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Texts{s}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("texts must be a string or a list of strings: %w", err)
	}
	*t = list
	return nil
}

// EmbedRequest is the body of POST /embed.
type EmbedRequest struct {
	Texts Texts `json:"texts"`
}

// EmbedResponse is the body returned by POST /embed.
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbeddingRouter serves POST /embed and GET /health over embedder.
func NewEmbeddingRouter(embedder TextEmbedder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := embedder.Ready(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("model not ready", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
	})

	r.Post("/embed", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		var req EmbedRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEmbedBody)).Decode(&req); err != nil {
			logger.WarnContext(ctx, "invalid request body", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if len(req.Texts) == 0 {
			writeJSON(w, http.StatusOK, EmbedResponse{Embeddings: [][]float32{}})
			return
		}

		vectors, err := embedder.EmbedTexts(ctx, req.Texts)
		if err != nil {
			status := statusFor(err)
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.ErrorContext(ctx, "embedding failed", "texts", len(req.Texts), "error", err)
			writeError(w, status, http.StatusText(status))
			return
		}

		writeJSON(w, http.StatusOK, EmbedResponse{Embeddings: vectors})
	})

	return r
}
