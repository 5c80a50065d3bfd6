package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/randalmurphal/code-search/internal/embedding"
	"github.com/randalmurphal/code-search/internal/logging"
	"github.com/randalmurphal/code-search/internal/search"
	"github.com/randalmurphal/code-search/internal/store"
)

// MaxTopK bounds the k query parameter.
const MaxTopK = 100

// Searcher answers text queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// NewSearchRouter serves GET /search?q=&k= and GET /health.
func NewSearchRouter(searcher Searcher, defaultTopK int, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
	})

	h := &searchHandler{searcher: searcher, defaultTopK: defaultTopK}
	r.Get("/search", h.ServeHTTP)

	return r
}

type searchHandler struct {
	searcher    Searcher
	defaultTopK int
}

func (h *searchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	query := r.URL.Query().Get("q")

	topK := h.defaultTopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 || k > MaxTopK {
			writeError(w, http.StatusBadRequest, "k must be an integer between 1 and "+strconv.Itoa(MaxTopK))
			return
		}
		topK = k
	}

	results, err := h.searcher.Search(ctx, query, topK)
	if err != nil {
		status := statusFor(err)
		logger.ErrorContext(ctx, "search failed", "query", query, "k", topK, "status", status, "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidTopK):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, embedding.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
