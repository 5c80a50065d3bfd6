// Package search ranks stored code chunks against a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/code-search/internal/store"
)

// Kind names a retrieval strategy.
type Kind string

const (
	// KindExhaustive scores every stored document. Exact, linear in corpus
	// size.
	KindExhaustive Kind = "exhaustive"

	// KindNative delegates to the store's nearest-neighbor index.
	KindNative Kind = "native"
)

// ParseKind resolves a configured strategy name. The engine names used by
// older deployments are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exhaustive", "elasticsearch":
		return KindExhaustive, nil
	case "native", "opensearch":
		return KindNative, nil
	default:
		return "", fmt.Errorf("unknown search strategy %q", s)
	}
}

// Strategy ranks stored documents against a query vector. A nil vector is a
// wildcard: every document matches.
type Strategy interface {
	Kind() Kind
	Search(ctx context.Context, vector []float32, topK int) ([]Result, error)
}

// New builds the strategy for kind over s.
func New(kind Kind, s store.Store) (Strategy, error) {
	switch kind {
	case KindExhaustive:
		return &Exhaustive{store: s}, nil
	case KindNative:
		return &Native{store: s}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", kind)
	}
}

// Exhaustive computes cosine similarity against every stored vector.
// Scores are cosine + 1, so they fall in [0, 2]. Equal scores keep the
// store's scan order.
type Exhaustive struct {
	store store.Store
}

// Kind implements Strategy.
func (e *Exhaustive) Kind() Kind { return KindExhaustive }

// Search implements Strategy.
func (e *Exhaustive) Search(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	var results []Result

	err := e.store.Scan(ctx, func(h store.Hit) error {
		// Cosine against a wildcard is taken as 0
		score := 1.0
		if vector != nil {
			score = store.Cosine(vector, h.Chunk.Embedding) + 1.0
		}
		h.Score = score
		results = append(results, resultFromHit(h))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return truncate(results, topK), nil
}

// Native asks the store for its nearest neighbors.
type Native struct {
	store store.Store
}

// Kind implements Strategy.
func (n *Native) Kind() Kind { return KindNative }

var errEnough = errors.New("enough results")

// Search implements Strategy. A wildcard returns the first topK documents in
// scan order, each scored 0.
func (n *Native) Search(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	if vector == nil {
		results := make([]Result, 0, topK)
		err := n.store.Scan(ctx, func(h store.Hit) error {
			if len(results) >= topK {
				return errEnough
			}
			h.Score = 0
			results = append(results, resultFromHit(h))
			return nil
		})
		if err != nil && !errors.Is(err, errEnough) {
			return nil, err
		}
		return results, nil
	}

	hits, err := n.store.Nearest(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = resultFromHit(h)
	}
	return results, nil
}

func truncate(results []Result, topK int) []Result {
	if results == nil {
		return []Result{}
	}
	if len(results) > topK {
		return results[:topK]
	}
	return results
}
