package search

import (
	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/store"
)

// Result is a ranked chunk as handed to callers. It never carries the
// chunk's embedding.
type Result struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      chunk.Kind `json:"type"`
	Code      string     `json:"code"`
	FilePath  string     `json:"file_path"`
	Repo      string     `json:"repo"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Score     float64    `json:"score"`
}

func resultFromHit(h store.Hit) Result {
	return Result{
		ID:        h.ID,
		Name:      h.Chunk.Name,
		Kind:      h.Chunk.Kind,
		Code:      h.Chunk.Code,
		FilePath:  h.Chunk.FilePath,
		Repo:      h.Chunk.Repo,
		StartLine: h.Chunk.StartLine,
		EndLine:   h.Chunk.EndLine,
		Score:     h.Score,
	}
}
