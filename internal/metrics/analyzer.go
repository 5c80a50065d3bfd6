package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"time"
)

// Analyzer processes metrics logs.
type Analyzer struct {
	logPath string
	now     func() time.Time
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(logPath string) *Analyzer {
	return &Analyzer{logPath: logPath, now: time.Now}
}

// Summary contains aggregated metrics.
type Summary struct {
	Period             string         `json:"period"`
	TotalSearches      int            `json:"total_searches"`
	SearchesByStrategy map[string]int `json:"searches_by_strategy"`
	AvgLatencyMs       int64          `json:"avg_latency_ms"`
	ZeroResultCount    int            `json:"zero_result_count"`
	CacheHits          int            `json:"cache_hits"`
	TopQueries         []QueryCount   `json:"top_queries"`
	IndexRuns          int            `json:"index_runs"`
	ChunksIndexed      int            `json:"chunks_indexed"`
	ChunksFailed       int            `json:"chunks_failed"`
	Errors             map[string]int `json:"errors"`
}

// QueryCount represents a query with its count.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type event struct {
	TS        string `json:"ts"`
	Event     string `json:"event"`
	Query     string `json:"query"`
	Strategy  string `json:"strategy"`
	Results   int    `json:"results"`
	LatencyMs int64  `json:"latency_ms"`
	CacheHit  bool   `json:"cache_hit"`

	ChunksCreated int `json:"chunks_created"`
	ChunksFailed  int `json:"chunks_failed"`

	Operation string `json:"operation"`
}

// each calls fn for every well-formed event newer than since. Malformed
// lines are skipped.
func (a *Analyzer) each(since time.Duration, fn func(e *event)) error {
	file, err := os.Open(a.logPath)
	if err != nil {
		return err
	}
	defer file.Close()

	cutoff := a.now().Add(-since)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}

		ts, err := time.Parse(time.RFC3339, e.TS)
		if err != nil || ts.Before(cutoff) {
			continue
		}

		fn(&e)
	}

	return scanner.Err()
}

// Analyze processes logs for a time period.
func (a *Analyzer) Analyze(since time.Duration) (*Summary, error) {
	summary := &Summary{
		Period:             since.String(),
		SearchesByStrategy: make(map[string]int),
		Errors:             make(map[string]int),
	}

	queryCounts := make(map[string]int)
	var totalLatency int64

	err := a.each(since, func(e *event) {
		switch e.Event {
		case EventSearch:
			summary.TotalSearches++
			if e.Strategy != "" {
				summary.SearchesByStrategy[e.Strategy]++
			}
			if e.Results == 0 {
				summary.ZeroResultCount++
			}
			if e.CacheHit {
				summary.CacheHits++
			}
			totalLatency += e.LatencyMs
			queryCounts[e.Query]++

		case EventIndexUpdate:
			summary.IndexRuns++
			summary.ChunksIndexed += e.ChunksCreated
			summary.ChunksFailed += e.ChunksFailed

		case EventError:
			summary.Errors[e.Operation]++
		}
	})
	if err != nil {
		return nil, err
	}

	if summary.TotalSearches > 0 {
		summary.AvgLatencyMs = totalLatency / int64(summary.TotalSearches)
	}

	summary.TopQueries = topCounts(queryCounts, 10)

	return summary, nil
}

// GetZeroResultQueries returns queries that returned no results.
func (a *Analyzer) GetZeroResultQueries(since time.Duration) ([]QueryCount, error) {
	queryCounts := make(map[string]int)

	err := a.each(since, func(e *event) {
		if e.Event == EventSearch && e.Results == 0 {
			queryCounts[e.Query]++
		}
	})
	if err != nil {
		return nil, err
	}

	return topCounts(queryCounts, 0), nil
}

// topCounts sorts by count descending, then query ascending. limit <= 0
// keeps everything.
func topCounts(counts map[string]int, limit int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
