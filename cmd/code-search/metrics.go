// cmd/code-search/metrics.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/code-search/internal/config"
	"github.com/randalmurphal/code-search/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Analyze usage metrics",
	Long:  `Analyze search and indexing events from the metrics log.`,
	RunE:  runMetrics,
}

var (
	metricsSince       string
	metricsZeroResults bool
	metricsJSON        bool
)

func init() {
	metricsCmd.Flags().StringVar(&metricsSince, "last", "7d", "Time period (e.g., 1h, 24h, 7d, 30d)")
	metricsCmd.Flags().BoolVar(&metricsZeroResults, "zero-results", false, "Show only zero-result queries")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	duration, err := parseDuration(metricsSince)
	if err != nil {
		return fmt.Errorf("invalid time period: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()

	if cfg.Metrics.Path == "" {
		fmt.Fprintln(out, "Metrics logging is disabled (metrics.path is empty).")
		return nil
	}
	if _, err := os.Stat(cfg.Metrics.Path); os.IsNotExist(err) {
		fmt.Fprintln(out, "No metrics data found. Run some searches to generate metrics.")
		return nil
	}

	analyzer := metrics.NewAnalyzer(cfg.Metrics.Path)

	if metricsZeroResults {
		queries, err := analyzer.GetZeroResultQueries(duration)
		if err != nil {
			return err
		}

		if metricsJSON {
			return printJSON(cmd, queries)
		}

		fmt.Fprintf(out, "Zero-result queries (last %s):\n\n", metricsSince)
		if len(queries) == 0 {
			fmt.Fprintln(out, "  No zero-result queries found.")
		}
		for _, q := range queries {
			fmt.Fprintf(out, "  - %q (%d times)\n", q.Query, q.Count)
		}
		return nil
	}

	summary, err := analyzer.Analyze(duration)
	if err != nil {
		return err
	}

	if metricsJSON {
		return printJSON(cmd, summary)
	}

	fmt.Fprintf(out, "Metrics Summary (last %s):\n\n", metricsSince)
	fmt.Fprintf(out, "  Total searches:      %d\n", summary.TotalSearches)
	fmt.Fprintf(out, "  Avg latency:         %dms\n", summary.AvgLatencyMs)
	fmt.Fprintf(out, "  Cache hits:          %d\n", summary.CacheHits)
	fmt.Fprintf(out, "  Zero-result queries: %d\n", summary.ZeroResultCount)
	fmt.Fprintf(out, "  Index runs:          %d\n", summary.IndexRuns)
	fmt.Fprintf(out, "  Chunks indexed:      %d\n", summary.ChunksIndexed)
	fmt.Fprintf(out, "  Chunks failed:       %d\n", summary.ChunksFailed)
	fmt.Fprintln(out)

	printCounts(cmd, "Searches by strategy", summary.SearchesByStrategy)
	printCounts(cmd, "Errors by operation", summary.Errors)

	if len(summary.TopQueries) > 0 {
		fmt.Fprintln(out, "  Top queries:")
		for _, q := range summary.TopQueries {
			fmt.Fprintf(out, "    - %q (%d times)\n", q.Query, q.Count)
		}
	}

	return nil
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "    - %s: %d\n", k, counts[k])
	}
	fmt.Fprintln(out)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	// Handle day suffix
	if len(s) > 0 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err == nil {
			return time.Duration(d) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
