// cmd/code-search/search.go
package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed code",
	Long: `Return the indexed chunks closest to a natural-language query.
An empty query matches every chunk.`,
	RunE: runSearch,
}

var (
	searchTopK int
	searchJSON bool
	searchCode bool
)

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "k", "k", 0, "Number of results (default: from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	searchCmd.Flags().BoolVar(&searchCode, "code", false, "Print each result's code")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	engine, _, err := a.engine()
	if err != nil {
		return err
	}

	topK := a.cfg.Search.DefaultTopK
	if cmd.Flags().Changed("k") {
		topK = searchTopK
	}

	ctx, cancel := withTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	query := strings.Join(args, " ")
	results, err := engine.Search(ctx, query, topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		data, err := json.MarshalIndent(map[string]any{"results": results}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%d. %s %s  %s/%s:%d-%d  (score %.4f)\n",
			i+1, r.Kind, r.Name, r.Repo, r.FilePath, r.StartLine, r.EndLine, r.Score)
		if searchCode {
			for _, line := range strings.Split(r.Code, "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
			fmt.Fprintln(out)
		}
	}

	return nil
}
