// cmd/code-search/index.go
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/code-search/internal/config"
	"github.com/randalmurphal/code-search/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index <path-or-git-url>",
	Short: "Index a repository",
	Long: `Walk a local checkout, or shallow-clone a git URL, and store an embedded
chunk for every Python function, async function and class it contains.

Indexing appends: running it twice over the same repository stores its
chunks twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var (
	indexRepo    string
	indexWorkers int
)

func init() {
	indexCmd.Flags().StringVar(&indexRepo, "repo", "", "Logical repository name (default: last path segment)")
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 0, "Files indexed concurrently (default: from config)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := indexer.OpenSource(ctx, args[0], "")
	if err != nil {
		return fmt.Errorf("repository not found: %w", err)
	}
	defer src.Close()

	repoCfg, err := config.LoadRepoConfig(src.Root)
	if err != nil {
		return fmt.Errorf("failed to load repo config: %w", err)
	}

	repo := src.Repo
	if repoCfg.Name != "" {
		repo = repoCfg.Name
	}
	if indexRepo != "" {
		repo = indexRepo
	}

	include := a.cfg.Indexing.Include
	if len(repoCfg.Include) > 0 {
		include = repoCfg.Include
	}
	exclude := append(append([]string{}, a.cfg.Indexing.Exclude...), repoCfg.Exclude...)

	workers := a.cfg.Indexing.Workers
	if indexWorkers > 0 {
		workers = indexWorkers
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	gen, err := a.generator()
	if err != nil {
		return err
	}

	opts := indexer.Options{
		Workers: workers,
		Include: include,
		Exclude: exclude,
		Metrics: a.metricsLogger(),
		Logger:  a.logger,
	}
	if qc := a.queryCache(); qc != nil {
		opts.Cache = qc
	}

	out := cmd.OutOrStdout()
	if src.Head != "" {
		fmt.Fprintf(out, "Indexing %s (%s @ %.12s)...\n", repo, args[0], src.Head)
	} else {
		fmt.Fprintf(out, "Indexing %s (%s)...\n", repo, args[0])
	}

	result, runErr := indexer.NewIndexer(gen, s, opts).IndexRepo(ctx, src.Root, repo)

	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Files processed: %d\n", result.FilesProcessed)
	fmt.Fprintf(out, "  Files skipped:   %d\n", result.FilesSkipped)
	fmt.Fprintf(out, "  Chunks created:  %d\n", result.ChunksCreated)
	fmt.Fprintf(out, "  Chunks failed:   %d\n", result.ChunksFailed)
	fmt.Fprintf(out, "  Duration:        %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "    - %v\n", e)
		}
	}

	if runErr != nil {
		return fmt.Errorf("indexing failed: %w", runErr)
	}
	return nil
}
