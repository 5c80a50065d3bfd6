// cmd/code-search/invalidate.go
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Invalidate cached search results",
	Long: `Increments the collection's index version so every cached search result
is treated as stale. With --purge the stale entries are deleted as well.`,
	Args: cobra.NoArgs,
	RunE: runInvalidate,
}

var invalidatePurge bool

func init() {
	invalidateCmd.Flags().BoolVar(&invalidatePurge, "purge", false, "Also delete cached entries")
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	qc := a.queryCache()
	if qc == nil {
		return errors.New("query cache is not configured or Redis is unreachable")
	}

	ctx, cancel := withTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	version, err := qc.Invalidate(ctx)
	if err != nil {
		return fmt.Errorf("failed to bump index version: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index version for %s is now %d\n", a.cfg.Storage.Collection, version)

	if invalidatePurge {
		deleted, err := qc.Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d cached entries\n", deleted)
	}

	return nil
}
