// cmd/code-search/status.go
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/code-search/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.openStore()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	collection := a.cfg.Storage.Collection

	info, err := s.Stats(ctx)
	if errors.Is(err, store.ErrNoCollection) {
		fmt.Fprintln(out, "No index found. Run 'code-search index <path>' to create one.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	fmt.Fprintln(out, "Index Status:")
	fmt.Fprintf(out, "  Backend:    %s\n", a.cfg.Storage.Backend)
	fmt.Fprintf(out, "  Collection: %s\n", collection)
	fmt.Fprintf(out, "  Points:     %d\n", info.PointsCount)
	fmt.Fprintf(out, "  Vectors:    %d dimensions\n", info.VectorSize)
	fmt.Fprintf(out, "  Status:     %s\n", info.Status)
	fmt.Fprintf(out, "  Strategy:   %s\n", a.cfg.Search.Strategy)

	if qc := a.queryCache(); qc != nil {
		if v, err := qc.Version(ctx); err == nil {
			fmt.Fprintf(out, "  Cache:      version %d\n", v)
		}
	} else {
		fmt.Fprintln(out, "  Cache:      disabled")
	}

	return nil
}
