// cmd/code-search/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/code-search/internal/config"
)

const version = "v0.1.0"

var (
	configPath   string
	storeBackend string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "code-search",
	Short: "Semantic search over Python code",
	Long: `Extract functions and classes from Python repositories, embed them,
and answer natural-language queries with the closest code.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "code-search", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the global config file")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Storage backend override (qdrant|memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (error|warn|info|debug)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
