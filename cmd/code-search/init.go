// cmd/code-search/init.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/code-search/internal/config"
	"github.com/randalmurphal/code-search/internal/indexer"
)

var initCmd = &cobra.Command{
	Use:   "init [repo-path]",
	Short: "Write a default global config, and a repo config when a path is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if written, err := writeIfAbsent(configPath, func(path string) error {
		return config.DefaultConfig().Save(path)
	}); err != nil {
		return fmt.Errorf("failed to write global config: %w", err)
	} else if written {
		fmt.Fprintf(out, "Created %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Config already exists at %s\n", configPath)
	}

	if len(args) == 0 {
		return nil
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		return fmt.Errorf("path does not exist: %s", absPath)
	}

	repoName := indexer.RepoName(absPath)
	repoConfigPath := filepath.Join(absPath, config.RepoConfigFile)

	written, err := writeIfAbsent(repoConfigPath, func(path string) error {
		data, err := yaml.Marshal(config.RepoConfig{
			Name:    repoName,
			Include: indexer.DefaultIncludes,
			Exclude: []string{},
		})
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("failed to write repo config: %w", err)
	}
	if !written {
		fmt.Fprintf(out, "Config already exists at %s\n", repoConfigPath)
		return nil
	}

	fmt.Fprintf(out, "Created %s\n", repoConfigPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Review and customize the config file\n")
	fmt.Fprintf(out, "  2. Run: code-search index %s\n", absPath)

	return nil
}

func writeIfAbsent(path string, write func(string) error) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		return false, nil
	}
	if err := write(path); err != nil {
		return false, err
	}
	return true, nil
}
