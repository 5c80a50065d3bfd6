package indexer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Source is a local checkout ready to be indexed.
type Source struct {
	Root string
	Repo string
	Head string // commit hash, empty outside git

	cleanup func() error
}

// Close removes the checkout if it was cloned.
func (s *Source) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// RepoName derives the logical repository name from a URL or path: the last
// path segment without a trailing ".git".
func RepoName(urlOrPath string) string {
	trimmed := strings.TrimRight(urlOrPath, "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if name := strings.TrimSuffix(trimmed, ".git"); name != "" && name != "." && name != ".." {
		return name
	}

	abs, err := filepath.Abs(urlOrPath)
	if err != nil {
		return urlOrPath
	}
	return filepath.Base(abs)
}

// IsRemote reports whether target looks like a clonable git URL rather than
// a local path.
func IsRemote(target string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://", "git@"} {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

// OpenSource resolves target to a local checkout. Remote URLs are shallow
// cloned into a fresh directory under workDir (os.TempDir when empty) that
// Close removes.
func OpenSource(ctx context.Context, target, workDir string) (*Source, error) {
	if !IsRemote(target) {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", target)
		}

		head, _ := gitHead(target)
		return &Source{Root: target, Repo: RepoName(target), Head: head}, nil
	}

	dir, err := os.MkdirTemp(workDir, "code-search-")
	if err != nil {
		return nil, fmt.Errorf("create checkout dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--quiet", target, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("git clone %s: %w: %s", target, err, strings.TrimSpace(string(out)))
	}

	head, _ := gitHead(dir)
	return &Source{Root: dir, Repo: RepoName(target), Head: head, cleanup: cleanup}, nil
}

// gitHead returns the current HEAD commit hash.
func gitHead(repoPath string) (string, error) {
	// Try git rev-parse first (most reliable)
	output, err := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD").Output()
	if err == nil {
		return strings.TrimSpace(string(output)), nil
	}

	// Fallback: read .git/HEAD directly
	headData, err := os.ReadFile(filepath.Join(repoPath, ".git", "HEAD"))
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(string(headData))

	ref, ok := strings.CutPrefix(content, "ref: ")
	if !ok {
		// Detached HEAD, content is the hash
		return content, nil
	}

	refData, err := os.ReadFile(filepath.Join(repoPath, ".git", ref))
	if err != nil {
		// Packed ref; the branch name is the best we have
		return ref, nil
	}
	return strings.TrimSpace(string(refData)), nil
}
