package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkRel(t *testing.T, w *Walker, root string) []string {
	t.Helper()
	files, err := w.Files(root)
	require.NoError(t, err)

	rel := make([]string, len(files))
	for i, f := range files {
		rel[i] = f.RelPath
	}
	return rel
}

func TestWalker(t *testing.T) {
	tmpDir := t.TempDir()

	writeFile(t, tmpDir, "test.py", "def hello():\n    return \"Hello\"\n")
	// Test files are indexed like any other
	writeFile(t, tmpDir, "test_hello.py", "def test_hello():\n    assert hello() == \"Hello\"\n")
	writeFile(t, tmpDir, "__pycache__/test.pyc", "binary")

	assert.Equal(t, []string{"test.py", "test_hello.py"}, walkRel(t, NewWalker(nil, nil), tmpDir))
}

func TestWalkerDefaultExcludes(t *testing.T) {
	tmpDir := t.TempDir()

	for _, dir := range []string{".git", "node_modules", "venv", ".venv", ".tox", "dist", "build"} {
		writeFile(t, tmpDir, filepath.Join(dir, "file.py"), "# excluded")
	}
	writeFile(t, tmpDir, "main.py", "# included")

	assert.Equal(t, []string{"main.py"}, walkRel(t, NewWalker(nil, nil), tmpDir))
}

func TestWalkerCustomPatterns(t *testing.T) {
	tmpDir := t.TempDir()

	writeFile(t, tmpDir, "main.py", "# main")
	writeFile(t, tmpDir, "generated.py", "# generated")
	writeFile(t, tmpDir, "stubs/types.pyi", "def f() -> int: ...")

	w := NewWalker([]string{"**/*.py", "**/*.pyi"}, []string{"**/generated.py"})
	assert.Equal(t, []string{"main.py", "stubs/types.pyi"}, walkRel(t, w, tmpDir))
}

func TestWalkerNestedDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	writeFile(t, tmpDir, "src/main.py", "# main")
	writeFile(t, tmpDir, "src/pkg/util.py", "# util")
	writeFile(t, tmpDir, "src/pkg/sub/deep.py", "# deep")

	files, err := NewWalker(nil, nil).Files(tmpDir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, f := range files {
		_, err := os.Stat(f.Path)
		assert.NoError(t, err)
		assert.Equal(t, filepath.ToSlash(mustRel(t, tmpDir, f.Path)), f.RelPath)
	}
}

func mustRel(t *testing.T, base, target string) string {
	t.Helper()
	rel, err := filepath.Rel(base, target)
	require.NoError(t, err)
	return rel
}
