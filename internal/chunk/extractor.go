package chunk

import (
	"strings"

	"github.com/randalmurphal/code-search/internal/parser"
)

// ErrSyntax is returned by Extract for files that do not parse.
var ErrSyntax = parser.ErrSyntax

// Extractor converts parsed definitions into chunks.
type Extractor struct{}

// NewExtractor creates a chunk extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses Python source and returns one chunk per function, async
// function and class, in tree-walk order. Nested definitions produce their
// own, overlapping chunks.
//
// Source that fails to parse yields an empty slice and an error wrapping
// ErrSyntax.
func (e *Extractor) Extract(source []byte) ([]CodeChunk, error) {
	defs, err := parser.ParsePython(source)
	if err != nil {
		return []CodeChunk{}, err
	}

	lines := splitLines(source)
	chunks := make([]CodeChunk, 0, len(defs))

	for _, def := range defs {
		chunks = append(chunks, fromDefinition(def, lines))
	}

	return chunks, nil
}

func fromDefinition(def parser.Definition, lines []string) CodeChunk {
	name := def.Name
	if name == "" {
		name = UnknownName
	}

	start, end := def.StartLine, def.EndLine()

	return CodeChunk{
		Name:      name,
		Kind:      Kind(def.Kind),
		Code:      joinLines(lines, start, end),
		StartLine: start,
		EndLine:   end,
	}
}

// SliceLines returns lines start..end (1-based, inclusive) of source.
func SliceLines(source []byte, start, end int) string {
	return joinLines(splitLines(source), start, end)
}

func splitLines(source []byte) []string {
	lines := strings.Split(string(source), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func joinLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
