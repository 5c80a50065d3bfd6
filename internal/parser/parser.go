// Package parser provides tree-sitter based parsing of Python source into
// function and class definitions.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is returned when the source contains syntax errors.
var ErrSyntax = errors.New("syntax error")

// DefinitionKind is the syntactic category of a definition.
type DefinitionKind string

const (
	KindFunction      DefinitionKind = "Function"
	KindAsyncFunction DefinitionKind = "AsyncFunction"
	KindClass         DefinitionKind = "Class"
)

// Definition is a function, async function or class found in a syntax tree.
type Definition struct {
	Kind      DefinitionKind
	Name      string // empty when the node has no identifier
	StartLine int    // line of the def/class keyword, 1-based

	// Lines holds the last line of every line-bearing descendant.
	// Comments do not count.
	Lines []int
}

// EndLine returns the greatest line reachable from the definition. A
// definition without line-bearing descendants ends on its start line.
func (d Definition) EndLine() int {
	end := d.StartLine
	for _, l := range d.Lines {
		if l > end {
			end = l
		}
	}
	return end
}

// ParsePython parses Python source and returns every definition in
// depth-first pre-order. Nested definitions are reported separately from
// their parents.
func ParsePython(source []byte) ([]Definition, error) {
	return ParsePythonCtx(context.Background(), source)
}

// ParsePythonCtx is ParsePython with a caller-supplied context.
func ParsePythonCtx(ctx context.Context, source []byte) ([]Definition, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(getPythonLanguage())

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w at line %d", ErrSyntax, firstErrorLine(root))
	}
	if line := checkPython(root); line > 0 {
		return nil, fmt.Errorf("%w at line %d", ErrSyntax, line)
	}

	return extractPythonDefinitions(root, source), nil
}

// IsPython reports whether path names a Python source file.
func IsPython(path string) bool {
	return strings.HasSuffix(path, ".py") || strings.HasSuffix(path, ".pyi")
}

func firstErrorLine(node *sitter.Node) int {
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}
