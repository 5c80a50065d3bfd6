package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func getPythonLanguage() *sitter.Language {
	return python.GetLanguage()
}

func extractPythonDefinitions(root *sitter.Node, source []byte) []Definition {
	var defs []Definition

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()

	walkPythonNode(cursor, source, &defs)

	return defs
}

func walkPythonNode(cursor *sitter.TreeCursor, source []byte, defs *[]Definition) {
	node := cursor.CurrentNode()

	if def, ok := pythonDefinition(node, source); ok {
		*defs = append(*defs, def)
	}

	// Keep descending: definitions nested in classes and functions get
	// their own entries.
	if cursor.GoToFirstChild() {
		walkPythonNode(cursor, source, defs)
		for cursor.GoToNextSibling() {
			walkPythonNode(cursor, source, defs)
		}
		cursor.GoToParent()
	}
}

func pythonDefinition(node *sitter.Node, source []byte) (Definition, bool) {
	var kind DefinitionKind

	switch node.Type() {
	case "function_definition":
		kind = KindFunction
		if isAsync(node) {
			kind = KindAsyncFunction
		}
	case "class_definition":
		kind = KindClass
	default:
		return Definition{}, false
	}

	name := ""
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	return Definition{
		Kind:      kind,
		Name:      name,
		StartLine: int(node.StartPoint().Row) + 1,
		Lines:     descendantLines(node),
	}, true
}

func isAsync(node *sitter.Node) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "async":
			return true
		case "def":
			return false
		}
	}
	return false
}

// descendantLines collects the last line of every token below node.
func descendantLines(node *sitter.Node) []int {
	var lines []int

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		count := int(n.ChildCount())
		if count == 0 {
			if n.Type() != "comment" {
				lines = append(lines, lastLine(n))
			}
			return
		}
		for i := 0; i < count; i++ {
			walk(n.Child(i))
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i))
	}

	return lines
}

// lastLine returns the 1-based line holding the final character of n.
func lastLine(n *sitter.Node) int {
	end := n.EndPoint()
	row := end.Row
	if end.Column == 0 && row > n.StartPoint().Row {
		row--
	}
	return int(row) + 1
}

func nodeContent(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
