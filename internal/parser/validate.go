package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// The Python grammar recovers silently from some input that the Python
// compiler rejects: bad indentation, empty suites, and Python 2 statements.
// checkPython finds those and returns the 1-based line of the first one, or
// 0 when the tree is clean.
func checkPython(root *sitter.Node) int {
	return checkSuite(root, -1, -1)
}

// checkSuite validates the statements of a module or block. outer is the
// indent of the line owning the suite (-1 for the module); headerRow is the
// row the suite's colon ends on (-1 for the module).
func checkSuite(suite *sitter.Node, outer, headerRow int) int {
	col := -1
	prevEnd := headerRow
	inline := false
	seen := 0

	for i := 0; i < int(suite.NamedChildCount()); i++ {
		stmt := suite.NamedChild(i)
		if isExtra(stmt) {
			continue
		}
		seen++

		row := int(stmt.StartPoint().Row)
		indent := outer

		switch {
		case row <= prevEnd && seen == 1:
			// def f(): return 1
			inline = true
		case row <= prevEnd:
			// a; b
		case inline:
			return row + 1
		default:
			c := int(stmt.StartPoint().Column)
			switch {
			case col == -1 && outer < 0 && c != 0:
				return row + 1
			case col == -1 && c <= outer:
				return row + 1
			case col == -1:
				col = c
			case c != col:
				return row + 1
			}
			indent = c
		}
		if line := checkNode(stmt, indent); line > 0 {
			return line
		}
		prevEnd = int(stmt.EndPoint().Row)
	}

	if seen == 0 && headerRow >= 0 {
		return int(suite.StartPoint().Row) + 1
	}
	return 0
}

// checkNode validates everything below a statement that starts on a line
// indented by indent.
func checkNode(n *sitter.Node, indent int) int {
	switch n.Type() {
	case "print_statement", "exec_statement":
		return int(n.StartPoint().Row) + 1
	case "except_clause":
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "," {
				return int(n.StartPoint().Row) + 1
			}
		}
	case "function_definition", "class_definition":
		if n.ChildByFieldName("body") == nil {
			return int(n.StartPoint().Row) + 1
		}
	}

	prevEnd := int(n.StartPoint().Row)
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)

		var line int
		switch child.Type() {
		case "block":
			header := prevEnd
			if prev := child.PrevSibling(); prev != nil {
				header = int(prev.EndPoint().Row)
			}
			line = checkSuite(child, indent, header)
		case "elif_clause", "else_clause", "except_clause", "except_group_clause", "finally_clause":
			if int(child.StartPoint().Row) > prevEnd && int(child.StartPoint().Column) != indent {
				return int(child.StartPoint().Row) + 1
			}
			line = checkNode(child, indent)
		default:
			line = checkNode(child, indent)
		}
		if line > 0 {
			return line
		}
		prevEnd = int(child.EndPoint().Row)
	}
	return 0
}

func isExtra(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "line_continuation":
		return true
	}
	return false
}
