//go:build cgo

package syntax

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
)

// Available reports whether Check really parses its input.
const Available = true

var bash = tree_sitter.NewLanguage(tree_sitter_bash.Language())

// Check parses code as bash and returns its syntax errors. Empty input has
// none.
func Check(code string) ([]Error, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(bash); err != nil {
		return nil, fmt.Errorf("syntax: set language: %w", err)
	}

	source := []byte(code)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("syntax: parser returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var errs []Error
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		switch {
		case n.IsMissing():
			errs = append(errs, errorAt(n, "missing "+n.Kind()))
		case n.IsError():
			errs = append(errs, errorAt(n, "syntax error near '"+snippet(n, source)+"'"))
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)

	if len(errs) == 0 {
		errs = append(errs, errorAt(root, "syntax error"))
	}
	return errs, nil
}

func errorAt(n *tree_sitter.Node, msg string) Error {
	pos := n.StartPosition()
	return Error{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg}
}

func snippet(n *tree_sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start >= end || end > uint(len(source)) {
		return ""
	}
	text := string(source[start:end])
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return strings.ReplaceAll(text, "\n", "\\n")
}
