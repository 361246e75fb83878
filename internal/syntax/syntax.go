// Package syntax checks shell input with the tree-sitter bash grammar.
package syntax

// Error is one syntax error in a cell.
type Error struct {
	Line    int
	Column  int
	Message string
}
