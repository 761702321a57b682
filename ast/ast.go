// Package ast defines the abstract syntax tree representation of Pyrite
// code. The parser that produces these trees lives outside this module; the
// compiler consumes them as an opaque upstream input.
package ast

// Position identifies a location in the original source.
type Position struct {
	Line   int // 1-based
	Column int // 1-based
}

// Node represents a portion of the syntax tree. All nodes carry position
// information indicating where they appear in the source code.
type Node interface {
	// Pos returns the position of the first character belonging to the node.
	Pos() Position
}

// Stmt represents a statement node. Statements cause side effects and do
// not themselves evaluate to a value.
type Stmt interface {
	Node
	stmtNode()
}

// Expr represents an expression node. Expressions evaluate to a value and
// may be embedded within other expressions.
type Expr interface {
	Node
	exprNode()
}

// Program is the root node: a sequence of top-level statements.
type Program struct {
	Stmts []Stmt
}

func (p *Program) Pos() Position {
	if len(p.Stmts) > 0 {
		return p.Stmts[0].Pos()
	}
	return Position{Line: 1, Column: 1}
}
