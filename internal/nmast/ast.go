// Package nmast defines the NM Script abstract syntax tree (§4.2): a
// Program of character declarations, scenes and global statements, plus the
// statement/expression node types the parser produces. Unlike the teacher's
// quasi-lossless ast package (which preserves comments and exact spans for
// source reconstruction), NM Script never needs to reprint source, so nodes
// carry only what the validator/compiler consume: a source Position and
// their fields.
package nmast

import "github.com/novelmind/novelmind/internal/nmtoken"

// Node is implemented by every AST node.
type Node interface {
	Pos() nmtoken.Position
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

// Position embeds a source Position and provides the default Pos() method
// for node types via struct embedding.
type Position struct {
	At nmtoken.Position
}

func (p Position) Pos() nmtoken.Position { return p.At }

// Program is the root of a parsed NM Script file (§4.2).
type Program struct {
	Characters      []*CharacterDecl
	Scenes          []*Scene
	GlobalStmts     []Stmt
}

// CharacterDecl declares a character id and its display metadata.
type CharacterDecl struct {
	Position
	ID     string
	Name   string
	Colour string // "#rrggbb"-shaped color literal lexeme, empty if unset
}

// Scene is a named entry point; control transfers to scenes via goto.
type Scene struct {
	Position
	Name  string
	Body  []Stmt
}
