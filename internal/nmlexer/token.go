// Package nmlexer implements the NM Script lexer (§4.1): UTF-8 validated
// tokenization with Unicode identifiers, nested block comments, color
// literals, and the NM Script keyword/operator/delimiter set. Its
// byte-at-a-time advance/peek scanning loop is adapted from the teacher's
// lang/scanner package.
package nmlexer

import "github.com/novelmind/novelmind/internal/nmtoken"

// Token is a single lexical token, terminated by a trailing EOF token.
type Token struct {
	Type       nmtoken.Kind
	Lexeme     string
	IntValue   int32
	FloatValue float32
	Pos        nmtoken.Position
}
