package nmtoken

import (
	"fmt"
	"sort"
	"strings"
)

// Error is a single diagnostic tied to a source Position, used uniformly by
// the lexer, parser and validator so the launcher/editor can render them the
// same way regardless of which phase produced them.
type Error struct {
	Pos Position
	Msg string
}

func (e Error) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ErrorList accumulates errors from a single lex/parse/validate pass. It
// mirrors go/scanner.ErrorList's accumulate-then-report shape so several
// phases can keep going after an error (§7: "continue at next statement
// boundary to collect multiple errors").
type ErrorList []*Error

func (l *ErrorList) Add(pos Position, msg string) {
	*l = append(*l, &Error{Pos: pos, Msg: msg})
}

func (l *ErrorList) Addf(pos Position, format string, args ...any) {
	l.Add(pos, fmt.Sprintf(format, args...))
}

func (l ErrorList) Len() int      { return len(l) }
func (l ErrorList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l ErrorList) Less(i, j int) bool {
	a, b := l[i].Pos, l[j].Pos
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

// Sort orders the list by source position, stably.
func (l ErrorList) Sort() { sort.Stable(l) }

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (and %d more error", l[0], len(l)-1)
	if len(l) > 2 {
		sb.WriteByte('s')
	}
	sb.WriteByte(')')
	return sb.String()
}

// Err returns nil if the list is empty, else the list itself as an error.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
