package nmcompiler

import "fmt"

// ErrorKind discriminates the compile-time error taxonomy of §7.
type ErrorKind string

const (
	KindInvalidGotoTarget     ErrorKind = "InvalidGotoTarget"
	KindTooManyChoices        ErrorKind = "TooManyChoices"
	KindInternalCompilerError ErrorKind = "InternalCompilerError"
)

// CompileError is returned by Compile; unlike the lexer/parser/validator,
// the compiler short-circuits on the first error (§7: "return as a list
// with the first-failure short-circuit at compile time").
type CompileError struct {
	Kind        ErrorKind
	Message     string
	Suggestions []string
}

func (e *CompileError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (did you mean: %v?)", e.Kind, e.Message, e.Suggestions)
}

// MaxChoiceOptions is the maximum number of options a single choice may
// have (§4.4, P11).
const MaxChoiceOptions = 256
