package nmvm

import "errors"

// VM runtime error taxonomy (§7). StackUnderflow and DivisionByZero are
// recovered — the VM logs lastErr and keeps running, substituting Null/0 as
// the spec requires. InvalidStringTableIndex and an unknown opcode are
// fatal and halt the VM via fail(). A jump past the end of the instruction
// stream records no error: the next Step's bounds check halts the VM.
var (
	errStackUnderflow     = errors.New("nmvm: stack underflow")
	errDivisionByZero     = errors.New("nmvm: division by zero")
	errInvalidStringIndex = errors.New("nmvm: invalid string table index")
	errUnknownOpcode      = errors.New("nmvm: unknown opcode")
)
