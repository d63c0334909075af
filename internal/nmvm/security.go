package nmvm

import "fmt"

// Limits configures the security guard every push/call/loop passes through
// (§4.5 "Security guard"). A zero value of a given field means "unbounded"
// for that dimension.
type Limits struct {
	MaxStackSize           int
	MaxCallDepth           int
	MaxInstructionsPerStep int
	MaxStringLength        int
	MaxVariables           int
	MaxLoopIterations      int
	AllowNativeCalls       bool
	AllowFileAccess        bool
	AllowNetworkAccess     bool
}

// DefaultLimits returns generous but finite limits, matching the posture of
// a script sandboxed against a runaway or hostile .nms file.
func DefaultLimits() Limits {
	return Limits{
		MaxStackSize:           4096,
		MaxCallDepth:           256,
		MaxInstructionsPerStep: 100_000,
		MaxStringLength:        1 << 20,
		MaxVariables:           10_000,
		MaxLoopIterations:      1_000_000,
	}
}

// ViolationKind names which guarded dimension was exceeded.
type ViolationKind string

const (
	ViolationStackSize      ViolationKind = "StackSize"
	ViolationCallDepth      ViolationKind = "CallDepth"
	ViolationInstrPerStep   ViolationKind = "InstructionsPerStep"
	ViolationStringLength   ViolationKind = "StringLength"
	ViolationVariableCount  ViolationKind = "VariableCount"
	ViolationLoopIterations ViolationKind = "LoopIterations"
	ViolationNativeCall     ViolationKind = "NativeCallDenied"
	ViolationFileAccess     ViolationKind = "FileAccessDenied"
	ViolationNetworkAccess  ViolationKind = "NetworkAccessDenied"
)

// SecurityViolation is fatal: the VM halts when it is raised (§4.5, §7
// "SecurityLimitExceeded(kind)").
type SecurityViolation struct {
	Kind  ViolationKind
	Limit int
	Got   int
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("security limit exceeded: %s (limit %d, got %d)", e.Kind, e.Limit, e.Got)
}
