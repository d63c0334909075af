// Package nmvm implements the register-free stack machine of §4.5: a
// strictly single-threaded cooperative interpreter over a CompiledScript.
// Its step/suspend/resume shape is adapted from the teacher's
// lang/machine.Thread loop, simplified because NM Script has no call
// frames, no locals, and no iterators — every instruction is a flat
// (opcode, u32 operand) pair over one shared value stack.
package nmvm

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

// Debugger is attached via Attach and observed at every instruction
// boundary (§4.6).
type Debugger interface {
	// BeforeInstruction is invoked before ip executes; returning false pauses
	// the VM (debugger.Attach semantics — a breakpoint or a step target).
	BeforeInstruction(ip uint32) bool
	AfterInstruction(ip uint32)
	// TrackVariableChange is invoked on every STORE_GLOBAL (§4.6).
	TrackVariableChange(name string, old, new nmvalue.Value)
}

// VM holds the full execution state of a running script (§3, §4.5).
type VM struct {
	Script *nmcompiler.CompiledScript

	stack   []nmvalue.Value
	globals map[string]nmvalue.Value
	flags   map[string]bool

	ip                uint32
	skipNextIncrement bool

	halted  bool
	paused  bool
	waiting bool

	// callDepth is the call_stack depth (§3 CallStackFrame): incremented by
	// GOTO_SCENE and (transiently) CALL, decremented by RETURN. Drives
	// StepOver/StepOut in nmdebugger (§4.6).
	callDepth int

	limits    Limits
	callbacks HostCallbacks
	debugger  Debugger

	instructionsThisStep int
	loopIterations       int
	requestQuit          bool

	lastErr error
}

// New constructs a VM ready to run script from its first scene's entry
// point; call GotoScene to position it before the first Update.
func New(script *nmcompiler.CompiledScript, callbacks HostCallbacks, limits Limits) *VM {
	return &VM{
		Script:    script,
		globals:   make(map[string]nmvalue.Value),
		flags:     make(map[string]bool),
		callbacks: callbacks,
		limits:    limits,
	}
}

func (vm *VM) Attach(d Debugger) { vm.debugger = d }
func (vm *VM) Detach()           { vm.debugger = nil }

// pushFrame and popFrame track call_stack depth (§3 CallStackFrame, §9
// "GOTO_SCENE is modeled as a push of a frame so Step-Out and Step-Over can
// be expressed uniformly"). GOTO_SCENE pushes on every scene transition;
// CALL pushes and pops around its (synchronous) native callback; RETURN
// pops the frame opened by the scene or call it is ending. pushFrame
// reports false (and fails the VM) when max_call_depth is exceeded.
func (vm *VM) pushFrame() bool {
	if lim := vm.limits.MaxCallDepth; lim > 0 && vm.callDepth+1 > lim {
		vm.fail(&SecurityViolation{Kind: ViolationCallDepth, Limit: lim, Got: vm.callDepth + 1})
		return false
	}
	vm.callDepth++
	return true
}

func (vm *VM) popFrame() {
	if vm.callDepth > 0 {
		vm.callDepth--
	}
}

func (vm *VM) Halted() bool    { return vm.halted }
func (vm *VM) Paused() bool    { return vm.paused }
func (vm *VM) Waiting() bool   { return vm.waiting }
func (vm *VM) IP() uint32      { return vm.ip }
func (vm *VM) CallDepth() int  { return vm.callDepth }
func (vm *VM) LastError() error { return vm.lastErr }

// RequestQuit sets the cancellation flag checked at the top of each step
// (§5 "Cancellation").
func (vm *VM) RequestQuit() { vm.requestQuit = true }

// SetPaused toggles the debugger pause state without altering ip.
func (vm *VM) SetPaused(p bool) { vm.paused = p }

// Global reads a global variable; missing globals read as Null (§3).
func (vm *VM) Global(name string) nmvalue.Value { return vm.globals[name] }

// Flag reads a flag; missing flags read as false.
func (vm *VM) Flag(name string) bool { return vm.flags[name] }

// Globals/Flags return live read-only snapshots for the debugger (§4.6).
func (vm *VM) Globals() map[string]nmvalue.Value {
	out := make(map[string]nmvalue.Value, len(vm.globals))
	for k, v := range vm.globals {
		out[k] = v
	}
	return out
}

func (vm *VM) Flags() map[string]bool {
	out := make(map[string]bool, len(vm.flags))
	for k, v := range vm.flags {
		out[k] = v
	}
	return out
}

// SetIP jumps execution to ip directly. §9 treats this as a checked API: a
// target beyond the instruction stream is rejected rather than silently
// wrapped or truncated, since an out-of-range IP would otherwise only
// surface as an opaque bounds-check halt on the next step.
func (vm *VM) SetIP(ip uint32) error {
	if int(ip) > len(vm.Script.Instructions) {
		return fmt.Errorf("nmvm: set_ip target %d beyond %d instructions", ip, len(vm.Script.Instructions))
	}
	vm.ip = ip
	vm.skipNextIncrement = true
	vm.halted = false
	return nil
}

// GotoScene resolves name against the compiled scene table and jumps there,
// un-halting the VM if needed (§4.7 "goto_scene looks up the scene entry
// point and sets VM IP there, un-halting if needed").
func (vm *VM) GotoScene(name string) error {
	entry, ok := vm.Script.SceneEntryPoints[name]
	if !ok {
		return fmt.Errorf("nmvm: unknown scene %q", name)
	}
	if err := vm.SetIP(entry); err != nil {
		return err
	}
	// GotoScene positions the VM between steps, so the entry instruction
	// runs once and ip then advances past it as usual.
	vm.skipNextIncrement = false
	return nil
}

// SignalContinue resumes a VM suspended on SAY/WAIT/MOVE_CHARACTER/
// GOTO_SCENE (§5 "Suspension points").
func (vm *VM) SignalContinue() { vm.waiting = false }

// SignalChoice resumes a VM suspended on CHOICE, pushing the chosen option
// index for the CHOICE-compiled dispatch table to consume (§4.4).
func (vm *VM) SignalChoice(index int) {
	vm.push(nmvalue.IntValue(int32(index)))
	vm.waiting = false
}

// Step executes at most one instruction, per §4.5's six-phase sequence.
// It returns false when no progress was made (halted, paused, waiting, or a
// debugger pause) and true after an instruction actually executed.
func (vm *VM) Step() bool {
	if vm.requestQuit {
		vm.halted = true
	}
	if vm.halted || vm.paused || vm.waiting {
		return false
	}
	if int(vm.ip) >= len(vm.Script.Instructions) {
		vm.halted = true
		return false
	}

	if vm.debugger != nil && !vm.debugger.BeforeInstruction(vm.ip) {
		vm.paused = true
		return false
	}

	vm.instructionsThisStep++
	if lim := vm.limits.MaxInstructionsPerStep; lim > 0 && vm.instructionsThisStep > lim {
		vm.fail(&SecurityViolation{Kind: ViolationInstrPerStep, Limit: lim, Got: vm.instructionsThisStep})
		return false
	}

	instr := vm.Script.Instructions[vm.ip]
	vm.execute(instr)

	if vm.debugger != nil {
		vm.debugger.AfterInstruction(vm.ip)
	}

	if !vm.skipNextIncrement {
		vm.ip++
	} else {
		vm.skipNextIncrement = false
	}
	return true
}

// Run drives Step until it stops making progress, bounding total iterations
// defensively so a host bug can never spin this call forever.
func (vm *VM) Run(maxSteps int) {
	vm.instructionsThisStep = 0
	for i := 0; i < maxSteps; i++ {
		if !vm.Step() {
			return
		}
	}
}

func (vm *VM) fail(err error) {
	vm.lastErr = err
	vm.halted = true
}
