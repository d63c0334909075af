package nmdebugger_test

import (
	"testing"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmdebugger"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvalue"
	"github.com/novelmind/novelmind/internal/nmvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCallbacks struct{ nmvm.NopCallbacks }

func compile(t *testing.T, src string) *nmcompiler.CompiledScript {
	t.Helper()
	prog, err := nmparser.ParseProgram("t.nms", []byte(src))
	require.NoError(t, err)
	res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
	require.False(t, res.HasErrors(), "%v", res.Errors())
	cs, err := nmcompiler.Compile("t.nms", prog)
	require.NoError(t, err)
	return cs
}

func TestDebuggerNormalBreakpointPauses(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1
	set y = 2
	set z = 3
}
`)
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	var storeIP uint32 = 1
	for i, instr := range cs.Instructions {
		if instr.Op == nmvalue.STORE_GLOBAL {
			storeIP = uint32(i)
			break
		}
	}
	dbg.AddBreakpoint(storeIP)

	vm.Run(1000)
	assert.True(t, vm.Paused())
	assert.False(t, vm.Halted())
	assert.Equal(t, storeIP, vm.IP())
}

func TestDebuggerConditionalBreakpointOnlyPausesWhenTrue(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1
	set x = 2
	set x = 3
}
`)
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	var stores []uint32
	for i, instr := range cs.Instructions {
		if instr.Op == nmvalue.STORE_GLOBAL {
			stores = append(stores, uint32(i))
		}
	}
	require.Len(t, stores, 3)
	for _, ip := range stores {
		dbg.AddConditionalBreakpoint(ip, "x == 2")
	}

	vm.Run(1000)
	require.True(t, vm.Paused())
	assert.Equal(t, nmvalue.IntValue(2), vm.Global("x"))

	vm.SetPaused(false)
	vm.Run(1000)
	assert.True(t, vm.Halted())
	assert.Equal(t, nmvalue.IntValue(3), vm.Global("x"))
}

func TestDebuggerLogpointNeverPausesAndRendersTemplate(t *testing.T) {
	cs := compile(t, `
scene main {
	set score = 42
}
`)
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	var logged []string
	dbg := nmdebugger.New(cs, func(msg string) { logged = append(logged, msg) })
	dbg.Attach(vm)

	var storeIP uint32
	for i, instr := range cs.Instructions {
		if instr.Op == nmvalue.STORE_GLOBAL {
			storeIP = uint32(i)
			break
		}
	}
	dbg.AddLogpoint(storeIP, "score is {score}")

	vm.Run(1000)
	assert.True(t, vm.Halted())
	assert.False(t, vm.Paused())
	require.Len(t, logged, 1)
	assert.Equal(t, "score is ", logged[0])
}

func TestDebuggerStepIntoPausesAtNextInstruction(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1
	set y = 2
}
`)
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)
	dbg.StartStep(nmdebugger.StepInto)

	vm.Run(1000)
	assert.True(t, vm.Paused())
	assert.Equal(t, uint32(0), vm.IP())
}

// frameScript builds a raw two-instruction script (GOTO_SCENE then RETURN)
// to exercise call-stack depth directly: NM Script's grammar has no "call"
// or "return" statement, so RETURN is only reachable by hand-assembling the
// bytecode, the same way vm_test.go exercises it.
func frameScript() *nmcompiler.CompiledScript {
	return &nmcompiler.CompiledScript{
		Instructions: []nmvalue.Instruction{
			{Op: nmvalue.GOTO_SCENE, Operand: 1},
			{Op: nmvalue.RETURN},
		},
		StringTable:      nmvalue.NewStringTableFrom(nil),
		SceneEntryPoints: map[string]uint32{"main": 0},
		CharacterDecls:   map[string]nmcompiler.CharacterDecl{},
		SourceMap:        map[uint32]nmcompiler.SourceLoc{},
	}
}

func TestDebuggerStepOverPausesWhenDepthReturnsToStart(t *testing.T) {
	cs := frameScript()
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	vm.Run(1000) // executes GOTO_SCENE: pushes a frame, then waits
	require.True(t, vm.Waiting())
	require.Equal(t, 1, vm.CallDepth())

	dbg.StartStep(nmdebugger.StepOver) // stepStartDepth = 1
	vm.SignalContinue()
	vm.Run(1000)

	// depth is still 1 (== stepStartDepth) right before RETURN: StepOver's
	// "<=" condition matches, so it pauses before RETURN executes.
	assert.True(t, vm.Paused())
	assert.False(t, vm.Halted())
	assert.Equal(t, 1, vm.CallDepth())
}

func TestDebuggerStepOutDoesNotPauseAtSameDepth(t *testing.T) {
	cs := frameScript()
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	vm.Run(1000) // executes GOTO_SCENE: pushes a frame, then waits
	require.True(t, vm.Waiting())
	require.Equal(t, 1, vm.CallDepth())

	dbg.StartStep(nmdebugger.StepOut) // stepStartDepth = 1
	vm.SignalContinue()
	vm.Run(1000)

	// depth (1) is not strictly less than stepStartDepth (1) at RETURN, so
	// StepOut does not pause there (unlike StepOver's "<="); RETURN runs,
	// pops the frame, and halts the VM.
	assert.False(t, vm.Paused())
	assert.True(t, vm.Halted())
	assert.Equal(t, 0, vm.CallDepth())
}

func TestDebuggerRemoveAndToggle(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1
}
`)
	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	id := dbg.AddBreakpoint(0)
	assert.True(t, dbg.HasAt(0))

	dbg.Toggle(id)
	assert.False(t, dbg.HasAt(0))

	dbg.Toggle(id)
	assert.True(t, dbg.HasAt(0))

	dbg.Remove(id)
	assert.False(t, dbg.HasAt(0))
}

func TestDebuggerVariableChangeRingBuffer(t *testing.T) {
	src := "scene main {\n"
	for i := 0; i < 150; i++ {
		src += "\tset x = 1\n"
	}
	src += "}\n"
	cs := compile(t, src)

	vm := nmvm.New(cs, &nopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	dbg := nmdebugger.New(cs, nil)
	dbg.Attach(vm)

	vm.Run(10000)
	assert.True(t, vm.Halted())

	changes := dbg.VariableChanges()
	assert.Len(t, changes, 100)
	for _, c := range changes {
		assert.Equal(t, "x", c.Name)
	}
}
