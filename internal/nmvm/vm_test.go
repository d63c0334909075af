package nmvm_test

import (
	"testing"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvalue"
	"github.com/novelmind/novelmind/internal/nmvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCallbacks struct {
	nmvm.NopCallbacks
	said    []string
	waited  []float32
	choices [][]string
}

func (r *recordingCallbacks) Say(speaker, text string) { r.said = append(r.said, speaker+": "+text) }
func (r *recordingCallbacks) Wait(d float32)            { r.waited = append(r.waited, d) }
func (r *recordingCallbacks) Choice(opts []string)      { r.choices = append(r.choices, opts) }

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

func TestVMSayAndWait(t *testing.T) {
	cs := compile(t, `
scene main {
	say "hi"
	wait 2
}
`)
	cb := &recordingCallbacks{}
	vm := nmvm.New(cs, cb, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	vm.Run(1000)
	assert.True(t, vm.Waiting())
	assert.Equal(t, []string{": hi"}, cb.said)

	vm.SignalContinue()
	vm.Run(1000)
	assert.True(t, vm.Waiting())
	assert.Equal(t, []float32{2}, cb.waited)

	vm.SignalContinue()
	vm.Run(1000)
	assert.True(t, vm.Halted())
}

func TestVMChoiceSelection(t *testing.T) {
	cs := compile(t, `
scene main {
	set score = 0
	choice {
		"win" -> { set score = 1 }
		"lose" -> { set score = -1 }
	}
}
`)
	cb := &recordingCallbacks{}
	vm := nmvm.New(cs, cb, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	vm.Run(1000)
	require.True(t, vm.Waiting())
	require.Len(t, cb.choices, 1)
	assert.Equal(t, []string{"win", "lose"}, cb.choices[0])

	vm.SignalChoice(1)
	vm.Run(1000)
	assert.True(t, vm.Halted())
	assert.Equal(t, nmvalue.IntValue(-1), vm.Global("score"))
}

func TestVMDivisionByZeroRecovers(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1 / 0
}
`)
	cb := &recordingCallbacks{}
	vm := nmvm.New(cs, cb, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))
	vm.Run(1000)
	assert.True(t, vm.Halted())
	assert.Error(t, vm.LastError())
	assert.Equal(t, nmvalue.IntValue(0), vm.Global("x"))
}

func TestVMSecurityStackLimit(t *testing.T) {
	cs := compile(t, `
scene main {
	say "a"
}
`)
	cb := &recordingCallbacks{}
	limits := nmvm.DefaultLimits()
	limits.MaxStackSize = 1
	vm := nmvm.New(cs, cb, limits)
	require.NoError(t, vm.GotoScene("main"))

	vm.Run(1000)
	require.True(t, vm.Halted())
	var violation *nmvm.SecurityViolation
	require.ErrorAs(t, vm.LastError(), &violation)
	assert.Equal(t, nmvm.ViolationStackSize, violation.Kind)
}

func TestVMCallDepthIncreasesAcrossGotoScene(t *testing.T) {
	cs := compile(t, `
scene main {
	say "hi"
	goto next
}
scene next {
	say "bye"
}
`)
	cb := &recordingCallbacks{}
	vm := nmvm.New(cs, cb, nmvm.DefaultLimits())
	require.NoError(t, vm.GotoScene("main"))

	vm.Run(1000)
	assert.True(t, vm.Waiting())
	assert.Equal(t, 0, vm.CallDepth())

	vm.SignalContinue()
	vm.Run(1000) // executes GOTO_SCENE, pushing a frame, then pauses in "next"
	assert.True(t, vm.Waiting())
	assert.Equal(t, 1, vm.CallDepth())
}

func TestVMCallDepthUnchangedBySynchronousCall(t *testing.T) {
	cs := &nmcompiler.CompiledScript{
		Instructions: []nmvalue.Instruction{
			{Op: nmvalue.PUSH_STRING, Operand: 0},
			{Op: nmvalue.CALL, Operand: 0},
			{Op: nmvalue.POP},
			{Op: nmvalue.RETURN},
		},
		StringTable:      nmvalue.NewStringTableFrom([]string{"native_fn"}),
		SceneEntryPoints: map[string]uint32{"main": 0},
		CharacterDecls:   map[string]nmcompiler.CharacterDecl{},
		SourceMap:        map[uint32]nmcompiler.SourceLoc{},
	}
	cb := &recordingCallbacks{}
	limits := nmvm.DefaultLimits()
	limits.AllowNativeCalls = true
	vm := nmvm.New(cs, cb, limits)
	require.NoError(t, vm.GotoScene("main"))

	vm.Run(1000)
	assert.True(t, vm.Halted())
	assert.Equal(t, 0, vm.CallDepth(), "CALL pushes and pops within the same instruction")
}

func TestVMSecurityCallDepthLimit(t *testing.T) {
	cs := compile(t, `
scene main {
	goto main
}
`)
	cb := &recordingCallbacks{}
	limits := nmvm.DefaultLimits()
	limits.MaxCallDepth = 2
	vm := nmvm.New(cs, cb, limits)
	require.NoError(t, vm.GotoScene("main"))

	for i := 0; i < 10 && !vm.Halted(); i++ {
		vm.Run(1000)
		if !vm.Halted() {
			vm.SignalContinue()
		}
	}
	require.True(t, vm.Halted())
	var violation *nmvm.SecurityViolation
	require.ErrorAs(t, vm.LastError(), &violation)
	assert.Equal(t, nmvm.ViolationCallDepth, violation.Kind)
}
