package nmruntime_test

import (
	"testing"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmruntime"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestRuntimeLoadAndGotoSceneStartsRunning(t *testing.T) {
	cs := compile(t, `
scene main {
	say "hi"
}
`)
	rt := nmruntime.New(cs, nmvm.NopCallbacks{}, nmvm.DefaultLimits())
	assert.Equal(t, nmruntime.Idle, rt.State())

	require.NoError(t, rt.Load())
	assert.Equal(t, nmruntime.Ready, rt.State())

	require.NoError(t, rt.GotoScene("main"))
	rt.Update(0)
	assert.Equal(t, nmruntime.WaitingInput, rt.State())

	events := rt.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, nmruntime.SceneChange, events[0].Type)
	assert.Equal(t, "main", events[0].Name)
	assert.Equal(t, nmruntime.DialogueStart, events[1].Type)
	assert.Equal(t, "hi", events[1].Value)
}

func TestRuntimeWaitingTimerCountsDownAndResumes(t *testing.T) {
	cs := compile(t, `
scene main {
	wait 1.0
	say "done"
}
`)
	rt := nmruntime.New(cs, nmvm.NopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, rt.Load())
	require.NoError(t, rt.GotoScene("main"))
	rt.Update(0)
	require.Equal(t, nmruntime.WaitingTimer, rt.State())

	rt.Update(0.4)
	assert.Equal(t, nmruntime.WaitingTimer, rt.State())

	rt.Update(0.7)
	assert.Equal(t, nmruntime.WaitingInput, rt.State())
}

func TestRuntimeChoiceSelection(t *testing.T) {
	cs := compile(t, `
scene main {
	choice {
		"a" -> { say "picked a" }
		"b" -> { say "picked b" }
	}
}
`)
	rt := nmruntime.New(cs, nmvm.NopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, rt.Load())
	require.NoError(t, rt.GotoScene("main"))
	rt.Update(0)
	require.Equal(t, nmruntime.WaitingChoice, rt.State())

	rt.Choose(1)
	rt.Update(0)
	assert.Equal(t, nmruntime.WaitingInput, rt.State())

	events := rt.DrainEvents()
	var sawSelected bool
	for _, ev := range events {
		if ev.Type == nmruntime.ChoiceSelected {
			sawSelected = true
			assert.Equal(t, "1", ev.Value)
		}
	}
	assert.True(t, sawSelected)
}

func TestRuntimeHaltsAtEndOfScript(t *testing.T) {
	cs := compile(t, `
scene main {
	set x = 1
}
`)
	rt := nmruntime.New(cs, nmvm.NopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, rt.Load())
	require.NoError(t, rt.GotoScene("main"))
	rt.Update(0)
	assert.Equal(t, nmruntime.Halted, rt.State())

	events := rt.DrainEvents()
	var sawStop bool
	for _, ev := range events {
		if ev.Type == nmruntime.Stop {
			sawStop = true
		}
	}
	assert.True(t, sawStop)
}

func TestRuntimeStopRequestsQuit(t *testing.T) {
	cs := compile(t, `
scene main {
	say "a"
	say "b"
}
`)
	rt := nmruntime.New(cs, nmvm.NopCallbacks{}, nmvm.DefaultLimits())
	require.NoError(t, rt.Load())
	require.NoError(t, rt.GotoScene("main"))
	rt.Update(0)
	require.Equal(t, nmruntime.WaitingInput, rt.State())

	rt.Stop()
	rt.Continue()
	rt.Update(0)
	assert.Equal(t, nmruntime.Halted, rt.State())
}
