package nmcompiler_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *nmcompiler.CompiledScript {
	t.Helper()
	prog, err := nmparser.ParseProgram("test.nms", []byte(src))
	require.NoError(t, err)
	res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
	require.False(t, res.HasErrors(), "%v", res.Errors())
	cs, err := nmcompiler.Compile("test.nms", prog)
	require.NoError(t, err)
	return cs
}

func TestCompileSimpleScene(t *testing.T) {
	cs := mustCompile(t, `
scene main {
	say "hello"
	wait 1.5
}
`)
	entry, ok := cs.SceneEntryPoints["main"]
	require.True(t, ok)
	assert.Equal(t, uint32(0), entry)

	var sawSay, sawWait, sawHalt bool
	for _, instr := range cs.Instructions {
		switch instr.Op {
		case nmvalue.SAY:
			sawSay = true
		case nmvalue.WAIT:
			sawWait = true
		case nmvalue.HALT:
			sawHalt = true
		}
	}
	assert.True(t, sawSay)
	assert.True(t, sawWait)
	assert.True(t, sawHalt)
}

func TestCompileSayEmitsExactInstructionSequence(t *testing.T) {
	cs := mustCompile(t, `
scene main {
	say "hi"
}
`)
	want := []nmvalue.Instruction{
		{Op: nmvalue.PUSH_STRING, Operand: 0},
		{Op: nmvalue.SAY, Operand: 0},
		{Op: nmvalue.HALT, Operand: 0},
	}
	if diff := cmp.Diff(want, cs.Instructions); diff != "" {
		t.Errorf("instruction sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileGotoUnknownSceneFails(t *testing.T) {
	prog, err := nmparser.ParseProgram("test.nms", []byte(`
scene main {
	goto nowhere
}
`))
	require.NoError(t, err)
	res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
	require.True(t, res.HasErrors())
}

func TestCompileChoiceStructure(t *testing.T) {
	cs := mustCompile(t, `
scene main {
	choice {
		"go left" -> { say "left" }
		"go right" -> { say "right" }
	}
}
`)
	var sawChoice bool
	for _, instr := range cs.Instructions {
		if instr.Op == nmvalue.CHOICE {
			sawChoice = true
			assert.Equal(t, uint32(2), instr.Operand)
		}
	}
	assert.True(t, sawChoice)
}

func TestCompileTooManyChoicesFails(t *testing.T) {
	src := "scene main {\n\tchoice {\n"
	for i := 0; i < nmcompiler.MaxChoiceOptions+1; i++ {
		src += "\t\t\"opt\" -> { wait 0 }\n"
	}
	src += "\t}\n}\n"

	prog, err := nmparser.ParseProgram("test.nms", []byte(src))
	require.NoError(t, err)
	res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
	require.False(t, res.HasErrors())

	_, err = nmcompiler.Compile("test.nms", prog)
	require.Error(t, err)
	var cerr *nmcompiler.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, nmcompiler.KindTooManyChoices, cerr.Kind)
}

func TestEncodeDecodeBytecodeRoundtrip(t *testing.T) {
	cs := mustCompile(t, `
character alice {
	name: "Alice"
	colour: #ff0000
}
scene main {
	show character alice "alice_happy.png"
	say alice "Hi there!"
}
`)
	data, err := nmcompiler.EncodeBytecode(cs, 0)
	require.NoError(t, err)

	decoded, err := nmcompiler.DecodeBytecode(data)
	require.NoError(t, err)

	assert.Equal(t, cs.Instructions, decoded.Instructions)
	assert.Equal(t, cs.StringTable.Strings(), decoded.StringTable.Strings())
	assert.Equal(t, cs.SceneEntryPoints, decoded.SceneEntryPoints)
}
