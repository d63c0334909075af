// Package nmcompiler compiles a validated nmast.Program to the register-free
// stack bytecode the VM executes (§4.4). String interning, jump
// back-patching via a pending-list pattern, and portable float
// serialization are adapted from the teacher's lang/compiler package
// (itself adapted from Starlark's bytecode compiler); the control-flow
// shape is much simpler here because NM Script compiles to a flat
// instruction stream with no basic-block CFG, no locals, and no closures.
package nmcompiler

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmtoken"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

// pendingJump records a forward jump emitted with a placeholder operand,
// patched once its target label's address is known (§4.4).
type pendingJump struct {
	instrIndex int
	target     string
}

type compiler struct {
	instructions []nmvalue.Instruction
	strings      *nmvalue.StringTable
	labels       map[string]uint32
	pending      []pendingJump
	sourceMap    map[uint32]SourceLoc

	file         string
	currentScene string
	labelCounter int
}

// Compile compiles prog into a CompiledScript. prog is assumed to have
// already passed nmvalidator.Validate with no errors (§4.4: "An AST that
// resulted in errors ... should never be passed to the compiler").
func Compile(filename string, prog *nmast.Program) (*CompiledScript, error) {
	c := &compiler{
		strings:   nmvalue.NewStringTable(),
		labels:    make(map[string]uint32),
		sourceMap: make(map[uint32]SourceLoc),
		file:      filename,
	}

	characters := make(map[string]CharacterDecl, len(prog.Characters))
	for _, decl := range prog.Characters {
		characters[decl.ID] = CharacterDecl{ID: decl.ID, Name: decl.Name, Colour: decl.Colour}
	}

	if len(prog.GlobalStmts) > 0 {
		if err := c.compileStmts(prog.GlobalStmts); err != nil {
			return nil, err
		}
		c.emit(nmvalue.HALT, 0, nmtoken.Position{})
	}

	sceneEntries := make(map[string]uint32, len(prog.Scenes))
	for _, sc := range prog.Scenes {
		c.currentScene = sc.Name
		entry := uint32(len(c.instructions))
		c.labels[sc.Name] = entry
		sceneEntries[sc.Name] = entry
		if err := c.compileStmts(sc.Body); err != nil {
			return nil, err
		}
		c.emit(nmvalue.HALT, 0, sc.Pos())
	}

	if err := c.patchPending(); err != nil {
		return nil, err
	}

	return &CompiledScript{
		Instructions:     c.instructions,
		StringTable:      c.strings,
		SceneEntryPoints: sceneEntries,
		CharacterDecls:   characters,
		SourceMap:        c.sourceMap,
	}, nil
}

// emit appends an instruction and, if pos is valid, records the source map
// entry for it (§4.4: "for every emitted instruction whose AST node has a
// valid line"). It returns the instruction's index.
func (c *compiler) emit(op nmvalue.Opcode, operand uint32, pos nmtoken.Position) int {
	idx := len(c.instructions)
	c.instructions = append(c.instructions, nmvalue.Instruction{Op: op, Operand: operand})
	if pos.IsValid() {
		c.sourceMap[uint32(idx)] = SourceLoc{File: pos.File, Line: pos.Line, Column: pos.Column, Scene: c.currentScene}
	}
	return idx
}

// emitJump emits a jump-family instruction with a placeholder operand and
// records it for back-patching to target's eventual address.
func (c *compiler) emitJump(op nmvalue.Opcode, target string, pos nmtoken.Position) {
	idx := c.emit(op, 0, pos)
	c.pending = append(c.pending, pendingJump{instrIndex: idx, target: target})
}

// newLabel mints a unique synthetic label for generated control-flow
// targets (if/else ends, choice skip/end labels, short-circuit ends).
func (c *compiler) newLabel(prefix string) string {
	c.labelCounter++
	return fmt.Sprintf("__%s_%d", prefix, c.labelCounter)
}

// placeLabel binds name to the current instruction address.
func (c *compiler) placeLabel(name string) {
	c.labels[name] = uint32(len(c.instructions))
}

// patchPending resolves every pending jump against c.labels (§4.4).
// An unresolved target is a user-facing InvalidGotoTarget error (scene
// names come from goto/choice targets that nmvalidator should already have
// rejected, but the compiler re-checks defensively); an out-of-bounds
// instrIndex would be a compiler-internal invariant violation and is
// reported as InternalCompilerError rather than silently ignored.
func (c *compiler) patchPending() error {
	names := make([]string, 0, len(c.labels))
	for n := range c.labels {
		names = append(names, n)
	}
	for _, pj := range c.pending {
		if pj.instrIndex < 0 || pj.instrIndex >= len(c.instructions) {
			return &CompileError{Kind: KindInternalCompilerError, Message: fmt.Sprintf("back-patch index %d out of bounds (program has %d instructions)", pj.instrIndex, len(c.instructions))}
		}
		addr, ok := c.labels[pj.target]
		if !ok {
			return &CompileError{
				Kind:        KindInvalidGotoTarget,
				Message:     fmt.Sprintf("unresolved jump target %q", pj.target),
				Suggestions: nmvalidator.NearMatches(pj.target, names, 2, 3),
			}
		}
		c.instructions[pj.instrIndex].Operand = addr
	}
	return nil
}
