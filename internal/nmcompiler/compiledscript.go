package nmcompiler

import "github.com/novelmind/novelmind/internal/nmvalue"

// CharacterDecl is the compiled form of an nmast.CharacterDecl (§3).
type CharacterDecl struct {
	ID     string
	Name   string
	Colour string
}

// SourceLoc is one entry of a CompiledScript's source map (§3, §4.4):
// maps an instruction index back to where it came from, for the debugger.
type SourceLoc struct {
	File   string
	Line   int
	Column int
	Scene  string
}

// CompiledScript is the immutable artifact the compiler produces and the VM
// consumes (§3). Once constructed it must not be mutated; the VM treats it
// as read-only for the lifetime of the run.
type CompiledScript struct {
	Instructions     []nmvalue.Instruction
	StringTable      *nmvalue.StringTable
	SceneEntryPoints map[string]uint32
	CharacterDecls   map[string]CharacterDecl
	SourceMap        map[uint32]SourceLoc
}
