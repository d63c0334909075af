// Package nmdebugger implements the script debugger of §4.6: breakpoints
// (normal, conditional, logpoint), StepInto/StepOver/StepOut step modes
// driven purely from the VM's before/after-instruction hooks, a
// variable-change ring buffer, and source-location lookup from the
// compiler-emitted source map. Breakpoint identity is grounded on
// github.com/google/uuid, the same identity-generation library the rest of
// the retrieval pack reaches for wherever a stable external id is needed.
package nmdebugger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmvalue"
	"github.com/novelmind/novelmind/internal/nmvm"
)

// BreakpointKind distinguishes the three breakpoint flavors of §4.6.
type BreakpointKind int

const (
	Normal BreakpointKind = iota
	Conditional
	Logpoint
)

// Breakpoint is one registered stop (or log) point.
type Breakpoint struct {
	ID        string
	IP        uint32
	Kind      BreakpointKind
	Condition string // Conditional only
	Template  string // Logpoint only, "{var}" substituted
	Enabled   bool
}

// StepMode selects how the debugger decides to pause during a step session
// (§4.6).
type StepMode int

const (
	StepNone StepMode = iota
	StepInto
	StepOver
	StepOut
)

// VariableChange is one ring-buffer entry (§4.6: "up to 100 changes").
type VariableChange struct {
	Name    string
	Old     nmvalue.Value
	New     nmvalue.Value
	IP      uint32
	Source  nmcompiler.SourceLoc
}

const maxVariableChanges = 100

// LogFunc receives a rendered logpoint message; it never pauses the VM.
type LogFunc func(message string)

// Debugger attaches to exactly one VM (§4.6 "Attached via attach(vm)").
type Debugger struct {
	vm     *nmvm.VM
	script *nmcompiler.CompiledScript

	breakpoints map[string]*Breakpoint
	byIP        map[uint32][]*Breakpoint

	stepMode       StepMode
	stepStartDepth int

	// resumeIP is the ip a breakpoint last paused at, while resumePending.
	resumeIP      uint32
	resumePending bool

	changes []VariableChange

	onLog LogFunc
}

// New constructs a Debugger for script; call Attach to wire it to a VM.
func New(script *nmcompiler.CompiledScript, onLog LogFunc) *Debugger {
	return &Debugger{
		script:      script,
		breakpoints: make(map[string]*Breakpoint),
		byIP:        make(map[uint32][]*Breakpoint),
		onLog:       onLog,
	}
}

// Attach wires d to vm as its Debugger (§4.6).
func (d *Debugger) Attach(vm *nmvm.VM) {
	d.vm = vm
	vm.Attach(d)
}

func (d *Debugger) Detach() {
	if d.vm != nil {
		d.vm.Detach()
	}
	d.vm = nil
}

// AddBreakpoint registers a normal breakpoint at ip and returns its id.
func (d *Debugger) AddBreakpoint(ip uint32) string {
	return d.add(ip, Normal, "", "")
}

// AddConditionalBreakpoint pauses at ip only when condition evaluates
// truthy against the VM's current globals/flags.
func (d *Debugger) AddConditionalBreakpoint(ip uint32, condition string) string {
	return d.add(ip, Conditional, condition, "")
}

// AddLogpoint never pauses; it renders template (substituting "{var}" with
// the stringified global/flag value) through onLog whenever ip executes.
func (d *Debugger) AddLogpoint(ip uint32, template string) string {
	return d.add(ip, Logpoint, "", template)
}

func (d *Debugger) add(ip uint32, kind BreakpointKind, condition, template string) string {
	id := uuid.NewString()
	bp := &Breakpoint{ID: id, IP: ip, Kind: kind, Condition: condition, Template: template, Enabled: true}
	d.breakpoints[id] = bp
	d.byIP[ip] = append(d.byIP[ip], bp)
	return id
}

// Remove deletes a breakpoint by id.
func (d *Debugger) Remove(id string) {
	bp, ok := d.breakpoints[id]
	if !ok {
		return
	}
	delete(d.breakpoints, id)
	list := d.byIP[bp.IP]
	for i, b := range list {
		if b.ID == id {
			d.byIP[bp.IP] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Toggle flips a breakpoint's enabled state.
func (d *Debugger) Toggle(id string) {
	if bp, ok := d.breakpoints[id]; ok {
		bp.Enabled = !bp.Enabled
	}
}

func (d *Debugger) ClearAll() {
	d.breakpoints = make(map[string]*Breakpoint)
	d.byIP = make(map[uint32][]*Breakpoint)
}

// HasAt reports whether any enabled breakpoint sits at ip.
func (d *Debugger) HasAt(ip uint32) bool {
	for _, bp := range d.byIP[ip] {
		if bp.Enabled {
			return true
		}
	}
	return false
}

// StartStep begins a stepping session of the given mode, capturing the
// current call depth as the comparison baseline (§4.6).
func (d *Debugger) StartStep(mode StepMode) {
	d.stepMode = mode
	if d.vm != nil {
		d.stepStartDepth = d.vm.CallDepth()
	}
}

// SourceLocation looks up ip's source location from the compiler-emitted
// map, the empty SourceLoc if ip has none.
func (d *Debugger) SourceLocation(ip uint32) (nmcompiler.SourceLoc, bool) {
	loc, ok := d.script.SourceMap[ip]
	return loc, ok
}

// VariableChanges returns the ring buffer contents, oldest first.
func (d *Debugger) VariableChanges() []VariableChange {
	out := make([]VariableChange, len(d.changes))
	copy(out, d.changes)
	return out
}

// BeforeInstruction implements nmvm.Debugger: evaluates breakpoints and step
// conditions to decide whether to pause at ip.
func (d *Debugger) BeforeInstruction(ip uint32) bool {
	// A breakpoint that paused at ip does not fire again when execution
	// resumes at that same ip, so the paused instruction gets to run.
	resuming := d.resumePending && d.resumeIP == ip
	d.resumePending = false
	for _, bp := range d.byIP[ip] {
		if !bp.Enabled {
			continue
		}
		switch bp.Kind {
		case Normal:
			if !resuming {
				d.resumeIP, d.resumePending = ip, true
				return false
			}
		case Conditional:
			if !resuming && d.evalCondition(bp.Condition) {
				d.resumeIP, d.resumePending = ip, true
				return false
			}
		case Logpoint:
			if d.onLog != nil {
				d.onLog(d.renderTemplate(bp.Template))
			}
		}
	}

	switch d.stepMode {
	case StepInto:
		d.stepMode = StepNone
		return false
	case StepOver:
		if d.vm.CallDepth() <= d.stepStartDepth {
			d.stepMode = StepNone
			return false
		}
	case StepOut:
		if d.vm.CallDepth() < d.stepStartDepth {
			d.stepMode = StepNone
			return false
		}
	}
	return true
}

func (d *Debugger) AfterInstruction(ip uint32) {}

// TrackVariableChange implements nmvm.Debugger (§4.6: called on every
// STORE_GLOBAL, ring-buffered to the most recent 100 entries).
func (d *Debugger) TrackVariableChange(name string, old, new nmvalue.Value) {
	loc, _ := d.SourceLocation(d.ipOrZero())
	d.changes = append(d.changes, VariableChange{Name: name, Old: old, New: new, IP: d.ipOrZero(), Source: loc})
	if len(d.changes) > maxVariableChanges {
		d.changes = d.changes[len(d.changes)-maxVariableChanges:]
	}
}

func (d *Debugger) ipOrZero() uint32 {
	if d.vm == nil {
		return 0
	}
	return d.vm.IP()
}

// evalCondition re-uses the script expression parser to evaluate a
// conditional breakpoint's guard expression against the VM's current
// globals/flags (§4.6: "never eval untrusted host code").
func (d *Debugger) evalCondition(expr string) bool {
	if d.vm == nil {
		return false
	}
	ast, err := nmparser.ParseExpr("<breakpoint>", []byte(expr))
	if err != nil {
		return false
	}
	v, err := evalExpr(ast, d.vm)
	if err != nil {
		return false
	}
	return v.AsBool()
}

func (d *Debugger) renderTemplate(template string) string {
	if d.vm == nil {
		return template
	}
	var b strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			end := strings.IndexByte(template[i:], '}')
			if end >= 0 {
				name := template[i+1 : i+end]
				fmt.Fprint(&b, d.vm.Global(name).AsString())
				i += end + 1
				continue
			}
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}
