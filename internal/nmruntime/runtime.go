// Package nmruntime implements the script runtime of §4.7: it owns a VM and
// exposes the host-facing state machine (Idle/Ready/Running/WaitingInput/
// WaitingChoice/WaitingTimer/Halted) plus a synchronous ScriptEvent stream.
// Its update/signal shape is adapted from the teacher's lang/machine.Thread,
// generalized from Thread's single RunProgram call into a resumable,
// tick-driven loop since a visual novel script suspends and resumes across
// many host frames instead of running to completion in one call.
package nmruntime

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmvm"
)

// State is the runtime's host-facing state machine (§4.7).
type State int

const (
	Idle State = iota
	Ready
	Running
	WaitingInput
	WaitingChoice
	WaitingTimer
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case WaitingInput:
		return "WaitingInput"
	case WaitingChoice:
		return "WaitingChoice"
	case WaitingTimer:
		return "WaitingTimer"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// EventType enumerates the ScriptEvent variants of §4.7.
type EventType int

const (
	SceneChange EventType = iota
	DialogueStart
	ChoiceStart
	ChoiceSelected
	Transition
	PlaybackRequest
	Stop
)

// ScriptEvent is one entry of the runtime's event stream (§4.7). Within a
// single Update, event emission order is exactly the instruction execution
// order (§5 "Ordering").
type ScriptEvent struct {
	Type  EventType
	Name  string
	Value string
}

// DefaultMaxStepsPerUpdate bounds how many VM instructions one Update drives
// before yielding back to the host, so a pathological script can never stall
// a host frame (§4.7 "up to N VM steps (configurable)").
const DefaultMaxStepsPerUpdate = 10000

// Runtime drives a single VM through its host-facing state machine, emitting
// ScriptEvents and forwarding presentation calls to a host-supplied
// nmvm.HostCallbacks (§4.7).
type Runtime struct {
	vm     *nmvm.VM
	script *nmcompiler.CompiledScript
	sink   nmvm.HostCallbacks

	state State
	timer float32

	ipToScene map[uint32]string

	maxStepsPerUpdate int

	events []ScriptEvent
}

// New constructs a Runtime in the Idle state. sink receives every
// presentation call the VM drives (Say, ShowBackground, ...); the Runtime
// itself only observes them to track state and emit events.
func New(script *nmcompiler.CompiledScript, sink nmvm.HostCallbacks, limits nmvm.Limits) *Runtime {
	rt := &Runtime{
		script:            script,
		sink:              sink,
		state:             Idle,
		maxStepsPerUpdate: DefaultMaxStepsPerUpdate,
		ipToScene:         make(map[uint32]string, len(script.SceneEntryPoints)),
	}
	for name, ip := range script.SceneEntryPoints {
		rt.ipToScene[ip] = name
	}
	rt.vm = nmvm.New(script, runtimeCallbacks{rt}, limits)
	return rt
}

// Attach wires a debugger to the underlying VM (§4.6).
func (rt *Runtime) Attach(d nmvm.Debugger) { rt.vm.Attach(d) }

// VM exposes the underlying VM, e.g. for debugger inspection or tests.
func (rt *Runtime) VM() *nmvm.VM { return rt.vm }

// State reports the current host-facing state.
func (rt *Runtime) State() State { return rt.state }

// SetMaxStepsPerUpdate overrides DefaultMaxStepsPerUpdate.
func (rt *Runtime) SetMaxStepsPerUpdate(n int) { rt.maxStepsPerUpdate = n }

// Load transitions Idle to Ready; the script is already resident in memory
// by the time a Runtime is constructed, so Load only validates the state
// transition (§4.7 "Idle --load--> Ready").
func (rt *Runtime) Load() error {
	if rt.state != Idle {
		return fmt.Errorf("nmruntime: Load called from state %s, expected Idle", rt.state)
	}
	rt.state = Ready
	return nil
}

// GotoScene looks up name's entry point and jumps the VM there, un-halting
// it if needed (§4.7). Valid from Ready or Halted; a scene change mid-script
// should instead be expressed as a `goto` statement compiled into the script.
func (rt *Runtime) GotoScene(name string) error {
	if err := rt.vm.GotoScene(name); err != nil {
		return err
	}
	rt.state = Running
	rt.emit(SceneChange, name, "")
	return nil
}

// Continue resumes a VM suspended on SAY/MOVE_CHARACTER/GOTO_SCENE
// (§5 "Suspension points").
func (rt *Runtime) Continue() {
	rt.vm.SignalContinue()
	rt.state = Running
}

// Choose resumes a VM suspended on CHOICE, selecting option index.
func (rt *Runtime) Choose(index int) {
	rt.vm.SignalChoice(index)
	rt.state = Running
	rt.emit(ChoiceSelected, "", fmt.Sprintf("%d", index))
}

// Stop requests cancellation (§5 "Cancellation"): the VM halts cleanly at
// the top of its next step.
func (rt *Runtime) Stop() {
	rt.vm.RequestQuit()
	rt.emit(Stop, "", "")
}

// Update drives the state machine for one host tick (§4.7).
func (rt *Runtime) Update(dt float32) {
	switch rt.state {
	case Idle, Ready, WaitingInput, WaitingChoice:
		// nothing to drive: Ready awaits GotoScene, WaitingInput/Choice await a
		// host signal.
		return
	case WaitingTimer:
		rt.timer -= dt
		if rt.timer > 0 {
			return
		}
		rt.vm.SignalContinue()
		rt.state = Running
		rt.runSteps()
	case Running:
		rt.runSteps()
	case Halted:
		return
	}
}

func (rt *Runtime) runSteps() {
	rt.vm.Run(rt.maxStepsPerUpdate)
	if rt.vm.Halted() {
		rt.state = Halted
		rt.emit(Stop, "", "")
	}
	// if still Waiting, one of the HostCallbacks methods below already moved
	// rt.state to the correct Waiting* substate; if Paused (debugger pause),
	// rt.state is left as Running so the next Update resumes once unpaused.
}

// DrainEvents returns and clears the accumulated event stream, oldest first.
func (rt *Runtime) DrainEvents() []ScriptEvent {
	out := rt.events
	rt.events = nil
	return out
}

func (rt *Runtime) emit(t EventType, name, value string) {
	rt.events = append(rt.events, ScriptEvent{Type: t, Name: name, Value: value})
}

// runtimeCallbacks implements nmvm.HostCallbacks on the VM's behalf: kept as
// a distinct type (rather than methods directly on *Runtime) because the
// interface's GotoScene(targetIP uint32) would otherwise collide with
// Runtime's own public GotoScene(name string) host API (§4.7) — Go has no
// method overloading. Each method updates runtime state and/or emits a
// ScriptEvent before forwarding to sink, the host-supplied presentation
// implementation.
type runtimeCallbacks struct{ rt *Runtime }

func (c runtimeCallbacks) Say(speaker, text string) {
	c.rt.state = WaitingInput
	c.rt.emit(DialogueStart, speaker, text)
	c.rt.sink.Say(speaker, text)
}

func (c runtimeCallbacks) ShowBackground(resource, transition string, duration float32) {
	c.rt.sink.ShowBackground(resource, transition, duration)
}

func (c runtimeCallbacks) ShowCharacter(id, resource string, pos nmvm.ScreenPosition, x, y float32, transition string, duration float32) {
	c.rt.sink.ShowCharacter(id, resource, pos, x, y, transition, duration)
}

func (c runtimeCallbacks) HideCharacter(id, transition string, duration float32) {
	c.rt.sink.HideCharacter(id, transition, duration)
}

func (c runtimeCallbacks) MoveCharacter(id string, pos nmvm.ScreenPosition, x, y, duration float32) {
	c.rt.state = WaitingInput
	c.rt.sink.MoveCharacter(id, pos, x, y, duration)
}

func (c runtimeCallbacks) Choice(options []string) {
	c.rt.state = WaitingChoice
	c.rt.emit(ChoiceStart, "", fmt.Sprintf("%d options", len(options)))
	c.rt.sink.Choice(options)
}

func (c runtimeCallbacks) Wait(duration float32) {
	c.rt.state = WaitingTimer
	c.rt.timer = duration
	c.rt.sink.Wait(duration)
}

func (c runtimeCallbacks) Transition(kind string, duration float32) {
	c.rt.emit(Transition, kind, fmt.Sprintf("%g", duration))
	c.rt.sink.Transition(kind, duration)
}

func (c runtimeCallbacks) PlaySound(resource string) {
	c.rt.emit(PlaybackRequest, "sound", resource)
	c.rt.sink.PlaySound(resource)
}

func (c runtimeCallbacks) PlayMusic(resource string) {
	c.rt.emit(PlaybackRequest, "music", resource)
	c.rt.sink.PlayMusic(resource)
}

func (c runtimeCallbacks) StopMusic(fadeout float32) {
	c.rt.emit(PlaybackRequest, "stop_music", fmt.Sprintf("%g", fadeout))
	c.rt.sink.StopMusic(fadeout)
}

// GotoScene fires when the VM itself executes a GOTO_SCENE instruction (a
// `goto` statement inside the script), as distinct from Runtime's own
// GotoScene(name string) host API above.
func (c runtimeCallbacks) GotoScene(targetIP uint32) {
	c.rt.state = WaitingInput
	if name, ok := c.rt.ipToScene[targetIP]; ok {
		c.rt.emit(SceneChange, name, "")
	} else {
		c.rt.emit(SceneChange, fmt.Sprintf("ip:%d", targetIP), "")
	}
}

func (c runtimeCallbacks) Call(name string) {
	c.rt.sink.Call(name)
}
