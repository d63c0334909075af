package nmvm

import "github.com/novelmind/novelmind/internal/nmvalue"

// execute dispatches a single decoded instruction. Errors that §7 classifies
// as recoverable (StackUnderflow, DivisionByZero) are logged via lastErr and
// the VM keeps running; errors classified as fatal halt the VM.
func (vm *VM) execute(instr nmvalue.Instruction) {
	op, operand := instr.Op, instr.Operand

	switch op {
	case nmvalue.NOP:
		// no-op

	case nmvalue.HALT:
		vm.halted = true

	case nmvalue.JUMP:
		vm.jumpTo(operand)

	case nmvalue.JUMP_IF:
		if vm.pop().AsBool() {
			vm.jumpTo(operand)
		}

	case nmvalue.JUMP_IF_NOT:
		if !vm.pop().AsBool() {
			vm.jumpTo(operand)
		}

	case nmvalue.PUSH_INT:
		vm.push(nmvalue.IntValue(int32(operand)))

	case nmvalue.PUSH_FLOAT:
		vm.push(nmvalue.FloatValue(nmvalue.BitsToFloat32(operand)))

	case nmvalue.PUSH_STRING:
		vm.push(nmvalue.StringValue(vm.resolveString(operand)))

	case nmvalue.PUSH_BOOL:
		vm.push(nmvalue.BoolValue(operand != 0))

	case nmvalue.PUSH_NULL:
		vm.push(nmvalue.NullValue())

	case nmvalue.POP:
		vm.pop()

	case nmvalue.DUP:
		v := vm.peek()
		vm.push(v)

	case nmvalue.LOAD_GLOBAL:
		vm.push(vm.globals[vm.resolveString(operand)])

	case nmvalue.STORE_GLOBAL:
		name := vm.resolveString(operand)
		old := vm.globals[name]
		newVal := vm.pop()
		vm.setVariable(name, newVal)
		if vm.debugger != nil {
			vm.debugger.TrackVariableChange(name, old, newVal)
		}

	case nmvalue.SET_FLAG:
		name := vm.resolveString(operand)
		old := vm.flags[name]
		newVal := vm.pop().AsBool()
		vm.flags[name] = newVal
		if vm.debugger != nil {
			vm.debugger.TrackVariableChange(name, nmvalue.BoolValue(old), nmvalue.BoolValue(newVal))
		}

	case nmvalue.CHECK_FLAG:
		vm.push(nmvalue.BoolValue(vm.flags[vm.resolveString(operand)]))

	case nmvalue.ADD:
		vm.binaryNumeric(func(a, b float32) float32 { return a + b })
	case nmvalue.SUB:
		vm.binaryNumeric(func(a, b float32) float32 { return a - b })
	case nmvalue.MUL:
		vm.binaryNumeric(func(a, b float32) float32 { return a * b })
	case nmvalue.DIV:
		b := vm.pop()
		a := vm.pop()
		if b.AsFloat() == 0 {
			vm.lastErr = errDivisionByZero
			vm.push(nmvalue.IntValue(0))
			return
		}
		vm.push(nmvalue.FloatValue(a.AsFloat() / b.AsFloat()))
	case nmvalue.MOD:
		b := vm.pop()
		a := vm.pop()
		if b.AsInt() == 0 {
			vm.lastErr = errDivisionByZero
			vm.push(nmvalue.IntValue(0))
			return
		}
		vm.push(nmvalue.IntValue(a.AsInt() % b.AsInt()))
	case nmvalue.NEG:
		a := vm.pop()
		if a.Kind() == nmvalue.Int {
			vm.push(nmvalue.IntValue(-a.AsInt()))
		} else {
			vm.push(nmvalue.FloatValue(-a.AsFloat()))
		}

	case nmvalue.EQ:
		b, a := vm.pop(), vm.pop()
		vm.push(nmvalue.BoolValue(nmvalue.Equal(a, b)))
	case nmvalue.NE:
		b, a := vm.pop(), vm.pop()
		vm.push(nmvalue.BoolValue(!nmvalue.Equal(a, b)))
	case nmvalue.LT:
		vm.compare(func(lt bool) bool { return lt })
	case nmvalue.LE:
		b, a := vm.pop(), vm.pop()
		lt, err := nmvalue.Less(a, b)
		vm.lastErr = err
		vm.push(nmvalue.BoolValue(lt || nmvalue.Equal(a, b)))
	case nmvalue.GT:
		b, a := vm.pop(), vm.pop()
		lt, err := nmvalue.Less(a, b)
		vm.lastErr = err
		vm.push(nmvalue.BoolValue(!lt && !nmvalue.Equal(a, b)))
	case nmvalue.GE:
		b, a := vm.pop(), vm.pop()
		lt, err := nmvalue.Less(a, b)
		vm.lastErr = err
		vm.push(nmvalue.BoolValue(!lt))

	case nmvalue.AND:
		b, a := vm.pop(), vm.pop()
		vm.push(nmvalue.BoolValue(a.AsBool() && b.AsBool()))
	case nmvalue.OR:
		b, a := vm.pop(), vm.pop()
		vm.push(nmvalue.BoolValue(a.AsBool() || b.AsBool()))
	case nmvalue.NOT:
		vm.push(nmvalue.BoolValue(!vm.pop().AsBool()))

	case nmvalue.SAY:
		text := vm.pop().AsString()
		speaker := vm.pop().AsString()
		hasSpeaker := vm.pop().AsBool()
		if !hasSpeaker {
			speaker = ""
		}
		vm.callbacks.Say(speaker, text)
		vm.waiting = true

	case nmvalue.SHOW_BACKGROUND:
		hasDuration := vm.pop().AsBool()
		duration := vm.pop().AsFloat()
		hasTransition := vm.pop().AsBool()
		transition := vm.pop().AsString()
		resource := vm.pop().AsString()
		if !hasTransition {
			transition = ""
		}
		if !hasDuration {
			duration = 0
		}
		vm.callbacks.ShowBackground(resource, transition, duration)

	case nmvalue.SHOW_CHARACTER:
		hasDuration := vm.pop().AsBool()
		duration := vm.pop().AsFloat()
		hasTransition := vm.pop().AsBool()
		transition := vm.pop().AsString()
		customY := vm.pop().AsFloat()
		customX := vm.pop().AsFloat()
		hasCustom := vm.pop().AsBool()
		pos := ScreenPosition(vm.pop().AsInt())
		_ = vm.pop().AsBool() // HasPos: pos always carries a value, left/center/right/custom default included
		resource := vm.pop().AsString()
		id := vm.pop().AsString()
		if !hasTransition {
			transition = ""
		}
		if !hasDuration {
			duration = 0
		}
		if !hasCustom {
			customX, customY = 0, 0
		}
		vm.callbacks.ShowCharacter(id, resource, pos, customX, customY, transition, duration)

	case nmvalue.HIDE_CHARACTER:
		hasDuration := vm.pop().AsBool()
		duration := vm.pop().AsFloat()
		hasTransition := vm.pop().AsBool()
		transition := vm.pop().AsString()
		id := vm.pop().AsString()
		if !hasTransition {
			transition = ""
		}
		if !hasDuration {
			duration = 0
		}
		vm.callbacks.HideCharacter(id, transition, duration)

	case nmvalue.MOVE_CHARACTER:
		duration := vm.pop().AsFloat()
		customY := vm.pop().AsFloat()
		customX := vm.pop().AsFloat()
		pos := ScreenPosition(vm.pop().AsInt())
		hasCustom := vm.pop().AsBool()
		id := vm.pop().AsString()
		if !hasCustom {
			customX, customY = 0, 0
		}
		vm.callbacks.MoveCharacter(id, pos, customX, customY, duration)
		vm.waiting = true

	case nmvalue.CHOICE:
		n := int(operand)
		opts := make([]string, n)
		for i := n - 1; i >= 0; i-- {
			opts[i] = vm.pop().AsString()
		}
		vm.callbacks.Choice(opts)
		vm.waiting = true

	case nmvalue.WAIT:
		duration := vm.pop().AsFloat()
		vm.callbacks.Wait(duration)
		vm.waiting = true

	case nmvalue.TRANSITION:
		duration := vm.pop().AsFloat()
		kind := vm.pop().AsString()
		vm.callbacks.Transition(kind, duration)

	case nmvalue.PLAY_SOUND:
		vm.callbacks.PlaySound(vm.pop().AsString())
	case nmvalue.PLAY_MUSIC:
		vm.callbacks.PlayMusic(vm.pop().AsString())
	case nmvalue.STOP_MUSIC:
		fadeout := vm.pop().AsFloat()
		hasFadeout := vm.pop().AsBool()
		if !hasFadeout {
			fadeout = 0
		}
		vm.callbacks.StopMusic(fadeout)

	case nmvalue.GOTO_SCENE:
		if !vm.pushFrame() {
			return
		}
		vm.callbacks.GotoScene(operand)
		vm.jumpTo(operand)
		vm.waiting = true

	case nmvalue.CALL:
		if !vm.limits.AllowNativeCalls {
			vm.fail(&SecurityViolation{Kind: ViolationNativeCall, Limit: 0, Got: 1})
			return
		}
		if !vm.pushFrame() {
			return
		}
		vm.callbacks.Call(vm.resolveString(operand))
		vm.popFrame()
		vm.push(nmvalue.NullValue())

	case nmvalue.RETURN:
		vm.popFrame()
		vm.halted = true

	default:
		vm.fail(errUnknownOpcode) // an opcode this VM doesn't recognize: halt rather than guess
	}
}

func (vm *VM) jumpTo(t uint32) {
	if !vm.checkLoop(t) {
		return
	}
	if t == 0 {
		vm.ip = 0
		vm.skipNextIncrement = true
		return
	}
	vm.ip = t - 1
}

func (vm *VM) binaryNumeric(f func(a, b float32) float32) {
	b, a := vm.pop(), vm.pop()
	result := f(a.AsFloat(), b.AsFloat())
	if a.Kind() == nmvalue.Int && b.Kind() == nmvalue.Int {
		vm.push(nmvalue.IntValue(int32(result)))
		return
	}
	vm.push(nmvalue.FloatValue(result))
}

func (vm *VM) compare(pick func(lt bool) bool) {
	b, a := vm.pop(), vm.pop()
	lt, err := nmvalue.Less(a, b)
	vm.lastErr = err
	vm.push(nmvalue.BoolValue(pick(lt)))
}

func (vm *VM) resolveString(idx uint32) string {
	s, ok := vm.Script.StringTable.Get(idx)
	if !ok {
		vm.fail(errInvalidStringIndex)
		return ""
	}
	if lim := vm.limits.MaxStringLength; lim > 0 && len(s) > lim {
		vm.fail(&SecurityViolation{Kind: ViolationStringLength, Limit: lim, Got: len(s)})
		return ""
	}
	return s
}

func (vm *VM) setVariable(name string, v nmvalue.Value) {
	if _, exists := vm.globals[name]; !exists {
		if lim := vm.limits.MaxVariables; lim > 0 && len(vm.globals) >= lim {
			vm.fail(&SecurityViolation{Kind: ViolationVariableCount, Limit: lim, Got: len(vm.globals) + 1})
			return
		}
	}
	vm.globals[name] = v
}

// checkLoop tracks backward control transfers as loop iterations (§4.5
// "max_loop_iterations"); NM Script has no explicit loop construct, so a
// backward GOTO_SCENE/JUMP is the only way a script can spin.
func (vm *VM) checkLoop(target uint32) bool {
	if target > vm.ip {
		return true
	}
	vm.loopIterations++
	if lim := vm.limits.MaxLoopIterations; lim > 0 && vm.loopIterations > lim {
		vm.fail(&SecurityViolation{Kind: ViolationLoopIterations, Limit: lim, Got: vm.loopIterations})
		return false
	}
	return true
}

func (vm *VM) push(v nmvalue.Value) {
	if lim := vm.limits.MaxStackSize; lim > 0 && len(vm.stack) >= lim {
		vm.fail(&SecurityViolation{Kind: ViolationStackSize, Limit: lim, Got: len(vm.stack) + 1})
		return
	}
	vm.stack = append(vm.stack, v)
}

// pop is a total function: an underflow is logged (§7 "StackUnderflow
// (logged, returns Null)") rather than panicking, since a cooperative
// single-step VM must never crash the host's frame.
func (vm *VM) pop() nmvalue.Value {
	if len(vm.stack) == 0 {
		vm.lastErr = errStackUnderflow
		return nmvalue.NullValue()
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() nmvalue.Value {
	if len(vm.stack) == 0 {
		vm.lastErr = errStackUnderflow
		return nmvalue.NullValue()
	}
	return vm.stack[len(vm.stack)-1]
}
