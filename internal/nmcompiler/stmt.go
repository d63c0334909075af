package nmcompiler

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmtoken"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

func (c *compiler) compileStmts(stmts []nmast.Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// compileStmt dispatches a single statement to bytecode. Statements whose
// host-facing opcode needs more than one operand (every stmt except
// goto/set/if, which fold naturally into the jump/load-store opcodes) first
// push their fields as literals in a fixed, opcode-specific order, then emit
// the opcode itself with a zero operand; the VM pops that fixed arity off the
// stack when it executes the opcode (§4.5).
func (c *compiler) compileStmt(s nmast.Stmt) error {
	switch st := s.(type) {
	case *nmast.ShowStmt:
		return c.compileShow(st)
	case *nmast.HideStmt:
		c.pushString(st.Identifier, st.Pos())
		c.pushString(st.Transition, st.Pos())
		c.pushBool(st.HasTransition, st.Pos())
		c.pushFloat(st.Duration, st.Pos())
		c.pushBool(st.HasDuration, st.Pos())
		c.emit(nmvalue.HIDE_CHARACTER, 0, st.Pos())
		return nil
	case *nmast.SayStmt:
		c.pushBool(st.HasSpeaker, st.Pos())
		c.pushString(st.Speaker, st.Pos())
		c.pushString(st.Text, st.Pos())
		c.emit(nmvalue.SAY, 0, st.Pos())
		return nil
	case *nmast.ChoiceStmt:
		return c.compileChoice(st)
	case *nmast.IfStmt:
		return c.compileIf(st)
	case *nmast.GotoStmt:
		c.emitJump(nmvalue.GOTO_SCENE, st.Target, st.Pos())
		return nil
	case *nmast.WaitStmt:
		c.emit(nmvalue.PUSH_FLOAT, nmvalue.Float32ToBits(st.Duration), st.Pos())
		c.emit(nmvalue.WAIT, 0, st.Pos())
		return nil
	case *nmast.PlayStmt:
		c.pushString(st.Resource, st.Pos())
		if st.Media == nmast.MediaMusic {
			c.emit(nmvalue.PLAY_MUSIC, 0, st.Pos())
		} else {
			c.emit(nmvalue.PLAY_SOUND, 0, st.Pos())
		}
		return nil
	case *nmast.StopStmt:
		c.pushBool(st.HasFadeout, st.Pos())
		c.pushFloat(st.Fadeout, st.Pos())
		c.emit(nmvalue.STOP_MUSIC, 0, st.Pos())
		return nil
	case *nmast.SetStmt:
		if err := c.compileExpr(st.Value); err != nil {
			return err
		}
		idx := c.strings.Add(st.Variable)
		if st.IsFlag {
			c.emit(nmvalue.SET_FLAG, idx, st.Pos())
		} else {
			c.emit(nmvalue.STORE_GLOBAL, idx, st.Pos())
		}
		return nil
	case *nmast.TransitionStmt:
		c.pushString(st.Type, st.Pos())
		c.pushFloat(st.Duration, st.Pos())
		c.emit(nmvalue.TRANSITION, 0, st.Pos())
		return nil
	case *nmast.MoveStmt:
		c.pushString(st.CharacterID, st.Pos())
		c.pushBool(st.HasCustom, st.Pos())
		c.pushInt(int32(st.Pos_), st.Pos())
		c.pushFloat(st.CustomX, st.Pos())
		c.pushFloat(st.CustomY, st.Pos())
		c.pushFloat(st.Duration, st.Pos())
		c.emit(nmvalue.MOVE_CHARACTER, 0, st.Pos())
		return nil
	case *nmast.BlockStmt:
		return c.compileStmts(st.Stmts)
	case *nmast.ExpressionStmt:
		if err := c.compileExpr(st.Expr); err != nil {
			return err
		}
		c.emit(nmvalue.POP, 0, st.Pos())
		return nil
	default:
		return &CompileError{Kind: KindInternalCompilerError, Message: fmt.Sprintf("unknown statement node %T", s)}
	}
}

func (c *compiler) compileShow(st *nmast.ShowStmt) error {
	if st.Target == nmast.ShowBackground {
		c.pushString(st.Resource, st.Pos())
		c.pushString(st.Transition, st.Pos())
		c.pushBool(st.HasTransition, st.Pos())
		c.pushFloat(st.Duration, st.Pos())
		c.pushBool(st.HasDuration, st.Pos())
		c.emit(nmvalue.SHOW_BACKGROUND, 0, st.Pos())
		return nil
	}
	c.pushString(st.Identifier, st.Pos())
	c.pushString(st.Resource, st.Pos())
	c.pushBool(st.HasPos, st.Pos())
	c.pushInt(int32(st.Pos_), st.Pos())
	c.pushBool(st.HasCustom, st.Pos())
	c.pushFloat(st.CustomX, st.Pos())
	c.pushFloat(st.CustomY, st.Pos())
	c.pushString(st.Transition, st.Pos())
	c.pushBool(st.HasTransition, st.Pos())
	c.pushFloat(st.Duration, st.Pos())
	c.pushBool(st.HasDuration, st.Pos())
	c.emit(nmvalue.SHOW_CHARACTER, 0, st.Pos())
	return nil
}

// compileIf emits: condition, JUMP_IF_NOT else_or_end, then-body, [JUMP end,
// else_label:, else-body], end_label: (§4.2's if/else if/else chains desugar
// to nested IfStmt.Else, so this handles one level per call).
func (c *compiler) compileIf(st *nmast.IfStmt) error {
	if err := c.compileExpr(st.Condition); err != nil {
		return err
	}
	if len(st.Else) == 0 {
		end := c.newLabel("ifend")
		c.emitJump(nmvalue.JUMP_IF_NOT, end, st.Pos())
		if err := c.compileStmts(st.Then); err != nil {
			return err
		}
		c.placeLabel(end)
		return nil
	}
	elseLbl := c.newLabel("else")
	end := c.newLabel("ifend")
	c.emitJump(nmvalue.JUMP_IF_NOT, elseLbl, st.Pos())
	if err := c.compileStmts(st.Then); err != nil {
		return err
	}
	c.emitJump(nmvalue.JUMP, end, st.Pos())
	c.placeLabel(elseLbl)
	if err := c.compileStmts(st.Else); err != nil {
		return err
	}
	c.placeLabel(end)
	return nil
}

func (c *compiler) pushString(s string, pos nmtoken.Position) {
	c.emit(nmvalue.PUSH_STRING, c.strings.Add(s), pos)
}

func (c *compiler) pushInt(v int32, pos nmtoken.Position) {
	c.emit(nmvalue.PUSH_INT, uint32(v), pos)
}

func (c *compiler) pushFloat(v float32, pos nmtoken.Position) {
	c.emit(nmvalue.PUSH_FLOAT, nmvalue.Float32ToBits(v), pos)
}

func (c *compiler) pushBool(v bool, pos nmtoken.Position) {
	var operand uint32
	if v {
		operand = 1
	}
	c.emit(nmvalue.PUSH_BOOL, operand, pos)
}
