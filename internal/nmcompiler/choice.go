package nmcompiler

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

// compileChoice implements §4.4's choice-compilation algorithm.
//
// Bytecode shape:
//
//	PUSH_STRING <option[0].Text>
//	...
//	PUSH_STRING <option[n-1].Text>
//	CHOICE     <option count>        ; pops the n texts, host picks, VM pushes the chosen index
//	; --- per option i, in order ---
//	DUP
//	PUSH_INT   i
//	EQ
//	JUMP_IF_NOT skip_i                ; index != i: try the next option
//	POP                                ; index == i: discard the duplicated index
//	[ <condition>  JUMP_IF_NOT end ]  ; optional guard, §4.4 "conditional options"
//	<goto scene>  | <body>
//	JUMP end
//	skip_i:
//	; --- end of per-option loop ---
//	POP                                ; discard a still-unmatched index (defensive)
//	end:
func (c *compiler) compileChoice(st *nmast.ChoiceStmt) error {
	if len(st.Options) > MaxChoiceOptions {
		return &CompileError{
			Kind:    KindTooManyChoices,
			Message: fmt.Sprintf("choice has %d options, maximum is %d", len(st.Options), MaxChoiceOptions),
		}
	}

	for _, opt := range st.Options {
		c.pushString(opt.Text, st.Pos())
	}
	c.emit(nmvalue.CHOICE, uint32(len(st.Options)), st.Pos())

	end := c.newLabel("choiceend")
	for i, opt := range st.Options {
		skip := c.newLabel("choiceskip")
		c.emit(nmvalue.DUP, 0, st.Pos())
		c.pushInt(int32(i), st.Pos())
		c.emit(nmvalue.EQ, 0, st.Pos())
		c.emitJump(nmvalue.JUMP_IF_NOT, skip, st.Pos())
		c.emit(nmvalue.POP, 0, st.Pos())

		if opt.Condition != nil {
			if err := c.compileExpr(opt.Condition); err != nil {
				return err
			}
			c.emitJump(nmvalue.JUMP_IF_NOT, end, st.Pos())
		}

		if opt.HasGoto {
			c.emitJump(nmvalue.GOTO_SCENE, opt.GotoTarget, st.Pos())
		} else if err := c.compileStmts(opt.Body); err != nil {
			return err
		}
		c.emitJump(nmvalue.JUMP, end, st.Pos())

		c.placeLabel(skip)
	}
	c.emit(nmvalue.POP, 0, st.Pos())
	c.placeLabel(end)
	return nil
}
