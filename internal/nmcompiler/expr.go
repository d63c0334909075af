package nmcompiler

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

// compileExpr emits the instructions that leave e's value on top of the
// stack. and/or short-circuit via DUP + conditional jump + POP (§4.4); every
// other binary operator evaluates both operands unconditionally, left then
// right, then applies the opcode.
func (c *compiler) compileExpr(e nmast.Expr) error {
	switch x := e.(type) {
	case *nmast.IntLit:
		c.emit(nmvalue.PUSH_INT, uint32(x.Value), x.Pos())
		return nil
	case *nmast.FloatLit:
		c.emit(nmvalue.PUSH_FLOAT, nmvalue.Float32ToBits(x.Value), x.Pos())
		return nil
	case *nmast.StringLit:
		c.emit(nmvalue.PUSH_STRING, c.strings.Add(x.Value), x.Pos())
		return nil
	case *nmast.BoolLit:
		var v uint32
		if x.Value {
			v = 1
		}
		c.emit(nmvalue.PUSH_BOOL, v, x.Pos())
		return nil
	case *nmast.Ident:
		c.emit(nmvalue.LOAD_GLOBAL, c.strings.Add(x.Name), x.Pos())
		return nil
	case *nmast.UnaryExpr:
		return c.compileUnary(x)
	case *nmast.BinaryExpr:
		return c.compileBinary(x)
	default:
		return &CompileError{Kind: KindInternalCompilerError, Message: fmt.Sprintf("unknown expression node %T", e)}
	}
}

func (c *compiler) compileUnary(x *nmast.UnaryExpr) error {
	if err := c.compileExpr(x.X); err != nil {
		return err
	}
	switch x.Op {
	case nmast.OpNeg:
		c.emit(nmvalue.NEG, 0, x.Pos())
	case nmast.OpNot:
		c.emit(nmvalue.NOT, 0, x.Pos())
	default:
		return &CompileError{Kind: KindInternalCompilerError, Message: fmt.Sprintf("unknown unary operator %d", x.Op)}
	}
	return nil
}

func (c *compiler) compileBinary(x *nmast.BinaryExpr) error {
	switch x.Op {
	case nmast.OpAnd:
		return c.compileShortCircuit(x, nmvalue.JUMP_IF_NOT)
	case nmast.OpOr:
		return c.compileShortCircuit(x, nmvalue.JUMP_IF)
	}

	if err := c.compileExpr(x.Left); err != nil {
		return err
	}
	if err := c.compileExpr(x.Right); err != nil {
		return err
	}

	op, ok := binaryOpcodes[x.Op]
	if !ok {
		return &CompileError{Kind: KindInternalCompilerError, Message: fmt.Sprintf("unknown binary operator %d", x.Op)}
	}
	c.emit(op, 0, x.Pos())
	return nil
}

var binaryOpcodes = map[nmast.BinaryOp]nmvalue.Opcode{
	nmast.OpEq:  nmvalue.EQ,
	nmast.OpNe:  nmvalue.NE,
	nmast.OpLt:  nmvalue.LT,
	nmast.OpLe:  nmvalue.LE,
	nmast.OpGt:  nmvalue.GT,
	nmast.OpGe:  nmvalue.GE,
	nmast.OpAdd: nmvalue.ADD,
	nmast.OpSub: nmvalue.SUB,
	nmast.OpMul: nmvalue.MUL,
	nmast.OpDiv: nmvalue.DIV,
	nmast.OpMod: nmvalue.MOD,
}

// compileShortCircuit implements and/or (§4.4): compile left, DUP it, jump
// past right (keeping the duplicated left truthy/falsy value as the result)
// when short-circuiting applies, otherwise POP the duplicate and evaluate
// right as the result.
func (c *compiler) compileShortCircuit(x *nmast.BinaryExpr, jumpOp nmvalue.Opcode) error {
	if err := c.compileExpr(x.Left); err != nil {
		return err
	}
	end := c.newLabel("scend")
	c.emit(nmvalue.DUP, 0, x.Pos())
	c.emitJump(jumpOp, end, x.Pos())
	c.emit(nmvalue.POP, 0, x.Pos())
	if err := c.compileExpr(x.Right); err != nil {
		return err
	}
	c.placeLabel(end)
	return nil
}
