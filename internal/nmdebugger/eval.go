package nmdebugger

import (
	"fmt"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmvalue"
	"github.com/novelmind/novelmind/internal/nmvm"
)

// evalExpr tree-walks a parsed expression against the VM's live globals
// (§4.6's conditional-breakpoint guard). It never executes bytecode: a
// breakpoint condition is evaluated purely by inspecting state, so a
// malformed or expensive guard can never desynchronize the VM's stack.
func evalExpr(e nmast.Expr, vm *nmvm.VM) (nmvalue.Value, error) {
	switch x := e.(type) {
	case *nmast.IntLit:
		return nmvalue.IntValue(x.Value), nil
	case *nmast.FloatLit:
		return nmvalue.FloatValue(x.Value), nil
	case *nmast.StringLit:
		return nmvalue.StringValue(x.Value), nil
	case *nmast.BoolLit:
		return nmvalue.BoolValue(x.Value), nil
	case *nmast.Ident:
		return vm.Global(x.Name), nil
	case *nmast.UnaryExpr:
		v, err := evalExpr(x.X, vm)
		if err != nil {
			return nmvalue.NullValue(), err
		}
		switch x.Op {
		case nmast.OpNeg:
			return nmvalue.FloatValue(-v.AsFloat()), nil
		case nmast.OpNot:
			return nmvalue.BoolValue(!v.AsBool()), nil
		}
		return nmvalue.NullValue(), fmt.Errorf("nmdebugger: unknown unary operator %d", x.Op)
	case *nmast.BinaryExpr:
		return evalBinary(x, vm)
	default:
		return nmvalue.NullValue(), fmt.Errorf("nmdebugger: unknown expression node %T", e)
	}
}

func evalBinary(x *nmast.BinaryExpr, vm *nmvm.VM) (nmvalue.Value, error) {
	if x.Op == nmast.OpAnd || x.Op == nmast.OpOr {
		left, err := evalExpr(x.Left, vm)
		if err != nil {
			return nmvalue.NullValue(), err
		}
		if x.Op == nmast.OpAnd && !left.AsBool() {
			return nmvalue.BoolValue(false), nil
		}
		if x.Op == nmast.OpOr && left.AsBool() {
			return nmvalue.BoolValue(true), nil
		}
		right, err := evalExpr(x.Right, vm)
		if err != nil {
			return nmvalue.NullValue(), err
		}
		return nmvalue.BoolValue(right.AsBool()), nil
	}

	left, err := evalExpr(x.Left, vm)
	if err != nil {
		return nmvalue.NullValue(), err
	}
	right, err := evalExpr(x.Right, vm)
	if err != nil {
		return nmvalue.NullValue(), err
	}

	switch x.Op {
	case nmast.OpEq:
		return nmvalue.BoolValue(nmvalue.Equal(left, right)), nil
	case nmast.OpNe:
		return nmvalue.BoolValue(!nmvalue.Equal(left, right)), nil
	case nmast.OpLt, nmast.OpLe, nmast.OpGt, nmast.OpGe:
		lt, err := nmvalue.Less(left, right)
		if err != nil {
			return nmvalue.NullValue(), err
		}
		eq := nmvalue.Equal(left, right)
		switch x.Op {
		case nmast.OpLt:
			return nmvalue.BoolValue(lt), nil
		case nmast.OpLe:
			return nmvalue.BoolValue(lt || eq), nil
		case nmast.OpGt:
			return nmvalue.BoolValue(!lt && !eq), nil
		default:
			return nmvalue.BoolValue(!lt), nil
		}
	case nmast.OpAdd:
		return nmvalue.FloatValue(left.AsFloat() + right.AsFloat()), nil
	case nmast.OpSub:
		return nmvalue.FloatValue(left.AsFloat() - right.AsFloat()), nil
	case nmast.OpMul:
		return nmvalue.FloatValue(left.AsFloat() * right.AsFloat()), nil
	case nmast.OpDiv:
		if right.AsFloat() == 0 {
			return nmvalue.IntValue(0), nil
		}
		return nmvalue.FloatValue(left.AsFloat() / right.AsFloat()), nil
	case nmast.OpMod:
		if right.AsInt() == 0 {
			return nmvalue.IntValue(0), nil
		}
		return nmvalue.IntValue(left.AsInt() % right.AsInt()), nil
	default:
		return nmvalue.NullValue(), fmt.Errorf("nmdebugger: unknown binary operator %d", x.Op)
	}
}
