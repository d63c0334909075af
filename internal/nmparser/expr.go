package nmparser

import (
	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmtoken"
)

// parseExpr parses a full expression at the loosest precedence level (or).
// Precedence, tightest last (§4.2): or < and < equality < comparison <
// additive < multiplicative < unary < primary.
func (p *parser) parseExpr() nmast.Expr { return p.parseOr() }

func (p *parser) parseOr() nmast.Expr {
	left := p.parseAnd()
	for p.at(nmtoken.OR) {
		pos := p.curPos()
		p.advance()
		right := p.parseAnd()
		left = nmast.NewBinary(pos, nmast.OpOr, left, right)
	}
	return left
}

func (p *parser) parseAnd() nmast.Expr {
	left := p.parseEquality()
	for p.at(nmtoken.AND) {
		pos := p.curPos()
		p.advance()
		right := p.parseEquality()
		left = nmast.NewBinary(pos, nmast.OpAnd, left, right)
	}
	return left
}

func (p *parser) parseEquality() nmast.Expr {
	left := p.parseComparison()
	for p.at(nmtoken.EQ) || p.at(nmtoken.NEQ) {
		op, pos := nmast.OpEq, p.curPos()
		if p.cur().Type == nmtoken.NEQ {
			op = nmast.OpNe
		}
		p.advance()
		right := p.parseComparison()
		left = nmast.NewBinary(pos, op, left, right)
	}
	return left
}

func (p *parser) parseComparison() nmast.Expr {
	left := p.parseAdditive()
	for {
		var op nmast.BinaryOp
		switch p.cur().Type {
		case nmtoken.LT:
			op = nmast.OpLt
		case nmtoken.LE:
			op = nmast.OpLe
		case nmtoken.GT:
			op = nmast.OpGt
		case nmtoken.GE:
			op = nmast.OpGe
		default:
			return left
		}
		pos := p.curPos()
		p.advance()
		right := p.parseAdditive()
		left = nmast.NewBinary(pos, op, left, right)
	}
}

func (p *parser) parseAdditive() nmast.Expr {
	left := p.parseMultiplicative()
	for {
		var op nmast.BinaryOp
		switch p.cur().Type {
		case nmtoken.PLUS:
			op = nmast.OpAdd
		case nmtoken.MINUS:
			op = nmast.OpSub
		default:
			return left
		}
		pos := p.curPos()
		p.advance()
		right := p.parseMultiplicative()
		left = nmast.NewBinary(pos, op, left, right)
	}
}

func (p *parser) parseMultiplicative() nmast.Expr {
	left := p.parseUnary()
	for {
		var op nmast.BinaryOp
		switch p.cur().Type {
		case nmtoken.STAR:
			op = nmast.OpMul
		case nmtoken.SLASH:
			op = nmast.OpDiv
		case nmtoken.PERCENT:
			op = nmast.OpMod
		default:
			return left
		}
		pos := p.curPos()
		p.advance()
		right := p.parseUnary()
		left = nmast.NewBinary(pos, op, left, right)
	}
}

func (p *parser) parseUnary() nmast.Expr {
	switch p.cur().Type {
	case nmtoken.MINUS:
		pos := p.curPos()
		p.advance()
		return &nmast.UnaryExpr{Position: nmast.Position{At: pos}, Op: nmast.OpNeg, X: p.parseUnary()}
	case nmtoken.NOT:
		pos := p.curPos()
		p.advance()
		return &nmast.UnaryExpr{Position: nmast.Position{At: pos}, Op: nmast.OpNot, X: p.parseUnary()}
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() nmast.Expr {
	tok := p.cur()
	pos := tok.Pos
	switch tok.Type {
	case nmtoken.INT:
		p.advance()
		return &nmast.IntLit{Position: nmast.Position{At: pos}, Value: tok.IntValue}
	case nmtoken.FLOAT:
		p.advance()
		return &nmast.FloatLit{Position: nmast.Position{At: pos}, Value: tok.FloatValue}
	case nmtoken.STRING, nmtoken.COLOR:
		p.advance()
		return &nmast.StringLit{Position: nmast.Position{At: pos}, Value: tok.Lexeme}
	case nmtoken.TRUE:
		p.advance()
		return &nmast.BoolLit{Position: nmast.Position{At: pos}, Value: true}
	case nmtoken.FALSE:
		p.advance()
		return &nmast.BoolLit{Position: nmast.Position{At: pos}, Value: false}
	case nmtoken.IDENT:
		p.advance()
		return &nmast.Ident{Position: nmast.Position{At: pos}, Name: tok.Lexeme}
	case nmtoken.LPAREN:
		p.advance()
		expr := p.parseExpr()
		p.expect(nmtoken.RPAREN)
		return expr
	default:
		p.errorf(pos, "expected expression, got %s %q", tok.Type, tok.Lexeme)
		p.advance()
		return &nmast.BoolLit{Position: nmast.Position{At: pos}, Value: false}
	}
}
