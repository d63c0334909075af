package nmparser

import (
	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmtoken"
)

func (p *parser) parseStmt() nmast.Stmt {
	pos := p.curPos()
	switch p.cur().Type {
	case nmtoken.SHOW:
		return p.parseShowStmt()
	case nmtoken.HIDE:
		return p.parseHideStmt()
	case nmtoken.SAY:
		return p.parseSayStmt()
	case nmtoken.CHOICE:
		return p.parseChoiceStmt()
	case nmtoken.IF:
		return p.parseIfStmt()
	case nmtoken.GOTO:
		return p.parseGotoStmt()
	case nmtoken.WAIT:
		return p.parseWaitStmt()
	case nmtoken.PLAY:
		return p.parsePlayStmt()
	case nmtoken.STOP:
		return p.parseStopStmt()
	case nmtoken.SET:
		return p.parseSetStmt()
	case nmtoken.TRANSITION:
		return p.parseTransitionStmt()
	case nmtoken.MOVE:
		return p.parseMoveStmt()
	case nmtoken.LBRACE:
		return p.parseBlockStmt()
	default:
		if startsExpr(p.cur().Type) {
			expr := p.parseExpr()
			return &nmast.ExpressionStmt{Position: nmast.Position{At: pos}, Expr: expr}
		}
		p.errorf(pos, "expected statement, got %s %q", p.cur().Type, p.cur().Lexeme)
		p.syncToStmtBoundary()
		return nil
	}
}

func startsExpr(k nmtoken.Kind) bool {
	switch k {
	case nmtoken.IDENT, nmtoken.INT, nmtoken.FLOAT, nmtoken.STRING, nmtoken.COLOR,
		nmtoken.TRUE, nmtoken.FALSE, nmtoken.LPAREN, nmtoken.MINUS, nmtoken.NOT:
		return true
	default:
		return false
	}
}

func (p *parser) parsePosition() nmast.ScreenPosition {
	switch p.cur().Lexeme {
	case "left":
		p.advance()
		return nmast.PosLeft
	case "center":
		p.advance()
		return nmast.PosCenter
	case "right":
		p.advance()
		return nmast.PosRight
	case "custom":
		p.advance()
		return nmast.PosCustom
	default:
		p.errorf(p.curPos(), "expected position (left, center, right, custom), got %q", p.cur().Lexeme)
		return nmast.PosCenter
	}
}

func (p *parser) parseShowStmt() *nmast.ShowStmt {
	pos := p.curPos()
	p.expect(nmtoken.SHOW)
	stmt := &nmast.ShowStmt{Position: nmast.Position{At: pos}}
	switch p.cur().Lexeme {
	case "background":
		p.advance()
		stmt.Target = nmast.ShowBackground
		stmt.Resource = p.expect(nmtoken.STRING).Lexeme
	case "character":
		p.advance()
		stmt.Target = nmast.ShowCharacter
		stmt.Identifier = p.expect(nmtoken.IDENT).Lexeme
	case "sprite":
		p.advance()
		stmt.Target = nmast.ShowSprite
		stmt.Identifier = p.expect(nmtoken.IDENT).Lexeme
		stmt.Resource = p.expect(nmtoken.STRING).Lexeme
	default:
		p.errorf(p.curPos(), "expected background, character or sprite after show, got %q", p.cur().Lexeme)
	}
	p.parseShowTail(stmt)
	return stmt
}

func (p *parser) parseShowTail(stmt *nmast.ShowStmt) {
	for {
		switch p.cur().Type {
		case nmtoken.AT:
			p.advance()
			stmt.HasPos = true
			if p.cur().Lexeme == "custom" {
				p.advance()
				stmt.HasCustom = true
				stmt.CustomX = p.parseFloatLiteral()
				stmt.CustomY = p.parseFloatLiteral()
				stmt.Pos_ = nmast.PosCustom
			} else {
				stmt.Pos_ = p.parsePosition()
			}
		case nmtoken.WITH:
			p.advance()
			stmt.HasTransition = true
			stmt.Transition = p.expect(nmtoken.IDENT).Lexeme
		case nmtoken.DURATION:
			p.advance()
			stmt.HasDuration = true
			stmt.Duration = p.parseFloatLiteral()
		default:
			return
		}
	}
}

// parseFloatLiteral accepts either an INT or FLOAT token as a float operand,
// since NM Script source may write durations as "1" or "1.0" interchangeably.
func (p *parser) parseFloatLiteral() float32 {
	switch p.cur().Type {
	case nmtoken.FLOAT:
		v := p.cur().FloatValue
		p.advance()
		return v
	case nmtoken.INT:
		v := float32(p.cur().IntValue)
		p.advance()
		return v
	default:
		p.errorf(p.curPos(), "expected number, got %q", p.cur().Lexeme)
		return 0
	}
}

func (p *parser) parseHideStmt() *nmast.HideStmt {
	pos := p.curPos()
	p.expect(nmtoken.HIDE)
	stmt := &nmast.HideStmt{Position: nmast.Position{At: pos}, Identifier: p.expect(nmtoken.IDENT).Lexeme}
	for {
		switch p.cur().Type {
		case nmtoken.WITH:
			p.advance()
			stmt.HasTransition = true
			stmt.Transition = p.expect(nmtoken.IDENT).Lexeme
		case nmtoken.DURATION:
			p.advance()
			stmt.HasDuration = true
			stmt.Duration = p.parseFloatLiteral()
		default:
			return stmt
		}
	}
}

func (p *parser) parseSayStmt() *nmast.SayStmt {
	pos := p.curPos()
	p.expect(nmtoken.SAY)
	stmt := &nmast.SayStmt{Position: nmast.Position{At: pos}}
	if p.at(nmtoken.IDENT) {
		stmt.HasSpeaker = true
		stmt.Speaker = p.advance().Lexeme
	}
	stmt.Text = p.expect(nmtoken.STRING).Lexeme
	return stmt
}

func (p *parser) parseChoiceStmt() *nmast.ChoiceStmt {
	pos := p.curPos()
	p.expect(nmtoken.CHOICE)
	stmt := &nmast.ChoiceStmt{Position: nmast.Position{At: pos}}
	p.expect(nmtoken.LBRACE)
	for p.at(nmtoken.STRING) {
		opt := nmast.ChoiceOption{Text: p.advance().Lexeme}
		if p.at(nmtoken.IF) {
			p.advance()
			opt.Condition = p.parseExpr()
		}
		p.expect(nmtoken.ARROW)
		if p.at(nmtoken.GOTO) {
			p.advance()
			opt.HasGoto = true
			opt.GotoTarget = p.expect(nmtoken.IDENT).Lexeme
		} else {
			p.expect(nmtoken.LBRACE)
			opt.Body = p.parseStmtsUntil(nmtoken.RBRACE)
			p.expect(nmtoken.RBRACE)
		}
		stmt.Options = append(stmt.Options, opt)
	}
	p.expect(nmtoken.RBRACE)
	return stmt
}

func (p *parser) parseIfStmt() *nmast.IfStmt {
	pos := p.curPos()
	p.expect(nmtoken.IF)
	cond := p.parseExpr()
	p.expect(nmtoken.LBRACE)
	then := p.parseStmtsUntil(nmtoken.RBRACE)
	p.expect(nmtoken.RBRACE)
	stmt := &nmast.IfStmt{Position: nmast.Position{At: pos}, Condition: cond, Then: then}
	if p.at(nmtoken.ELSE) {
		p.advance()
		if p.at(nmtoken.IF) {
			stmt.Else = []nmast.Stmt{p.parseIfStmt()}
		} else {
			p.expect(nmtoken.LBRACE)
			stmt.Else = p.parseStmtsUntil(nmtoken.RBRACE)
			p.expect(nmtoken.RBRACE)
		}
	}
	return stmt
}

func (p *parser) parseGotoStmt() *nmast.GotoStmt {
	pos := p.curPos()
	p.expect(nmtoken.GOTO)
	return &nmast.GotoStmt{Position: nmast.Position{At: pos}, Target: p.expect(nmtoken.IDENT).Lexeme}
}

func (p *parser) parseWaitStmt() *nmast.WaitStmt {
	pos := p.curPos()
	p.expect(nmtoken.WAIT)
	return &nmast.WaitStmt{Position: nmast.Position{At: pos}, Duration: p.parseFloatLiteral()}
}

func (p *parser) parsePlayStmt() *nmast.PlayStmt {
	pos := p.curPos()
	p.expect(nmtoken.PLAY)
	stmt := &nmast.PlayStmt{Position: nmast.Position{At: pos}}
	switch p.cur().Type {
	case nmtoken.MUSIC:
		p.advance()
		stmt.Media = nmast.MediaMusic
	case nmtoken.SOUND:
		p.advance()
		stmt.Media = nmast.MediaSound
	default:
		p.errorf(p.curPos(), "expected music or sound after play, got %q", p.cur().Lexeme)
	}
	stmt.Resource = p.expect(nmtoken.STRING).Lexeme
	return stmt
}

func (p *parser) parseStopStmt() *nmast.StopStmt {
	pos := p.curPos()
	p.expect(nmtoken.STOP)
	stmt := &nmast.StopStmt{Position: nmast.Position{At: pos}}
	if p.at(nmtoken.FADEOUT) {
		p.advance()
		stmt.HasFadeout = true
		stmt.Fadeout = p.parseFloatLiteral()
	}
	return stmt
}

func (p *parser) parseSetStmt() *nmast.SetStmt {
	pos := p.curPos()
	p.expect(nmtoken.SET)
	stmt := &nmast.SetStmt{Position: nmast.Position{At: pos}}
	if p.cur().Lexeme == "flag" {
		p.advance()
		stmt.IsFlag = true
	}
	stmt.Variable = p.expect(nmtoken.IDENT).Lexeme
	p.expect(nmtoken.ASSIGN)
	stmt.Value = p.parseExpr()
	return stmt
}

func (p *parser) parseTransitionStmt() *nmast.TransitionStmt {
	pos := p.curPos()
	p.expect(nmtoken.TRANSITION)
	stmt := &nmast.TransitionStmt{Position: nmast.Position{At: pos}, Type: p.expect(nmtoken.IDENT).Lexeme}
	if p.at(nmtoken.DURATION) {
		p.advance()
		stmt.Duration = p.parseFloatLiteral()
	}
	return stmt
}

func (p *parser) parseMoveStmt() *nmast.MoveStmt {
	pos := p.curPos()
	p.expect(nmtoken.MOVE)
	stmt := &nmast.MoveStmt{Position: nmast.Position{At: pos}, CharacterID: p.expect(nmtoken.IDENT).Lexeme}
	p.expect(nmtoken.TO)
	if p.cur().Lexeme == "custom" {
		p.advance()
		stmt.HasCustom = true
		stmt.CustomX = p.parseFloatLiteral()
		stmt.CustomY = p.parseFloatLiteral()
		stmt.Pos_ = nmast.PosCustom
	} else {
		stmt.Pos_ = p.parsePosition()
	}
	p.expect(nmtoken.DURATION)
	stmt.Duration = p.parseFloatLiteral()
	return stmt
}

func (p *parser) parseBlockStmt() *nmast.BlockStmt {
	pos := p.curPos()
	p.expect(nmtoken.LBRACE)
	stmts := p.parseStmtsUntil(nmtoken.RBRACE)
	p.expect(nmtoken.RBRACE)
	return &nmast.BlockStmt{Position: nmast.Position{At: pos}, Stmts: stmts}
}
