// Package nmparser implements the NM Script recursive-descent parser
// (§4.2): it consumes the token stream produced by nmlexer and produces a
// nmast.Program. Its advance/expect/error-recovery shape is adapted from
// the teacher's lang/parser package, simplified because NM Script has no
// comments-in-AST requirement and a much smaller grammar (no functions,
// closures, or user-defined types).
package nmparser

import (
	"strings"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmlexer"
	"github.com/novelmind/novelmind/internal/nmtoken"
)

// acceptedStmtKeywords is reported verbatim in ExpectedStatement errors so
// the caller can render "expected one of: show, hide, say, ...".
var acceptedStmtKeywords = []string{
	"character", "scene", "show", "hide", "say", "choice", "if", "goto",
	"wait", "play", "stop", "set", "transition", "move", "{",
}

type parser struct {
	toks []nmlexer.Token
	pos  int
	errs nmtoken.ErrorList
}

// ParseProgram parses a full NM Script source file into a Program. Lex
// errors already accumulated by tokenizing are merged with parse errors.
func ParseProgram(filename string, src []byte) (*nmast.Program, error) {
	toks, lexErr := nmlexer.Tokenize(filename, src)
	p := &parser{toks: toks}
	prog := p.parseProgram()
	if lexErr != nil {
		if el, ok := lexErr.(nmtoken.ErrorList); ok {
			p.errs = append(nmtoken.ErrorList(el), p.errs...)
		}
	}
	p.errs.Sort()
	return prog, p.errs.Err()
}

// ParseExpr parses a single standalone expression, e.g. for a debugger
// conditional-breakpoint guard (§4.6: "re-use the script expression parser,
// never eval untrusted host code"). It does not require a full program.
func ParseExpr(filename string, src []byte) (nmast.Expr, error) {
	toks, lexErr := nmlexer.Tokenize(filename, src)
	p := &parser{toks: toks}
	expr := p.parseExpr()
	if lexErr != nil {
		if el, ok := lexErr.(nmtoken.ErrorList); ok {
			p.errs = append(nmtoken.ErrorList(el), p.errs...)
		}
	}
	p.errs.Sort()
	return expr, p.errs.Err()
}

func (p *parser) cur() nmlexer.Token  { return p.toks[p.pos] }
func (p *parser) curPos() nmtoken.Position { return p.cur().Pos }

func (p *parser) advance() nmlexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) at(k nmtoken.Kind) bool { return p.cur().Type == k }

func (p *parser) errorf(pos nmtoken.Position, format string, args ...any) {
	p.errs.Addf(pos, format, args...)
}

// expect consumes a token of kind k, reporting UnexpectedToken and returning
// a zero Token if the current token doesn't match.
func (p *parser) expect(k nmtoken.Kind) nmlexer.Token {
	if p.at(k) {
		return p.advance()
	}
	p.errorf(p.curPos(), "unexpected token: expected %s, got %s %q", k, p.cur().Type, p.cur().Lexeme)
	return p.cur()
}

// syncToStmtBoundary skips tokens until the next statement-starting keyword,
// '}' or EOF, so one parse error doesn't cascade (§7: "continue at next
// statement boundary to collect multiple errors").
func (p *parser) syncToStmtBoundary() {
	for !p.at(nmtoken.EOF) && !p.at(nmtoken.RBRACE) {
		if isStmtStart(p.cur().Type) {
			return
		}
		p.advance()
	}
}

func isStmtStart(k nmtoken.Kind) bool {
	switch k {
	case nmtoken.SHOW, nmtoken.HIDE, nmtoken.SAY, nmtoken.CHOICE, nmtoken.IF,
		nmtoken.GOTO, nmtoken.WAIT, nmtoken.PLAY, nmtoken.STOP, nmtoken.SET,
		nmtoken.TRANSITION, nmtoken.MOVE, nmtoken.LBRACE,
		nmtoken.CHARACTER, nmtoken.SCENE:
		return true
	default:
		return false
	}
}

func (p *parser) parseProgram() *nmast.Program {
	prog := &nmast.Program{}
	for !p.at(nmtoken.EOF) {
		switch p.cur().Type {
		case nmtoken.CHARACTER:
			prog.Characters = append(prog.Characters, p.parseCharacterDecl())
		case nmtoken.SCENE:
			prog.Scenes = append(prog.Scenes, p.parseScene())
		default:
			if isStmtStart(p.cur().Type) {
				prog.GlobalStmts = append(prog.GlobalStmts, p.parseStmt())
			} else {
				p.errorf(p.curPos(), "expected statement, scene or character declaration, got %s %q (accepted: %s)",
					p.cur().Type, p.cur().Lexeme, strings.Join(acceptedStmtKeywords, ", "))
				p.advance()
			}
		}
	}
	return prog
}

func (p *parser) parseCharacterDecl() *nmast.CharacterDecl {
	pos := p.curPos()
	p.expect(nmtoken.CHARACTER)
	id := p.expect(nmtoken.IDENT).Lexeme
	decl := &nmast.CharacterDecl{Position: nmast.Position{At: pos}, ID: id}
	p.expect(nmtoken.LBRACE)
	for !p.at(nmtoken.RBRACE) && !p.at(nmtoken.EOF) {
		switch p.cur().Lexeme {
		case "name":
			p.advance()
			p.expect(nmtoken.COLON)
			decl.Name = p.expect(nmtoken.STRING).Lexeme
		case "colour", "color":
			p.advance()
			p.expect(nmtoken.COLON)
			decl.Colour = p.expect(nmtoken.COLOR).Lexeme
		default:
			p.errorf(p.curPos(), "unexpected token in character declaration: %q", p.cur().Lexeme)
			p.advance()
		}
	}
	p.expect(nmtoken.RBRACE)
	return decl
}

func (p *parser) parseScene() *nmast.Scene {
	pos := p.curPos()
	p.expect(nmtoken.SCENE)
	name := p.expect(nmtoken.IDENT).Lexeme
	scene := &nmast.Scene{Position: nmast.Position{At: pos}, Name: name}
	p.expect(nmtoken.LBRACE)
	scene.Body = p.parseStmtsUntil(nmtoken.RBRACE)
	p.expect(nmtoken.RBRACE)
	return scene
}

// parseStmtsUntil parses statements until the current token is end or EOF.
func (p *parser) parseStmtsUntil(end nmtoken.Kind) []nmast.Stmt {
	var stmts []nmast.Stmt
	for !p.at(end) && !p.at(nmtoken.EOF) {
		before := p.pos
		stmt := p.parseStmt()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.pos == before {
			// guard against infinite loop on unrecoverable token
			p.advance()
		}
	}
	return stmts
}
