package parser

import (
	"strconv"

	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// NewParser creates and initializes a new Parser from a token stream.
// The stream must end with an EOF token.
func NewParser(tokens []token.Token) *Parser {
	if len(tokens) == 0 {
		tokens = []token.Token{{Type: token.EOF}}
	}
	return &Parser{tokens: tokens, current: tokens[0]}
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		tok := p.current
		p.advance()
		return tok
	}
	util.Error(p.current, "%s", message)
	return p.current
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 13
	case token.Plus, token.Minus:
		return 12
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 10
	case token.EqEq, token.Neq:
		return 9
	case token.AndAnd:
		return 5
	case token.OrOr:
		return 4
	default:
		return -1
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		val, _ := strconv.ParseInt(p.previous.Value, 10, 64)
		return ast.NewNumber(tok, val)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after expression.")
		return expr
	case p.check(token.Ident):
		return p.parseLVal()
	}
	util.Error(tok, "Expected an expression.")
	return nil
}

func (p *Parser) parseLVal() *ast.Node {
	tok := p.expect(token.Ident, "Expected identifier.")
	var indices []*ast.Node
	for p.match(token.LBracket) {
		indices = append(indices, p.parseExpr())
		p.expect(token.RBracket, "Expected ']' after array index.")
	}
	return ast.NewLVal(tok, tok.Value, indices)
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.Plus) || p.match(token.Minus) || p.match(token.Not) {
		return ast.NewUnaryOp(tok, tok.Type, p.parseUnaryExpr())
	}
	if p.check(token.Ident) && p.peekAt(1).Type == token.LParen {
		p.advance()
		p.advance()
		var args []*ast.Node
		if !p.check(token.RParen) {
			for {
				args = append(args, p.parseExpr())
				if !p.match(token.Comma) {
					break
				}
			}
		}
		p.expect(token.RParen, "Expected ')' after function arguments.")
		return ast.NewFuncCall(tok, tok.Value, args)
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < 0 || prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node { return p.parseBinaryExpr(0) }

func (p *Parser) parseInitVal() *ast.Node {
	tok := p.current
	if !p.match(token.LBrace) {
		return p.parseExpr()
	}
	var items []*ast.Node
	if !p.check(token.RBrace) {
		for {
			items = append(items, p.parseInitVal())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RBrace, "Expected '}' to close initializer list.")
	return ast.NewInitList(tok, items)
}

// Statement and Declaration Parsing

// parseDecl parses `[const] int def {, def};` with the current token on `const` or `int`.
func (p *Parser) parseDecl() *ast.Node {
	tok := p.current
	isConst := p.match(token.Const)
	p.expect(token.Int, "Expected 'int' in declaration.")

	var defs []*ast.Node
	for {
		nameTok := p.expect(token.Ident, "Expected identifier in declaration.")
		var dims []*ast.Node
		for p.match(token.LBracket) {
			dims = append(dims, p.parseExpr())
			p.expect(token.RBracket, "Expected ']' after array size.")
		}
		var init *ast.Node
		if p.match(token.Eq) {
			init = p.parseInitVal()
		} else if isConst {
			util.Error(nameTok, "Constant '%s' must be initialized.", nameTok.Value)
		}
		defs = append(defs, ast.NewVarDef(nameTok, nameTok.Value, isConst, dims, init))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Semi, "Expected ';' after declaration.")
	return ast.NewDecl(tok, isConst, defs)
}

func (p *Parser) parseBlock() *ast.Node {
	tok := p.expect(token.LBrace, "Expected '{' to start a block.")
	var items []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.check(token.Const) || p.check(token.Int) {
			items = append(items, p.parseDecl())
		} else {
			items = append(items, p.parseStmt())
		}
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return ast.NewBlock(tok, items)
}

// isAssignment scans ahead over an lvalue to find a top-level '='.
func (p *Parser) isAssignment() bool {
	if !p.check(token.Ident) {
		return false
	}
	depth := 0
	for i := 1; ; i++ {
		switch p.peekAt(i).Type {
		case token.LBracket:
			depth++
		case token.RBracket:
			depth--
		case token.Eq:
			return depth == 0
		case token.Semi, token.EOF, token.LBrace, token.RBrace:
			return false
		default:
			if depth == 0 {
				return false
			}
		}
	}
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.check(token.LBrace):
		return p.parseBlock()
	case p.match(token.If):
		p.expect(token.LParen, "Expected '(' after 'if'.")
		cond := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after if condition.")
		then := p.parseStmt()
		var els *ast.Node
		if p.match(token.Else) {
			els = p.parseStmt()
		}
		return ast.NewIf(tok, cond, then, els)
	case p.match(token.While):
		p.expect(token.LParen, "Expected '(' after 'while'.")
		cond := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after while condition.")
		return ast.NewWhile(tok, cond, p.parseStmt())
	case p.match(token.Break):
		p.expect(token.Semi, "Expected ';' after 'break'.")
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		p.expect(token.Semi, "Expected ';' after 'continue'.")
		return ast.NewContinue(tok)
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "Expected ';' after return statement.")
		return ast.NewReturn(tok, expr)
	case p.match(token.Semi):
		return ast.NewExprStmt(tok, nil)
	case p.isAssignment():
		lval := p.parseLVal()
		eqTok := p.expect(token.Eq, "Expected '=' in assignment.")
		rhs := p.parseExpr()
		p.expect(token.Semi, "Expected ';' after assignment.")
		return ast.NewAssign(eqTok, lval, rhs)
	default:
		expr := p.parseExpr()
		p.expect(token.Semi, "Expected ';' after expression statement.")
		return ast.NewExprStmt(tok, expr)
	}
}

// Top-Level Parsing
func (p *Parser) parseFuncDef() *ast.Node {
	returnsVoid := p.current.Type == token.Void
	p.advance()
	nameTok := p.expect(token.Ident, "Expected function name.")
	p.expect(token.LParen, "Expected '(' after function name.")

	var params []*ast.Node
	if !p.check(token.RParen) {
		for {
			p.expect(token.Int, "Expected 'int' parameter type.")
			pTok := p.expect(token.Ident, "Expected parameter name.")
			isArray := false
			var dims []*ast.Node
			if p.match(token.LBracket) {
				isArray = true
				p.expect(token.RBracket, "Expected ']' after open array parameter.")
				for p.match(token.LBracket) {
					dims = append(dims, p.parseExpr())
					p.expect(token.RBracket, "Expected ']' after array size.")
				}
			}
			params = append(params, ast.NewParam(pTok, pTok.Value, isArray, dims))
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after parameters.")
	body := p.parseBlock()
	return ast.NewFuncDef(nameTok, nameTok.Value, returnsVoid, params, body)
}

func (p *Parser) Parse() *ast.Node {
	tok := p.current
	var items []*ast.Node
	for !p.check(token.EOF) {
		switch {
		case p.check(token.Const):
			items = append(items, p.parseDecl())
		case p.check(token.Void):
			items = append(items, p.parseFuncDef())
		case p.check(token.Int) && p.peekAt(1).Type == token.Ident && p.peekAt(2).Type == token.LParen:
			items = append(items, p.parseFuncDef())
		case p.check(token.Int):
			items = append(items, p.parseDecl())
		default:
			util.Error(p.current, "Expected a top-level definition (function or variable).")
			p.advance()
		}
	}
	return ast.NewCompUnit(tok, items)
}
