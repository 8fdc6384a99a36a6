// Package parser turns a minic token stream into an AST: recursive descent
// for statements, a Pratt parser for expressions.
package parser

import (
	"fmt"
	"strconv"

	"github.com/chazu/minic/pkg/ast"
	"github.com/chazu/minic/pkg/lexer"
	"github.com/chazu/minic/pkg/token"
)

// ParseError is a compile error raised during parsing: it carries the
// position and a short description of the offending lexeme.
type ParseError struct {
	Pos     token.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parser holds the token cursor and a one-token lookahead. The first error
// aborts parsing — this grammar does not attempt local error recovery.
type Parser struct {
	lex     *lexer.Lexer
	cur     token.Token
	next    token.Token
	nextSet bool
}

// Parse lexes and parses source into a *ast.Program, or returns the first
// compile error encountered by either phase.
func Parse(source string) (*ast.Program, error) {
	p := &Parser{lex: lexer.New(source)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

func (p *Parser) advance() error {
	if p.nextSet {
		p.cur = p.next
		p.nextSet = false
		return nil
	}
	tok, err := p.lex.NextToken()
	if err != nil {
		return wrapLexError(err)
	}
	p.cur = tok
	return nil
}

func wrapLexError(err error) error {
	if le, ok := err.(*lexer.LexError); ok {
		return &ParseError{Pos: le.Pos, Message: le.Message}
	}
	return err
}

func (p *Parser) peekNext() (token.Token, error) {
	if !p.nextSet {
		tok, err := p.lex.NextToken()
		if err != nil {
			return token.Token{}, wrapLexError(err)
		}
		p.next = tok
		p.nextSet = true
	}
	return p.next, nil
}

func (p *Parser) check(k token.Kind) bool { return p.cur.Kind == k }

func (p *Parser) errorAt(tok token.Token, format string, args ...interface{}) *ParseError {
	lexeme := tok.Lexeme
	if tok.Kind == token.EOF {
		lexeme = "end of file"
	}
	msg := fmt.Sprintf(format, args...)
	return &ParseError{Pos: tok.Pos, Message: fmt.Sprintf("%s (got %s)", msg, lexeme)}
}

// expect consumes the current token if it has kind k, else raises a
// compile error describing what was expected.
func (p *Parser) expect(k token.Kind, what string) (token.Token, error) {
	if p.cur.Kind != k {
		return token.Token{}, p.errorAt(p.cur, "expected %s", what)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.cur.Kind != token.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

func isTypeKeyword(k token.Kind) bool {
	return k == token.KwInt || k == token.KwDouble || k == token.KwBool
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch {
	case isTypeKeyword(p.cur.Kind):
		return p.parseVarDecl()
	case p.check(token.LBrace):
		return p.parseBlock()
	case p.check(token.KwIf):
		return p.parseIf()
	case p.check(token.KwWhile):
		return p.parseWhile()
	case p.check(token.KwFor):
		return p.parseFor()
	case p.check(token.KwBreak):
		return p.parseBreak()
	case p.check(token.KwContinue):
		return p.parseContinue()
	case p.check(token.Semi):
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Empty{Position: pos}, nil
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseExprStatement() (ast.Stmt, error) {
	pos := p.cur.Pos
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi, "';' after expression"); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Position: pos, X: expr}, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	pos := p.cur.Pos
	if _, err := p.expect(token.LBrace, "'{'"); err != nil {
		return nil, err
	}
	b := &ast.Block{Position: pos}
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Statements = append(b.Statements, stmt)
	}
	if _, err := p.expect(token.RBrace, "'}' to close block"); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *Parser) parseVarDecl() (*ast.VarDecl, error) {
	pos := p.cur.Pos
	typeTok := p.cur
	if err := p.advance(); err != nil {
		return nil, err
	}
	decl := &ast.VarDecl{Position: pos, Type: typeTok.Kind}
	for {
		d, err := p.parseDeclarator()
		if err != nil {
			return nil, err
		}
		decl.Declarators = append(decl.Declarators, d)
		if p.check(token.Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.Semi, "';' after variable declaration"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseDeclarator() (ast.Declarator, error) {
	nameTok, err := p.expect(token.Identifier, "a variable name")
	if err != nil {
		return ast.Declarator{}, err
	}
	d := ast.Declarator{Name: nameTok.Lexeme, NamePos: nameTok.Pos}

	if p.check(token.LBracket) {
		d.IsArray = true
		if err := p.advance(); err != nil {
			return ast.Declarator{}, err
		}
		if !p.check(token.RBracket) {
			size, err := p.parseExpression()
			if err != nil {
				return ast.Declarator{}, err
			}
			d.Size = size
		}
		if _, err := p.expect(token.RBracket, "']'"); err != nil {
			return ast.Declarator{}, err
		}
	}

	if p.check(token.Assign) {
		if err := p.advance(); err != nil {
			return ast.Declarator{}, err
		}
		if p.check(token.LBrace) {
			list, err := p.parseInitList()
			if err != nil {
				return ast.Declarator{}, err
			}
			d.InitList = list
		} else {
			init, err := p.parseExpression()
			if err != nil {
				return ast.Declarator{}, err
			}
			d.Init = init
		}
	}

	if d.IsArray && d.Size == nil && d.InitList == nil {
		return ast.Declarator{}, p.errorAt(nameTok, "array %q with implicit size must have an initializer list", d.Name)
	}
	if !d.IsArray && d.InitList != nil {
		return ast.Declarator{}, p.errorAt(nameTok, "non-array variable %q cannot use an initializer list", d.Name)
	}
	if d.IsArray && d.Init != nil {
		return ast.Declarator{}, p.errorAt(nameTok, "array %q cannot use a bare expression initializer", d.Name)
	}
	return d, nil
}

func (p *Parser) parseInitList() (*ast.InitList, error) {
	pos := p.cur.Pos
	if _, err := p.expect(token.LBrace, "'{'"); err != nil {
		return nil, err
	}
	list := &ast.InitList{Position: pos}
	if !p.check(token.RBrace) {
		for {
			elem, err := p.parseAssignmentLevel()
			if err != nil {
				return nil, err
			}
			list.Elements = append(list.Elements, elem)
			if p.check(token.Comma) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if _, err := p.expect(token.RBrace, "'}' to close initializer list"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseIf() (*ast.If, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen, "'(' after 'if'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen, "')' after if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Position: pos, Cond: cond, Then: then}
	if p.check(token.KwElse) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseStmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		node.Else = elseStmt
	}
	return node, nil
}

func (p *Parser) parseWhile() (*ast.While, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen, "'(' after 'while'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen, "')' after while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.While{Position: pos, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (*ast.For, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen, "'(' after 'for'"); err != nil {
		return nil, err
	}

	var init ast.Stmt
	switch {
	case p.check(token.Semi):
		if err := p.advance(); err != nil {
			return nil, err
		}
	case isTypeKeyword(p.cur.Kind):
		decl, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		init = decl
	default:
		stmt, err := p.parseExprStatement()
		if err != nil {
			return nil, err
		}
		init = stmt
	}

	var cond ast.Expr
	if !p.check(token.Semi) {
		c, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		cond = c
	}
	if _, err := p.expect(token.Semi, "';' after for condition"); err != nil {
		return nil, err
	}

	var incr ast.Expr
	if !p.check(token.RParen) {
		i, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		incr = i
	}
	if _, err := p.expect(token.RParen, "')' after for clauses"); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.For{Position: pos, Init: init, Cond: cond, Incr: incr, Body: body}, nil
}

func (p *Parser) parseBreak() (*ast.Break, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi, "';' after 'break'"); err != nil {
		return nil, err
	}
	return &ast.Break{Position: pos}, nil
}

func (p *Parser) parseContinue() (*ast.Continue, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi, "';' after 'continue'"); err != nil {
		return nil, err
	}
	return &ast.Continue{Position: pos}, nil
}

// ---------------------------------------------------------------------------
// Expressions — Pratt parser
// ---------------------------------------------------------------------------

// precedence assigns a binding power to each binary/assignment operator.
// Higher binds tighter. Assignment is handled separately since it is
// right-associative and its left side must be validated as an lvalue.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
)

var binPrec = map[token.Kind]precedence{
	token.OrOr:     precOr,
	token.AndAnd:   precAnd,
	token.Eq:       precEquality,
	token.NotEq:    precEquality,
	token.Lt:       precRelational,
	token.Lte:      precRelational,
	token.Gt:       precRelational,
	token.Gte:      precRelational,
	token.Plus:     precAdditive,
	token.Minus:    precAdditive,
	token.Star:     precMultiplicative,
	token.Slash:    precMultiplicative,
	token.Percent:  precMultiplicative,
}

var assignOps = map[token.Kind]bool{
	token.Assign:    true,
	token.PlusEq:    true,
	token.MinusEq:   true,
	token.StarEq:    true,
	token.SlashEq:   true,
	token.PercentEq: true,
}

func (p *Parser) parseExpression() (ast.Expr, error) {
	return p.parseAssignmentLevel()
}

// parseAssignmentLevel parses an assignment expression, right-associative,
// or falls through to a regular binary-expression parse when the next
// token is not an assignment operator.
func (p *Parser) parseAssignmentLevel() (ast.Expr, error) {
	left, err := p.parseBinary(precOr)
	if err != nil {
		return nil, err
	}
	if assignOps[p.cur.Kind] {
		opTok := p.cur
		if !isLvalue(left) {
			return nil, &ParseError{Pos: opTok.Pos, Message: "invalid assignment target"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err := p.parseAssignmentLevel()
		if err != nil {
			return nil, err
		}
		return &ast.Assignment{Position: opTok.Pos, Target: left, Op: opTok.Kind, Value: value}, nil
	}
	return left, nil
}

func isLvalue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Identifier, *ast.Subscript:
		return true
	default:
		return false
	}
}

// parseBinary implements precedence climbing for ||, &&, and the ordinary
// left-associative binary operators, from minPrec up through unary/primary.
func (p *Parser) parseBinary(minPrec precedence) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binPrec[p.cur.Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		if opTok.Kind == token.AndAnd || opTok.Kind == token.OrOr {
			left = &ast.Logical{Position: opTok.Pos, Left: left, Op: opTok.Kind, Right: right}
		} else {
			left = &ast.Binary{Position: opTok.Pos, Left: left, Op: opTok.Kind, Right: right}
		}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur.Kind {
	case token.Minus, token.Bang:
		opTok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Position: opTok.Pos, Op: opTok.Kind, Right: right}, nil
	case token.PlusPlus, token.MinusMinus:
		opTok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !isLvalue(arg) {
			return nil, &ParseError{Pos: opTok.Pos, Message: "update operator requires an identifier or subscript"}
		}
		return &ast.Update{Position: opTok.Pos, Op: opTok.Kind, Argument: arg, Prefix: true}, nil
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case token.LBracket:
			pos := p.cur.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket, "']' after subscript"); err != nil {
				return nil, err
			}
			expr = &ast.Subscript{Position: pos, Object: expr, Index: index}
		case token.PlusPlus, token.MinusMinus:
			opTok := p.cur
			if !isLvalue(expr) {
				return nil, &ParseError{Pos: opTok.Pos, Message: "update operator requires an identifier or subscript"}
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			expr = &ast.Update{Position: opTok.Pos, Op: opTok.Kind, Argument: expr, Prefix: false}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur
	switch tok.Kind {
	case token.Int:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, &ParseError{Pos: tok.Pos, Message: fmt.Sprintf("invalid integer literal %q", tok.Lexeme)}
		}
		return &ast.Literal{Position: tok.Pos, Kind: ast.IntLit, IntVal: n}, nil
	case token.Double:
		if err := p.advance(); err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, &ParseError{Pos: tok.Pos, Message: fmt.Sprintf("invalid double literal %q", tok.Lexeme)}
		}
		return &ast.Literal{Position: tok.Pos, Kind: ast.DoubleLit, DblVal: f}, nil
	case token.KwTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BoolLiteral{Position: tok.Pos, Value: true}, nil
	case token.KwFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BoolLiteral{Position: tok.Pos, Value: false}, nil
	case token.Identifier:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Identifier{Position: tok.Pos, Name: tok.Lexeme}, nil
	case token.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen, "')' to close grouped expression"); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.errorAt(tok, "expected an expression")
	}
}
