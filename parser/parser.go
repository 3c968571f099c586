// Package parser implements a recursive-descent parser that builds an
// AST from the token list produced by the lexer.
//
// Precedence is encoded directly in the call structure: each precedence
// level is one function that parses a higher-precedence subexpression
// and then loops (or recurses, for the right-associative levels) over
// its own operator set. The parser never backtracks beyond the one- or
// two-token lookahead the grammar calls for.
package parser

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/skx/c64c/ast"
	"github.com/skx/c64c/token"
)

// ParseError is a single token-kind mismatch or unexpected-end-of-input
// failure, carrying the offending position and what was expected.
type ParseError struct {
	Pos      token.Pos
	Got      token.Kind
	Expected []token.Kind
	Context  string
}

func (e *ParseError) Error() string {
	if e.Got == token.EOF {
		return fmt.Sprintf("%s: unexpected end of input, expected %v", e.Context, e.Expected)
	}
	return fmt.Sprintf("%s: unexpected token %v at %d, expected %v", e.Context, e.Got, e.Pos.Start, e.Expected)
}

// Parser consumes a token list and builds a Program.
type Parser struct {
	toks []token.Token
	pos  int
	errs *multierror.Error
}

// New creates a Parser over toks, as produced by lexer.Lexer.All.
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse runs the parser to completion. Every error inside a top-level
// item (a malformed function/declaration) is recorded and parsing
// resumes after that item; once the input is exhausted, all recorded
// errors are returned together, mirroring how the TAC
// lowerer accumulates one error per function instead of aborting the
// whole program.
func Parse(toks []token.Token) (*ast.Program, error) {
	p := New(toks)
	prog := p.parseProgram()
	if p.errs != nil {
		return nil, p.errs.ErrorOrNil()
	}
	return prog, nil
}

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) expect(k token.Kind, context string) (token.Token, error) {
	if p.at(k) {
		return p.advance(), nil
	}
	return token.Token{}, &ParseError{Pos: p.cur().Pos, Got: p.cur().Kind, Expected: []token.Kind{k}, Context: context}
}

func (p *Parser) fail(err error) {
	p.errs = multierror.Append(p.errs, err)
}

// resyncToTopLevel skips tokens up to and including the first '}' that
// is not matched by a '{' seen during the skip (or up to EOF), so that
// one malformed top-level item doesn't prevent reporting later ones.
func (p *Parser) resyncToTopLevel() {
	depth := 0
	for !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		}
		p.advance()
	}
}

// --- Program & functions ----------------------------------------------

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.at(token.EOF) {
		item, err := p.parseTopLevel()
		if err != nil {
			p.fail(err)
			p.resyncToTopLevel()
			continue
		}
		prog.Items = append(prog.Items, item)
	}
	return prog
}

func (p *Parser) parseTopLevel() (ast.TopLevel, error) {
	start := p.cur().Pos
	if _, err := p.expect(token.KW_INT, "top-level declaration"); err != nil {
		return ast.TopLevel{}, err
	}
	nameTok, err := p.expect(token.IDENT, "top-level declaration")
	if err != nil {
		return ast.TopLevel{}, err
	}
	name := nameTok.Literal

	if p.at(token.LPAREN) {
		fn, err := p.parseFunctionTail(name, start)
		if err != nil {
			return ast.TopLevel{}, err
		}
		return ast.TopLevel{Func: fn}, nil
	}

	decl, err := p.parseDeclTail(name, start)
	if err != nil {
		return ast.TopLevel{}, err
	}
	if _, err := p.expect(token.SEMI, "global declaration"); err != nil {
		return ast.TopLevel{}, err
	}
	return ast.TopLevel{Decl: decl}, nil
}

// parseFunctionTail parses from the '(' of a function header onward;
// `int NAME` has already been consumed.
func (p *Parser) parseFunctionTail(name string, start token.Pos) (*ast.FunctionDecl, error) {
	if _, err := p.expect(token.LPAREN, "function parameters"); err != nil {
		return nil, err
	}

	var params []ast.Param
	for !p.at(token.RPAREN) {
		if len(params) > 0 {
			if _, err := p.expect(token.COMMA, "parameter list"); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.KW_INT, "parameter"); err != nil {
			return nil, err
		}
		pn, err := p.expect(token.IDENT, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: pn.Literal, Pos: pn.Pos})
	}
	if _, err := p.expect(token.RPAREN, "function parameters"); err != nil {
		return nil, err
	}

	if p.at(token.SEMI) {
		p.advance()
		return &ast.FunctionDecl{Name: name, Params: params, Body: nil, Pos: start}, nil
	}

	if _, err := p.expect(token.LBRACE, "function body"); err != nil {
		return nil, err
	}
	items, err := p.parseBlockItems()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{Name: name, Params: params, Body: items, Pos: start}, nil
}

func (p *Parser) parseDeclTail(name string, start token.Pos) (*ast.Decl, error) {
	d := &ast.Decl{Name: name, Pos: start}
	if p.at(token.ASSIGN) {
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.Init = v
	}
	return d, nil
}

// parseBlockItems parses block items until the matching '}', which it
// also consumes.
func (p *Parser) parseBlockItems() ([]ast.BlockItem, error) {
	var items []ast.BlockItem
	for !p.at(token.RBRACE) {
		if p.at(token.EOF) {
			return nil, &ParseError{Pos: p.cur().Pos, Got: token.EOF, Expected: []token.Kind{token.RBRACE}, Context: "block"}
		}
		item, err := p.parseBlockItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	p.advance() // consume '}'
	return items, nil
}

func (p *Parser) parseBlockItem() (ast.BlockItem, error) {
	if p.at(token.KW_INT) {
		start := p.cur().Pos
		p.advance()
		nameTok, err := p.expect(token.IDENT, "variable declaration")
		if err != nil {
			return ast.BlockItem{}, err
		}
		decl, err := p.parseDeclTail(nameTok.Literal, start)
		if err != nil {
			return ast.BlockItem{}, err
		}
		if _, err := p.expect(token.SEMI, "variable declaration"); err != nil {
			return ast.BlockItem{}, err
		}
		return ast.BlockItem{Decl: decl}, nil
	}
	stmt, err := p.parseStmt()
	if err != nil {
		return ast.BlockItem{}, err
	}
	return ast.BlockItem{Stmt: stmt}, nil
}

// --- Statements ---------------------------------------------------------

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.cur().Kind {
	case token.KW_RETURN:
		start := p.advance().Pos
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI, "return statement"); err != nil {
			return nil, err
		}
		return &ast.Return{Value: v, Pos: start}, nil

	case token.LBRACE:
		start := p.advance().Pos
		items, err := p.parseBlockItems()
		if err != nil {
			return nil, err
		}
		return &ast.Block{Items: items, Pos: start}, nil

	case token.KW_IF:
		return p.parseIf()

	case token.KW_WHILE:
		return p.parseWhile()

	case token.KW_DO:
		return p.parseDoWhile()

	case token.KW_FOR:
		return p.parseFor()

	case token.KW_BREAK:
		start := p.advance().Pos
		if _, err := p.expect(token.SEMI, "break statement"); err != nil {
			return nil, err
		}
		return &ast.Break{Pos: start}, nil

	case token.KW_CONTINUE:
		start := p.advance().Pos
		if _, err := p.expect(token.SEMI, "continue statement"); err != nil {
			return nil, err
		}
		return &ast.Continue{Pos: start}, nil

	case token.SEMI:
		start := p.advance().Pos
		return &ast.ExprStmt{Value: nil, Pos: start}, nil

	default:
		start := p.cur().Pos
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI, "expression statement"); err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Value: v, Pos: start}, nil
	}
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	start := p.advance().Pos // 'if'
	if _, err := p.expect(token.LPAREN, "if condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Cond: cond, Then: then, Pos: start}
	if p.at(token.KW_ELSE) {
		p.advance()
		els, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		node.Else = els
	}
	return node, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	start := p.advance().Pos // 'while'
	if _, err := p.expect(token.LPAREN, "while condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.While{Cond: cond, Body: body, Pos: start}, nil
}

func (p *Parser) parseDoWhile() (ast.Stmt, error) {
	start := p.advance().Pos // 'do'
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KW_WHILE, "do-while"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN, "do-while condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "do-while condition"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI, "do-while"); err != nil {
		return nil, err
	}
	return &ast.DoWhile{Body: body, Cond: cond, Pos: start}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	start := p.advance().Pos // 'for'
	if _, err := p.expect(token.LPAREN, "for header"); err != nil {
		return nil, err
	}

	node := &ast.For{Pos: start}

	if p.at(token.SEMI) {
		p.advance()
	} else if p.at(token.KW_INT) {
		declStart := p.cur().Pos
		p.advance()
		nameTok, err := p.expect(token.IDENT, "for-loop declaration")
		if err != nil {
			return nil, err
		}
		decl, err := p.parseDeclTail(nameTok.Literal, declStart)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI, "for-loop declaration"); err != nil {
			return nil, err
		}
		node.Init = &ast.ForInit{Decl: decl}
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI, "for-loop initializer"); err != nil {
			return nil, err
		}
		node.Init = &ast.ForInit{Expr: e}
	}

	if !p.at(token.SEMI) {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Cond = cond
	}
	if _, err := p.expect(token.SEMI, "for-loop condition"); err != nil {
		return nil, err
	}

	if !p.at(token.RPAREN) {
		step, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Step = step
	}
	if _, err := p.expect(token.RPAREN, "for-loop header"); err != nil {
		return nil, err
	}

	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	node.Body = body
	return node, nil
}

// --- Expressions: precedence climbing -----------------------------------

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseAssignment() }

// parseAssignment handles `IDENT ASSIGN_OP ...` with a two-token
// lookahead; anything else falls through to the ternary level.
// Right-associative: `a = b = c` parses as `a = (b = c)`.
func (p *Parser) parseAssignment() (ast.Expr, error) {
	if p.cur().Kind == token.IDENT && p.peek().IsAssignOp() {
		nameTok := p.advance()
		opTok := p.advance()
		rhs, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		if opTok.Kind == token.ASSIGN {
			return &ast.Assign{Name: nameTok.Literal, Value: rhs, Pos: nameTok.Pos}, nil
		}
		return &ast.CompoundAssign{Name: nameTok.Literal, Op: compoundBaseOp(opTok.Kind), Value: rhs, Pos: nameTok.Pos}, nil
	}
	return p.parseTernary()
}

// compoundBaseOp maps a `+=`-style token to the underlying binary
// operator (`+`) the compound assignment expands to.
func compoundBaseOp(k token.Kind) token.Kind {
	switch k {
	case token.PLUS_EQ:
		return token.PLUS
	case token.MINUS_EQ:
		return token.MINUS
	case token.STAR_EQ:
		return token.STAR
	case token.SLASH_EQ:
		return token.SLASH
	case token.PERCENT_EQ:
		return token.PERCENT
	case token.SHL_EQ:
		return token.SHL
	case token.SHR_EQ:
		return token.SHR
	case token.AND_EQ:
		return token.AMP
	case token.OR_EQ:
		return token.PIPE
	case token.XOR_EQ:
		return token.CARET
	}
	return token.ILLEGAL
}

// parseTernary is right-associative: `a ? b : c ? d : e` parses as
// `a ? b : (c ? d : e)`.
func (p *Parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if !p.at(token.QMARK) {
		return cond, nil
	}
	start := p.advance().Pos
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON, "ternary expression"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ast.Ternary{Cond: cond, Then: then, Else: els, Pos: start}, nil
}

// leftAssoc parses `higher (op higher)*` into a left-leaning tree.
func (p *Parser) leftAssoc(higher func() (ast.Expr, error), ops ...token.Kind) (ast.Expr, error) {
	left, err := higher()
	if err != nil {
		return nil, err
	}
	for contains(ops, p.cur().Kind) {
		opTok := p.advance()
		right, err := higher()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: opTok.Kind, X: left, Y: right, Pos: opTok.Pos}
	}
	return left, nil
}

func contains(ks []token.Kind, k token.Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func (p *Parser) parseLogicalOr() (ast.Expr, error) {
	return p.leftAssoc(p.parseLogicalAnd, token.OR_OR)
}
func (p *Parser) parseLogicalAnd() (ast.Expr, error) {
	return p.leftAssoc(p.parseBitwiseOr, token.AND_AND)
}
func (p *Parser) parseBitwiseOr() (ast.Expr, error) {
	return p.leftAssoc(p.parseBitwiseXor, token.PIPE)
}
func (p *Parser) parseBitwiseXor() (ast.Expr, error) {
	return p.leftAssoc(p.parseBitwiseAnd, token.CARET)
}
func (p *Parser) parseBitwiseAnd() (ast.Expr, error) {
	return p.leftAssoc(p.parseEquality, token.AMP)
}
func (p *Parser) parseEquality() (ast.Expr, error) {
	return p.leftAssoc(p.parseRelational, token.EQ, token.NEQ)
}
func (p *Parser) parseRelational() (ast.Expr, error) {
	return p.leftAssoc(p.parseShift, token.LT, token.LE, token.GT, token.GE)
}
func (p *Parser) parseShift() (ast.Expr, error) {
	return p.leftAssoc(p.parseAdditive, token.SHL, token.SHR)
}
func (p *Parser) parseAdditive() (ast.Expr, error) {
	return p.leftAssoc(p.parseMultiplicative, token.PLUS, token.MINUS)
}
func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	return p.leftAssoc(p.parseUnary, token.STAR, token.SLASH, token.PERCENT)
}

// parseUnary is right-associative/prefix: `-`, `~`, `!`, `++x`, `--x`.
func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.MINUS, token.TILDE, token.BANG:
		opTok := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: opTok.Kind, X: x, Pos: opTok.Pos}, nil

	case token.INC, token.DEC:
		opTok := p.advance()
		nameTok, err := p.expect(token.IDENT, "prefix increment/decrement")
		if err != nil {
			return nil, err
		}
		return &ast.IncDec{Name: nameTok.Literal, Op: opTok.Kind, Side: ast.Prefix, Pos: opTok.Pos}, nil
	}
	return p.parsePostfix()
}

// parsePostfix is `primary (++|--)?`.
func (p *Parser) parsePostfix() (ast.Expr, error) {
	prim, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == token.INC || p.cur().Kind == token.DEC {
		v, ok := prim.(*ast.Var)
		if !ok {
			return nil, &ParseError{Pos: p.cur().Pos, Got: p.cur().Kind, Expected: []token.Kind{token.SEMI}, Context: "postfix increment/decrement requires a variable"}
		}
		opTok := p.advance()
		return &ast.IncDec{Name: v.Name, Op: opTok.Kind, Side: ast.Postfix, Pos: v.Pos}, nil
	}
	return prim, nil
}

// parsePrimary: parenthesized expression, call, variable, or literal.
func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "parenthesized expression"); err != nil {
			return nil, err
		}
		return e, nil

	case token.INT:
		t := p.advance()
		v, err := strconv.ParseInt(t.Literal, 10, 64)
		if err != nil {
			return nil, &ParseError{Pos: t.Pos, Got: t.Kind, Expected: []token.Kind{token.INT}, Context: "integer literal"}
		}
		return &ast.IntLit{Value: v, Pos: t.Pos}, nil

	case token.IDENT:
		t := p.advance()
		if p.at(token.LPAREN) {
			p.advance()
			var args []ast.Expr
			for !p.at(token.RPAREN) {
				if len(args) > 0 {
					if _, err := p.expect(token.COMMA, "call arguments"); err != nil {
						return nil, err
					}
				}
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
			}
			if _, err := p.expect(token.RPAREN, "call arguments"); err != nil {
				return nil, err
			}
			return &ast.Call{Callee: t.Literal, Args: args, Pos: t.Pos}, nil
		}
		return &ast.Var{Name: t.Literal, Pos: t.Pos}, nil
	}

	return nil, &ParseError{Pos: p.cur().Pos, Got: p.cur().Kind,
		Expected: []token.Kind{token.LPAREN, token.INT, token.IDENT}, Context: "primary expression"}
}
