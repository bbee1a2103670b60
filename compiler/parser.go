package compiler

import (
	"fmt"
	"strconv"

	"github.com/skx/cc32/ast"
	"github.com/skx/cc32/lexer"
	"github.com/skx/cc32/stack"
	"github.com/skx/cc32/token"
)

// ParseError is one syntax-error diagnostic: the offending token's
// text, kind, line and column.
type ParseError struct {
	Token   token.Token
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Syntax error at %q (%s), line %d, position %d: %s",
		e.Token.Literal, e.Token.Kind, e.Token.Line, e.Token.Column, e.Message)
}

// parseAbort unwinds a broken global declaration back to
// parseGlobalDeclSafe, where resynchronizeTopLevel skips ahead to the next
// recognizable boundary. This is the same panic/recover-to-a-known-
// point technique Go's own go/parser uses internally for syntax-error
// recovery; it keeps the recursive-descent functions below free of
// an error return on every single call.
type parseAbort struct{}

// Parser is a recursive-descent, precedence-climbing parser over a
// lexer.Lexer's token stream.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token
	peek token.Token

	Errors []*ParseError
}

// NewParser creates a parser over src.
func NewParser(src string) *Parser {
	p := &Parser{lex: lexer.New(src)}
	p.advance()
	p.advance()
	return p
}

// LexErrors returns the illegal-byte diagnostics the underlying lexer
// accumulated while producing tokens for this parse.
func (p *Parser) LexErrors() []string {
	return p.lex.Errors
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.Errors = append(p.Errors, &ParseError{Token: p.cur, Message: fmt.Sprintf(format, args...)})
}

// expect consumes the current token if it has the given kind, else
// records a diagnostic and aborts the current global declaration.
func (p *Parser) expect(kind token.Kind) token.Token {
	if p.cur.Kind != kind {
		p.errorf("expected %s, found %s", kind, p.cur.Kind)
		panic(parseAbort{})
	}
	tok := p.cur
	p.advance()
	return tok
}

func (p *Parser) expectIdent() string {
	return p.expect(token.IDENT).Literal
}

// ParseProgram parses the whole input. Syntax errors are recorded in
// p.Errors; the parser resynchronizes to the next global declaration
// and continues rather than stopping at the first one.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur.Kind != token.EOF {
		if decl := p.parseGlobalDeclSafe(); decl != nil {
			prog.Decls = append(prog.Decls, decl)
		}
	}
	return prog
}

func (p *Parser) parseGlobalDeclSafe() (decl ast.GlobalDeclaration) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(parseAbort); ok {
				p.resynchronizeTopLevel()
				decl = nil
				return
			}
			panic(r)
		}
	}()
	return p.parseGlobalDecl()
}

// resynchronizeTopLevel skips tokens, using a bracket-depth stack to
// avoid mistaking a semicolon or brace that belongs to a still-open
// inner construct for the boundary, until it reaches a token that
// plausibly starts the next global declaration.
func (p *Parser) resynchronizeTopLevel() {
	depth := stack.New()
	for {
		switch p.cur.Kind {
		case token.EOF:
			return
		case token.LPAREN, token.LBRACE, token.LBRACKET:
			depth.Push(string(p.cur.Kind))
			p.advance()
		case token.RPAREN, token.RBRACKET:
			if !depth.Empty() {
				depth.Pop()
			}
			p.advance()
		case token.RBRACE:
			if depth.Empty() {
				p.advance()
				return
			}
			depth.Pop()
			p.advance()
		case token.SEMI:
			p.advance()
			if depth.Empty() {
				return
			}
		case token.EXPORT, token.EXTERN, token.PRIM_TYPE, token.VOID:
			if depth.Empty() {
				return
			}
			p.advance()
		default:
			p.advance()
		}
	}
}

func (p *Parser) parseGlobalDecl() ast.GlobalDeclaration {
	switch p.cur.Kind {
	case token.EXPORT:
		return p.parseExport()
	case token.EXTERN:
		return p.parseExtern()
	case token.VOID:
		p.advance()
		name := p.expectIdent()
		params, body := p.parseFunctionHeaderBody()
		return &ast.Function{ReturnType: ast.Void{}, Name: name, ParamNames: params, Body: body}
	case token.PRIM_TYPE:
		typ := p.parseVarType()
		name := p.expectIdent()
		if p.cur.Kind == token.LPAREN {
			params, body := p.parseFunctionHeaderBody()
			return &ast.Function{ReturnType: typ, Name: name, ParamNames: params, Body: body}
		}
		// C-style "char msg[] = ..." / "int a[3] = ...": the bracket
		// suffix after the name turns the primitive into an array type.
		if prim, ok := typ.(ast.Primitive); ok && p.cur.Kind == token.LBRACKET {
			p.advance()
			length := 0
			if p.cur.Kind == token.INT {
				length, _ = strconv.Atoi(p.cur.Literal)
				p.advance()
			}
			p.expect(token.RBRACKET)
			typ = &ast.Array{Elem: prim, Length: length}
		}
		p.expect(token.EQ)
		init := p.parseInitializer()
		p.expect(token.SEMI)
		return &ast.GlobalVariable{Type: typ, Name: name, Initializer: init}
	default:
		p.errorf("expected a declaration, found %s", p.cur.Kind)
		panic(parseAbort{})
	}
}

func (p *Parser) parseVarType() ast.Type {
	prim := p.expect(token.PRIM_TYPE).Literal
	if p.cur.Kind != token.LBRACKET {
		return ast.Primitive{Name: prim}
	}
	p.advance()
	length := 0
	if p.cur.Kind == token.INT {
		n, _ := strconv.Atoi(p.cur.Literal)
		length = n
		p.advance()
	}
	p.expect(token.RBRACKET)
	return &ast.Array{Elem: ast.Primitive{Name: prim}, Length: length}
}

func (p *Parser) parseFunctionHeaderBody() ([]string, *ast.Block) {
	p.expect(token.LPAREN)
	params := p.parseParList()
	p.expect(token.RPAREN)
	body := p.parseBlock()
	return params, body
}

func (p *Parser) parseParList() []string {
	var names []string
	if p.cur.Kind == token.RPAREN {
		return names
	}
	for {
		names = append(names, p.expectIdent())
		if p.cur.Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	return names
}

func (p *Parser) parseExport() *ast.Export {
	p.advance()
	name := p.expectIdent()
	isFunction := false
	if p.cur.Kind == token.LPAREN {
		p.advance()
		p.expect(token.RPAREN)
		isFunction = true
	}
	p.expect(token.SEMI)
	return &ast.Export{Name: name, IsFunction: isFunction}
}

func (p *Parser) parseExtern() *ast.Extern {
	p.advance()
	linkage := ast.LinkageNative
	linkageName := ""
	if p.cur.Kind == token.STRING {
		linkageName = p.cur.Literal
		p.advance()
		// Whether linkageName actually spells "C"/"c" is a semantic
		// check the code generator makes; the parser just carries it
		// through.
		linkage = ast.LinkageC
	}

	if p.cur.Kind == token.VOID {
		p.advance()
		name := p.expectIdent()
		p.expect(token.LPAREN)
		params, varargs := p.parseExternParList()
		p.expect(token.RPAREN)
		p.expect(token.SEMI)
		return &ast.Extern{Name: name, IsFunction: true, ReturnType: ast.Void{}, ParamNames: params, Varargs: varargs, Linkage: linkage, LinkageName: linkageName}
	}

	typ := p.parseVarType()
	name := p.expectIdent()
	if p.cur.Kind == token.LPAREN {
		p.advance()
		params, varargs := p.parseExternParList()
		p.expect(token.RPAREN)
		p.expect(token.SEMI)
		return &ast.Extern{Name: name, IsFunction: true, ReturnType: typ, ParamNames: params, Varargs: varargs, Linkage: linkage, LinkageName: linkageName}
	}
	p.expect(token.SEMI)
	return &ast.Extern{Name: name, IsFunction: false, VarType: typ, Linkage: linkage, LinkageName: linkageName}
}

// parseExternParList parses a (possibly empty) list of typed
// parameters, optionally ended with a bare "...". The declared types
// document the foreign signature but are otherwise discarded: the
// code generator only ever checks argument count.
func (p *Parser) parseExternParList() (names []string, varargs bool) {
	if p.cur.Kind == token.RPAREN {
		return nil, false
	}
	for {
		if p.cur.Kind == token.ELLIPSIS {
			p.advance()
			varargs = true
			break
		}
		p.parseVarType()
		names = append(names, p.expectIdent())
		if p.cur.Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	return names, varargs
}

func (p *Parser) parseInitializer() ast.Initializer {
	if p.cur.Kind == token.LBRACE {
		return p.parseArrayLiteral()
	}
	return p.parseLiteral()
}

func (p *Parser) parseArrayLiteral() *ast.ArrayLiteral {
	p.expect(token.LBRACE)
	var elems []*ast.Literal
	if p.cur.Kind != token.RBRACE {
		for {
			elems = append(elems, p.parseLiteral())
			if p.cur.Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(token.RBRACE)
	return &ast.ArrayLiteral{Elements: elems}
}

func (p *Parser) parseLiteral() *ast.Literal {
	switch p.cur.Kind {
	case token.INT:
		n, _ := strconv.Atoi(p.cur.Literal)
		p.advance()
		return &ast.Literal{Kind: ast.LitInt, Int: n}
	case token.CHAR:
		r := []rune(p.cur.Literal)[0]
		p.advance()
		return &ast.Literal{Kind: ast.LitChar, Chr: r, Int: int(r)}
	case token.STRING:
		s := p.cur.Literal
		p.advance()
		return &ast.Literal{Kind: ast.LitString, Str: s}
	default:
		p.errorf("expected a literal, found %s", p.cur.Kind)
		panic(parseAbort{})
	}
}

// --- statements ---

func (p *Parser) parseBlock() *ast.Block {
	p.expect(token.LBRACE)
	var items []ast.BlockItem
	for p.cur.Kind != token.RBRACE && p.cur.Kind != token.EOF {
		if p.cur.Kind == token.PRIM_TYPE {
			typ := p.parseVarType()
			name := p.expectIdent()
			p.expect(token.SEMI)
			items = append(items, &ast.LocalDeclaration{Type: typ, Name: name})
			continue
		}
		items = append(items, p.parseStatement())
	}
	p.expect(token.RBRACE)
	return &ast.Block{Items: items}
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur.Kind {
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.BREAK:
		p.advance()
		p.expect(token.SEMI)
		return &ast.Break{}
	case token.CONTINUE:
		p.advance()
		p.expect(token.SEMI)
		return &ast.Continue{}
	case token.RETURN:
		p.advance()
		if p.cur.Kind == token.SEMI {
			p.advance()
			return &ast.Return{}
		}
		expr := p.parseExpr()
		p.expect(token.SEMI)
		return &ast.Return{Expr: expr}
	case token.SEMI:
		p.advance()
		return &ast.Empty{}
	default:
		expr := p.parseExpr()
		p.expect(token.SEMI)
		return &ast.ExpressionStmt{Expr: expr}
	}
}

// parseIf resolves dangling else to the innermost if by construction:
// the else continuation is greedily attached to the if it's parsed
// immediately after.
func (p *Parser) parseIf() *ast.If {
	p.advance()
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	p.expect(token.RPAREN)
	then := p.parseStatement()
	var elseStmt ast.Statement
	if p.cur.Kind == token.ELSE {
		p.advance()
		elseStmt = p.parseStatement()
	}
	return &ast.If{Cond: cond, Then: then, Else: elseStmt}
}

func (p *Parser) parseWhile() *ast.While {
	p.advance()
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	p.expect(token.RPAREN)
	body := p.parseStatement()
	return &ast.While{Cond: cond, Body: body}
}

// --- expressions: precedence-climbing ---

func (p *Parser) parseExpr() ast.Expression {
	return p.parseAssignment()
}

// parseAssignment is the lowest-precedence, right-associative level.
func (p *Parser) parseAssignment() ast.Expression {
	left := p.parseLogical()
	if p.cur.Kind == token.EQ {
		p.advance()
		rhs := p.parseAssignment()
		return &ast.Binary{Op: "=", Lhs: left, Rhs: rhs}
	}
	return left
}

// parseLogical handles "&&" and "||" at a single shared precedence
// tier, unlike C's split levels.
func (p *Parser) parseLogical() ast.Expression {
	left := p.parseBitwise()
	for p.cur.Kind == token.AND || p.cur.Kind == token.OR {
		op := p.cur.Literal
		p.advance()
		right := p.parseBitwise()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseBitwise() ast.Expression {
	left := p.parseRelational()
	for p.cur.Kind == token.AMP || p.cur.Kind == token.PIPE || p.cur.Kind == token.CARET {
		op := p.cur.Literal
		p.advance()
		right := p.parseRelational()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseRelational() ast.Expression {
	left := p.parseShift()
	for p.cur.Kind == token.RELOP {
		op := p.cur.Literal
		p.advance()
		right := p.parseShift()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseShift() ast.Expression {
	left := p.parseAdditive()
	for p.cur.Kind == token.SHIFT {
		op := p.cur.Literal
		p.advance()
		right := p.parseAdditive()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.cur.Kind == token.PLUS || p.cur.Kind == token.MINUS {
		op := p.cur.Literal
		p.advance()
		right := p.parseMultiplicative()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parseUnary()
	for isMultiplicative(p.cur.Kind) {
		op := p.cur.Literal
		p.advance()
		right := p.parseUnary()
		left = &ast.Binary{Op: op, Lhs: left, Rhs: right}
	}
	return left
}

func isMultiplicative(k token.Kind) bool {
	switch k {
	case token.STAR, token.SLASH, token.HASH, token.BACKSLASH, token.PERCENT, token.AT:
		return true
	default:
		return false
	}
}

// parseUnary handles the right-associative unary tier: "!", "-", "~",
// and the prefix-only forms that only make sense starting a fresh
// operand: "*expr"/"#expr" dereference and "&lvalue" address-of.
func (p *Parser) parseUnary() ast.Expression {
	switch p.cur.Kind {
	case token.BANG:
		p.advance()
		return &ast.Unary{Op: ast.UnaryNot, Expr: p.parseUnary()}
	case token.MINUS:
		p.advance()
		return &ast.Unary{Op: ast.UnaryNeg, Expr: p.parseUnary()}
	case token.TILDE:
		p.advance()
		return &ast.Unary{Op: ast.UnaryCompl, Expr: p.parseUnary()}
	case token.STAR:
		p.advance()
		return &ast.Dereference{Expr: p.parseUnary(), IsChar: false}
	case token.HASH:
		p.advance()
		return &ast.Dereference{Expr: p.parseUnary(), IsChar: true}
	case token.AMP:
		p.advance()
		operand := p.parseUnary()
		lv, ok := operand.(ast.LValue)
		if !ok {
			p.errorf("cannot take the address of a non-lvalue")
			panic(parseAbort{})
		}
		return &ast.Address{LValue: lv}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.cur.Kind {
	case token.INT, token.CHAR, token.STRING:
		return p.parseLiteral()
	case token.LPAREN:
		p.advance()
		expr := p.parseExpr()
		p.expect(token.RPAREN)
		return expr
	case token.SYSCALL:
		name := p.cur.Literal
		p.advance()
		args := p.parseArgList()
		return &ast.FunctionCall{Name: name, Args: args}
	case token.IDENT:
		name := p.cur.Literal
		p.advance()
		switch p.cur.Kind {
		case token.LPAREN:
			args := p.parseArgList()
			return &ast.FunctionCall{Name: name, Args: args}
		case token.LBRACKET:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACKET)
			return &ast.ArrayAccess{Name: name, Index: idx}
		default:
			return &ast.Identifier{Name: name}
		}
	default:
		p.errorf("unexpected token %s in expression", p.cur.Kind)
		panic(parseAbort{})
	}
}

func (p *Parser) parseArgList() []ast.Expression {
	p.expect(token.LPAREN)
	var args []ast.Expression
	if p.cur.Kind != token.RPAREN {
		for {
			args = append(args, p.parseExpr())
			if p.cur.Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(token.RPAREN)
	return args
}
