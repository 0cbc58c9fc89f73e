package compiler

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Sprig
// ---------------------------------------------------------------------------

// Parser parses Sprig source code into an AST.
type Parser struct {
	tokens []Token
	pos    int
	err    *Error
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{tokens: Tokenize(input)}
}

// Parse parses a complete source file.
func Parse(source string) (*Program, error) {
	return NewParser(source).ParseProgram()
}

func (p *Parser) cur() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	i := p.pos + n
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

// nextToken advances to the next token.
func (p *Parser) nextToken() Token {
	tok := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.cur().Type == t
}

// accept consumes the current token if it matches.
func (p *Parser) accept(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes a token of the given type or fails.
func (p *Parser) expect(t TokenType) Token {
	if !p.curTokenIs(t) {
		p.errorf("expected %s, got %s", t, p.describe(p.cur()))
	}
	return p.nextToken()
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of file"
	case TokenIdentifier, TokenInteger, TokenFloat:
		return strconv.Quote(tok.Literal)
	}
	return tok.Type.String()
}

// errorf records a parse error at the current token and unwinds.
func (p *Parser) errorf(format string, args ...any) {
	tok := p.cur()
	if tok.Type == TokenError {
		p.err = errorAt(tok.Pos, "%s", tok.Literal)
	} else {
		p.err = errorAt(tok.Pos, format, args...)
	}
	panic(bailout{})
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses declarations until end of input.
func (p *Parser) ParseProgram() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog, err = nil, p.err
		}
	}()

	prog = &Program{}
	for !p.curTokenIs(TokenEOF) {
		prog.Decls = append(prog.Decls, p.parseDecl())
	}
	return prog, nil
}

func (p *Parser) parseDecl() Decl {
	if p.curTokenIs(TokenClass) {
		return p.parseClass()
	}
	if !p.isTypeStart() {
		p.errorf("expected declaration, got %s", p.describe(p.cur()))
	}
	typ := p.parseType()
	name := p.expect(TokenIdentifier)
	if p.curTokenIs(TokenLParen) {
		return p.parseFuncRest(typ, name)
	}
	return p.parseVarRest(typ, name)
}

func (p *Parser) parseClass() *ClassDecl {
	start := p.expect(TokenClass)
	name := p.expect(TokenIdentifier)
	class := &ClassDecl{Position: start.Pos, Name: name.Literal}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		if !p.isTypeStart() {
			p.errorf("expected field or method in class %s, got %s", class.Name, p.describe(p.cur()))
		}
		typ := p.parseType()
		member := p.expect(TokenIdentifier)
		if p.curTokenIs(TokenLParen) {
			class.Methods = append(class.Methods, p.parseFuncRest(typ, member))
			continue
		}
		p.expect(TokenSemicolon)
		class.Fields = append(class.Fields, FieldDecl{Position: member.Pos, Type: typ, Name: member.Literal})
	}
	p.expect(TokenRBrace)
	return class
}

func (p *Parser) parseFuncRest(ret TypeRef, name Token) *FuncDecl {
	fn := &FuncDecl{Position: ret.Position, ReturnType: ret, Name: name.Literal}
	p.expect(TokenLParen)
	if !p.curTokenIs(TokenRParen) {
		for {
			typ := p.parseType()
			pname := p.expect(TokenIdentifier)
			fn.Params = append(fn.Params, ParamDecl{Position: pname.Pos, Type: typ, Name: pname.Literal})
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	p.expect(TokenRParen)
	fn.Body = p.parseBlock()
	return fn
}

func (p *Parser) parseVarRest(typ TypeRef, name Token) *VarDecl {
	decl := &VarDecl{Position: typ.Position, Type: typ, Name: name.Literal}
	if p.accept(TokenAssign) {
		decl.Init = p.parseExpression()
	}
	p.expect(TokenSemicolon)
	return decl
}

// isTypeStart reports whether the upcoming tokens read "T name" or
// "T[]... name", which starts a declaration rather than an expression.
func (p *Parser) isTypeStart() bool {
	if !p.curTokenIs(TokenIdentifier) {
		return false
	}
	i := 1
	for p.peekAt(i).Type == TokenLBracket && p.peekAt(i+1).Type == TokenRBracket {
		i += 2
	}
	return p.peekAt(i).Type == TokenIdentifier
}

// parseType parses a type name with any number of [] suffixes.
func (p *Parser) parseType() TypeRef {
	tok := p.expect(TokenIdentifier)
	var sb strings.Builder
	sb.WriteString(tok.Literal)
	for p.curTokenIs(TokenLBracket) && p.peekAt(1).Type == TokenRBracket {
		p.nextToken()
		p.nextToken()
		sb.WriteString("[]")
	}
	return TypeRef{Position: tok.Pos, Name: sb.String()}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock() *Block {
	start := p.expect(TokenLBrace)
	block := &Block{Position: start.Pos}
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.errorf("unterminated block")
		}
		block.Statements = append(block.Statements, p.parseStatement())
	}
	p.expect(TokenRBrace)
	return block
}

func (p *Parser) parseStatement() Stmt {
	tok := p.cur()
	switch tok.Type {
	case TokenLBrace:
		return p.parseBlock()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		p.expect(TokenLParen)
		cond := p.parseExpression()
		p.expect(TokenRParen)
		return &While{Position: tok.Pos, Cond: cond, Body: p.parseStatement()}
	case TokenFor:
		return p.parseFor()
	case TokenReturn:
		p.nextToken()
		ret := &Return{Position: tok.Pos}
		if !p.curTokenIs(TokenSemicolon) {
			ret.Value = p.parseExpression()
		}
		p.expect(TokenSemicolon)
		return ret
	}

	if p.isTypeStart() {
		typ := p.parseType()
		return p.parseVarRest(typ, p.expect(TokenIdentifier))
	}
	expr := p.parseExpression()
	p.expect(TokenSemicolon)
	return &ExprStmt{Position: tok.Pos, Expr: expr}
}

func (p *Parser) parseIf() *If {
	start := p.expect(TokenIf)
	p.expect(TokenLParen)
	cond := p.parseExpression()
	p.expect(TokenRParen)
	stmt := &If{Position: start.Pos, Cond: cond, Then: p.parseStatement()}
	if p.accept(TokenElse) {
		stmt.Else = p.parseStatement()
	}
	return stmt
}

func (p *Parser) parseFor() *For {
	start := p.expect(TokenFor)
	p.expect(TokenLParen)
	stmt := &For{Position: start.Pos}

	switch {
	case p.accept(TokenSemicolon):
	case p.isTypeStart():
		typ := p.parseType()
		stmt.Init = p.parseVarRest(typ, p.expect(TokenIdentifier))
	default:
		pos := p.cur().Pos
		stmt.Init = &ExprStmt{Position: pos, Expr: p.parseExpression()}
		p.expect(TokenSemicolon)
	}

	if !p.curTokenIs(TokenSemicolon) {
		stmt.Cond = p.parseExpression()
	}
	p.expect(TokenSemicolon)

	if !p.curTokenIs(TokenRParen) {
		stmt.Post = p.parseExpression()
	}
	p.expect(TokenRParen)

	stmt.Body = p.parseStatement()
	return stmt
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() (expr Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			expr, err = nil, p.err
		}
	}()
	expr = p.parseExpression()
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.describe(p.cur()))
	}
	return expr, nil
}

func (p *Parser) parseExpression() Expr {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() Expr {
	left := p.parseTernary()
	if tok := p.cur(); tok.Type == TokenAssign {
		p.nextToken()
		return &Assign{Position: tok.Pos, Target: left, Value: p.parseAssignment()}
	}
	return left
}

func (p *Parser) parseTernary() Expr {
	cond := p.parseBinary(0)
	if tok := p.cur(); tok.Type == TokenQuestion {
		p.nextToken()
		then := p.parseExpression()
		p.expect(TokenColon)
		return &Ternary{Position: tok.Pos, Cond: cond, Then: then, Else: p.parseTernary()}
	}
	return cond
}

// binaryLevels lists infix operators from loosest to tightest binding.
var binaryLevels = [][]TokenType{
	{TokenOrOr},
	{TokenAndAnd},
	{TokenEq, TokenNe},
	{TokenLt, TokenLe, TokenGt, TokenGe},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) parseBinary(level int) Expr {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	left := p.parseBinary(level + 1)
	for {
		tok := p.cur()
		matched := false
		for _, t := range binaryLevels[level] {
			if tok.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
		p.nextToken()
		right := p.parseBinary(level + 1)
		left = &Binary{Position: tok.Pos, Op: tok.Type.String(), Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() Expr {
	tok := p.cur()
	if tok.Type == TokenMinus || tok.Type == TokenBang {
		p.nextToken()
		return &Unary{Position: tok.Pos, Op: tok.Type.String(), Operand: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	for {
		tok := p.cur()
		switch tok.Type {
		case TokenLParen:
			p.nextToken()
			call := &Call{Position: tok.Pos, Callee: expr}
			if !p.curTokenIs(TokenRParen) {
				for {
					call.Args = append(call.Args, p.parseExpression())
					if !p.accept(TokenComma) {
						break
					}
				}
			}
			p.expect(TokenRParen)
			expr = call
		case TokenDot:
			p.nextToken()
			name := p.expect(TokenIdentifier)
			expr = &Member{Position: tok.Pos, Object: expr, Name: name.Literal}
		case TokenLBracket:
			p.nextToken()
			idx := p.parseExpression()
			p.expect(TokenRBracket)
			expr = &Index{Position: tok.Pos, Array: expr, Index: idx}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.pos--
			p.errorf("integer literal %s out of range", tok.Literal)
		}
		return &IntLiteral{Position: tok.Pos, Value: v}
	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.pos--
			p.errorf("invalid float literal %s", tok.Literal)
		}
		return &FloatLiteral{Position: tok.Pos, Value: v}
	case TokenString:
		p.nextToken()
		return &StringLiteral{Position: tok.Pos, Value: tok.Literal}
	case TokenCharacter:
		p.nextToken()
		r := []rune(tok.Literal)
		return &CharLiteral{Position: tok.Pos, Value: r[0]}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{Position: tok.Pos, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{Position: tok.Pos}
	case TokenThis:
		p.nextToken()
		return &This{Position: tok.Pos}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{Position: tok.Pos, Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		expr := p.parseExpression()
		p.expect(TokenRParen)
		return expr
	case TokenNew:
		return p.parseNew()
	}
	p.errorf("expected expression, got %s", p.describe(tok))
	return nil
}

// parseNew parses new C() or new T[]...[length].
func (p *Parser) parseNew() Expr {
	start := p.expect(TokenNew)
	name := p.expect(TokenIdentifier)
	if p.accept(TokenLParen) {
		p.expect(TokenRParen)
		return &NewObject{Position: start.Pos, Class: name.Literal}
	}

	elem := TypeRef{Position: name.Pos, Name: name.Literal}
	for p.curTokenIs(TokenLBracket) && p.peekAt(1).Type == TokenRBracket {
		p.nextToken()
		p.nextToken()
		elem.Name += "[]"
	}
	p.expect(TokenLBracket)
	length := p.parseExpression()
	p.expect(TokenRBracket)
	return &NewArray{Position: start.Pos, Element: elem, Length: length}
}
