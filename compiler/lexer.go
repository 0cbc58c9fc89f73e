package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Sprig source
// ---------------------------------------------------------------------------

// Lexer tokenizes Sprig source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// twoChar emits a two-character operator when the next char matches,
// otherwise the single-character one.
func (l *Lexer) twoChar(pos Position, next rune, double, single TokenType) Token {
	first := l.ch
	l.readChar()
	if l.ch == next {
		l.readChar()
		return Token{Type: double, Literal: string(first) + string(next), Pos: pos}
	}
	return Token{Type: single, Literal: string(first), Pos: pos}
}

var singleCharTokens = map[rune]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'?': TokenQuestion,
	':': TokenColon,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	'{': TokenLBrace,
	'}': TokenRBrace,
	',': TokenComma,
	';': TokenSemicolon,
	'.': TokenDot,
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if errTok, ok := l.skipWhitespaceAndComments(); !ok {
		return errTok
	}

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '=':
		return l.twoChar(pos, '=', TokenEq, TokenAssign)

	case l.ch == '!':
		return l.twoChar(pos, '=', TokenNe, TokenBang)

	case l.ch == '<':
		return l.twoChar(pos, '=', TokenLe, TokenLt)

	case l.ch == '>':
		return l.twoChar(pos, '=', TokenGe, TokenGt)

	case l.ch == '&':
		if l.peekChar() != '&' {
			l.readChar()
			return Token{Type: TokenError, Literal: "unexpected character: &", Pos: pos}
		}
		return l.twoChar(pos, '&', TokenAndAnd, TokenError)

	case l.ch == '|':
		if l.peekChar() != '|' {
			l.readChar()
			return Token{Type: TokenError, Literal: "unexpected character: |", Pos: pos}
		}
		return l.twoChar(pos, '|', TokenOrOr, TokenError)

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '\'':
		return l.readCharacter(pos)

	case l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)
	}

	if tt, ok := singleCharTokens[l.ch]; ok {
		ch := l.ch
		l.readChar()
		return Token{Type: tt, Literal: string(ch), Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
}

// skipWhitespaceAndComments skips whitespace, // line comments and /* */
// block comments. It reports an error token for an unterminated block.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			pos := l.position()
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.ch == 0 {
					return Token{Type: TokenError, Literal: "unterminated comment", Pos: pos}, false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}

		return Token{}, true
	}
}

// readEscape decodes the character after a backslash.
func (l *Lexer) readEscape() (rune, bool) {
	switch l.ch {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\', '"', '\'':
		return l.ch, true
	}
	return 0, false
}

// readString reads a double-quoted string literal.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			r, ok := l.readEscape()
			if !ok {
				return Token{Type: TokenError, Literal: fmt.Sprintf("invalid escape \\%c", l.ch), Pos: pos}
			}
			sb.WriteRune(r)
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing "

	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readCharacter reads a character literal such as 'a' or '\n'.
func (l *Lexer) readCharacter(pos Position) Token {
	l.readChar() // consume opening '

	ch := l.ch
	switch ch {
	case 0, '\n', '\'':
		return Token{Type: TokenError, Literal: "invalid character literal", Pos: pos}
	case '\\':
		l.readChar()
		r, ok := l.readEscape()
		if !ok {
			return Token{Type: TokenError, Literal: fmt.Sprintf("invalid escape \\%c", l.ch), Pos: pos}
		}
		ch = r
	}
	l.readChar()

	if l.ch != '\'' {
		return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
	}
	l.readChar()

	return Token{Type: TokenCharacter, Literal: string(ch), Pos: pos}
}

// readNumber reads an integer or float literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isFloat := false

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar() // consume .
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if isFloat {
		return Token{Type: TokenFloat, Literal: l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos

	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	literal := l.input[start:l.pos]
	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
