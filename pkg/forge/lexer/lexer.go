package lexer

import (
	"fmt"
	"strings"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Identifiers and literals
	IDENT  // revenue, gross_profit, SUM, ...
	NUMBER // 42, 3.14, 1e6
	STRING // "foobar"

	// Operators
	PLUS     // +
	MINUS    // -
	ASTERISK // *
	SLASH    // /
	CARET    // ^
	PERCENT  // % (postfix)
	AMP      // & (text concatenation)
	EQ       // =
	NOT_EQ   // <>
	LT       // <
	GT       // >
	LTE      // <=
	GTE      // >=

	// Delimiters
	COMMA    // ,
	DOT      // .
	LPAREN   // (
	RPAREN   // )
	LBRACE   // {
	RBRACE   // }
	LBRACKET // [
	RBRACKET // ]

	// Keywords
	TRUE  // TRUE
	FALSE // FALSE
)

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Line: %d, Column: %d}",
		t.Type.String(), t.Literal, t.Line, t.Column)
}

// String returns a string representation of the token type
func (tt TokenType) String() string {
	switch tt {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case IDENT:
		return "IDENT"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case PLUS:
		return "PLUS"
	case MINUS:
		return "MINUS"
	case ASTERISK:
		return "ASTERISK"
	case SLASH:
		return "SLASH"
	case CARET:
		return "CARET"
	case PERCENT:
		return "PERCENT"
	case AMP:
		return "AMP"
	case EQ:
		return "EQ"
	case NOT_EQ:
		return "NOT_EQ"
	case LT:
		return "LT"
	case GT:
		return "GT"
	case LTE:
		return "LTE"
	case GTE:
		return "GTE"
	case COMMA:
		return "COMMA"
	case DOT:
		return "DOT"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	case LBRACKET:
		return "LBRACKET"
	case RBRACKET:
		return "RBRACKET"
	case TRUE:
		return "TRUE"
	case FALSE:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

// Keywords map for identifying language keywords.
// Formula keywords are case-insensitive, matching spreadsheet convention.
var keywords = map[string]TokenType{
	"TRUE":  TRUE,
	"FALSE": FALSE,
}

// LookupIdent checks if an identifier is a keyword
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToUpper(ident)]; ok {
		return tok
	}
	return IDENT
}

// Marker is the leading character that distinguishes a formula field from a
// plain literal in a model document.
const Marker = '='

// HasMarker reports whether the given field text is a formula.
func HasMarker(text string) bool {
	return len(text) > 0 && text[0] == Marker
}

// StripMarker removes the leading formula marker. The input must begin with
// the marker; callers check HasMarker first.
func StripMarker(text string) string {
	return text[1:]
}

// Lexer represents the lexical analyzer for formula text
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number
}

// New creates a new lexer instance over formula text. The text must already
// have the leading formula marker stripped.
func New(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // ASCII NUL character represents EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

// peekChar returns the next character without advancing
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipWhitespace skips over whitespace characters
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// newToken creates a new token at the current position
func (l *Lexer) newToken(tokenType TokenType, literal string) Token {
	return Token{Type: tokenType, Literal: literal, Line: l.line, Column: l.column}
}

// NextToken scans and returns the next token
func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()

	switch l.ch {
	case '+':
		tok = l.newToken(PLUS, "+")
	case '-':
		tok = l.newToken(MINUS, "-")
	case '*':
		tok = l.newToken(ASTERISK, "*")
	case '/':
		tok = l.newToken(SLASH, "/")
	case '^':
		tok = l.newToken(CARET, "^")
	case '%':
		tok = l.newToken(PERCENT, "%")
	case '&':
		tok = l.newToken(AMP, "&")
	case '=':
		tok = l.newToken(EQ, "=")
	case '<':
		switch l.peekChar() {
		case '>':
			tok = l.newToken(NOT_EQ, "<>")
			l.readChar()
		case '=':
			tok = l.newToken(LTE, "<=")
			l.readChar()
		default:
			tok = l.newToken(LT, "<")
		}
	case '>':
		if l.peekChar() == '=' {
			tok = l.newToken(GTE, ">=")
			l.readChar()
		} else {
			tok = l.newToken(GT, ">")
		}
	case ',':
		tok = l.newToken(COMMA, ",")
	case '.':
		tok = l.newToken(DOT, ".")
	case '(':
		tok = l.newToken(LPAREN, "(")
	case ')':
		tok = l.newToken(RPAREN, ")")
	case '{':
		tok = l.newToken(LBRACE, "{")
	case '}':
		tok = l.newToken(RBRACE, "}")
	case '[':
		tok = l.newToken(LBRACKET, "[")
	case ']':
		tok = l.newToken(RBRACKET, "]")
	case '"':
		return l.readString()
	case 0:
		tok = Token{Type: EOF, Literal: "", Line: l.line, Column: l.column}
	default:
		if isLetter(l.ch) {
			return l.readIdentifier()
		}
		if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = l.newToken(ILLEGAL, string(l.ch))
	}

	l.readChar()
	return tok
}

// readIdentifier reads an identifier: a letter or underscore followed by
// letters, digits, and underscores.
func (l *Lexer) readIdentifier() Token {
	line, column := l.line, l.column
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	literal := l.input[position:l.position]
	return Token{Type: LookupIdent(literal), Literal: literal, Line: line, Column: column}
}

// readNumber reads a numeric literal: digits with an optional decimal part
// and an optional exponent (1e6, 2.5E-3).
func (l *Lexer) readNumber() Token {
	line, column := l.line, l.column
	position := l.position

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		// Only consume the exponent if it is well-formed; otherwise the
		// 'e' starts an identifier and the parser reports the mismatch.
		next := l.peekChar()
		if isDigit(next) {
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
		} else if (next == '+' || next == '-') && l.readPosition+1 < len(l.input) && isDigit(l.input[l.readPosition+1]) {
			l.readChar() // e
			l.readChar() // sign
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	literal := l.input[position:l.position]
	return Token{Type: NUMBER, Literal: literal, Line: line, Column: column}
}

// readString reads a double-quoted string literal. A doubled quote ("")
// inside the literal is an escaped quote, spreadsheet style.
func (l *Lexer) readString() Token {
	line, column := l.line, l.column
	var sb strings.Builder

	l.readChar() // consume opening quote
	for {
		if l.ch == 0 {
			// Unterminated: return what we have as ILLEGAL so the parser
			// can report a position.
			return Token{Type: ILLEGAL, Literal: `"` + sb.String(), Line: line, Column: column}
		}
		if l.ch == '"' {
			if l.peekChar() == '"' {
				sb.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // consume closing quote
			break
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	return Token{Type: STRING, Literal: sb.String(), Line: line, Column: column}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
