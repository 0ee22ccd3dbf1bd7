// Package parser turns formula text into an AST.
//
// The grammar is a single expression with spreadsheet operators and
// precedence. Parsing is pure: resolution and type checks happen later, so
// the only errors produced here are syntax errors with positions.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forgefin/forge/pkg/forge/ast"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
	"github.com/forgefin/forge/pkg/forge/lexer"
)

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	COMPARE  // = <> < <= > >=
	CONCAT   // &
	SUM      // + -
	PRODUCT  // * /
	EXPONENT // ^ (right-associative)
	PREFIX   // -x
	POSTFIX  // x%
)

// precedences maps tokens to their precedence
var precedences = map[lexer.TokenType]int{
	lexer.EQ:       COMPARE,
	lexer.NOT_EQ:   COMPARE,
	lexer.LT:       COMPARE,
	lexer.GT:       COMPARE,
	lexer.LTE:      COMPARE,
	lexer.GTE:      COMPARE,
	lexer.AMP:      CONCAT,
	lexer.PLUS:     SUM,
	lexer.MINUS:    SUM,
	lexer.ASTERISK: PRODUCT,
	lexer.SLASH:    PRODUCT,
	lexer.CARET:    EXPONENT,
	lexer.PERCENT:  POSTFIX,
}

// Parser represents the formula parser
type Parser struct {
	l *lexer.Lexer

	structuredErrors []*ferrors.ForgeError

	curToken  lexer.Token
	peekToken lexer.Token

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// New creates a new parser instance
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l: l,
	}

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.registerPrefix(lexer.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(lexer.STRING, p.parseStringLiteral)
	p.registerPrefix(lexer.TRUE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.FALSE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.IDENT, p.parseIdentifierExpression)
	p.registerPrefix(lexer.MINUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.PLUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(lexer.LBRACE, p.parseArrayLiteral)

	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	p.registerInfix(lexer.PLUS, p.parseInfixExpression)
	p.registerInfix(lexer.MINUS, p.parseInfixExpression)
	p.registerInfix(lexer.ASTERISK, p.parseInfixExpression)
	p.registerInfix(lexer.SLASH, p.parseInfixExpression)
	p.registerInfix(lexer.CARET, p.parseInfixExpression)
	p.registerInfix(lexer.AMP, p.parseInfixExpression)
	p.registerInfix(lexer.EQ, p.parseInfixExpression)
	p.registerInfix(lexer.NOT_EQ, p.parseInfixExpression)
	p.registerInfix(lexer.LT, p.parseInfixExpression)
	p.registerInfix(lexer.GT, p.parseInfixExpression)
	p.registerInfix(lexer.LTE, p.parseInfixExpression)
	p.registerInfix(lexer.GTE, p.parseInfixExpression)
	p.registerInfix(lexer.PERCENT, p.parsePercentExpression)

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse parses a complete formula field, marker included, into an AST.
// This is the main entry point used by the engine.
func Parse(text string) (ast.Expression, *ferrors.ForgeError) {
	if !lexer.HasMarker(text) {
		return nil, ferrors.New("PARSE-0005", map[string]any{"Text": text})
	}

	p := New(lexer.New(lexer.StripMarker(text)))
	expr := p.ParseFormula()
	if errs := p.StructuredErrors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return expr, nil
}

// Errors returns parser errors as strings (convenience method for tests).
// Prefer StructuredErrors() for production code.
func (p *Parser) Errors() []string {
	result := make([]string, len(p.structuredErrors))
	for i, err := range p.structuredErrors {
		if err.Line > 0 {
			result[i] = fmt.Sprintf("line %d, column %d: %s", err.Line, err.Column, err.Message)
		} else {
			result[i] = err.Message
		}
	}
	return result
}

// StructuredErrors returns parser errors as structured ForgeError objects.
func (p *Parser) StructuredErrors() []*ferrors.ForgeError {
	return p.structuredErrors
}

// addStructuredError adds a structured error from the catalog.
// Only the first error is recorded - subsequent errors are usually cascading noise.
func (p *Parser) addStructuredError(code string, line, column int, data map[string]any) {
	if len(p.structuredErrors) > 0 {
		return
	}
	p.structuredErrors = append(p.structuredErrors, ferrors.NewWithPosition(code, line, column, data))
}

// registerPrefix registers a prefix parse function
func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

// registerInfix registers an infix parse function
func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

// nextToken advances curToken and peekToken
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// ParseFormula parses the whole input as one expression and returns the AST.
// Trailing tokens after a complete expression are a syntax error.
func (p *Parser) ParseFormula() ast.Expression {
	expr := p.parseExpression(LOWEST)
	if len(p.structuredErrors) > 0 {
		return nil
	}
	if !p.peekTokenIs(lexer.EOF) {
		p.addStructuredError("PARSE-0002", p.peekToken.Line, p.peekToken.Column,
			map[string]any{"Token": p.peekToken.Literal})
		return nil
	}
	return expr
}

// parseExpression is the Pratt parser core
func (p *Parser) parseExpression(precedence int) ast.Expression {
	if p.curToken.Type == lexer.ILLEGAL {
		// The lexer marks unterminated strings as ILLEGAL with a leading quote.
		if strings.HasPrefix(p.curToken.Literal, `"`) {
			p.addStructuredError("PARSE-0003", p.curToken.Line, p.curToken.Column, nil)
		} else {
			p.addStructuredError("PARSE-0002", p.curToken.Line, p.curToken.Column,
				map[string]any{"Token": p.curToken.Literal})
		}
		return nil
	}

	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.addStructuredError("PARSE-0002", p.curToken.Line, p.curToken.Column,
			map[string]any{"Token": tokenDisplay(p.curToken)})
		return nil
	}
	leftExp := prefix()

	for leftExp != nil && !p.peekTokenIs(lexer.EOF) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

// expectPeek advances if the peek token matches, otherwise records an error
func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addStructuredError("PARSE-0001", p.peekToken.Line, p.peekToken.Column,
		map[string]any{"Expected": t.String(), "Got": tokenDisplay(p.peekToken)})
	return false
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

// parseNumberLiteral parses a numeric literal
func (p *Parser) parseNumberLiteral() ast.Expression {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addStructuredError("PARSE-0004", p.curToken.Line, p.curToken.Column,
			map[string]any{"Literal": p.curToken.Literal})
		return nil
	}
	return &ast.NumberLiteral{Token: p.curToken, Value: value}
}

// parseStringLiteral parses a string literal
func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

// parseBooleanLiteral parses TRUE or FALSE
func (p *Parser) parseBooleanLiteral() ast.Expression {
	return &ast.BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(lexer.TRUE)}
}

// parsePrefixExpression parses unary minus and plus
func (p *Parser) parsePrefixExpression() ast.Expression {
	expr := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
	}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	if expr.Right == nil {
		return nil
	}
	return expr
}

// parseInfixExpression parses binary operators. Exponentiation is
// right-associative: 2^3^2 parses as 2^(3^2).
func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expr := &ast.InfixExpression{
		Token:    p.curToken,
		Left:     left,
		Operator: p.curToken.Literal,
	}

	precedence := p.curPrecedence()
	if p.curTokenIs(lexer.CARET) {
		precedence--
	}
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

// parsePercentExpression parses the postfix percent operator
func (p *Parser) parsePercentExpression(left ast.Expression) ast.Expression {
	return &ast.PercentExpression{Token: p.curToken, Left: left}
}

// parseGroupedExpression parses a parenthesized expression
func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return expr
}

// parseArrayLiteral parses inline arrays like {10, 20, 30}
func (p *Parser) parseArrayLiteral() ast.Expression {
	arr := &ast.ArrayLiteral{Token: p.curToken}

	if p.peekTokenIs(lexer.RBRACE) {
		p.nextToken()
		return arr
	}

	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	arr.Elements = append(arr.Elements, first)

	for p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		p.nextToken()
		el := p.parseExpression(LOWEST)
		if el == nil {
			return nil
		}
		arr.Elements = append(arr.Elements, el)
	}

	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	return arr
}

// parseIdentifierExpression parses everything that begins with an
// identifier: a reference path (`a`, `a.b`, `a.b.c`), an optional row
// offset (`a[-1]`), or a function call (`SUM(...)`, `fns.double(...)`).
// LET and LAMBDA calls become their dedicated AST nodes.
func (p *Parser) parseIdentifierExpression() ast.Expression {
	tok := p.curToken
	path := []string{p.curToken.Literal}

	for p.peekTokenIs(lexer.DOT) {
		p.nextToken() // consume '.'
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		path = append(path, p.curToken.Literal)
	}

	if len(path) > 3 {
		p.addStructuredError("PARSE-0009", tok.Line, tok.Column,
			map[string]any{"Path": strings.Join(path, ".")})
		return nil
	}

	if p.peekTokenIs(lexer.LPAREN) {
		return p.parseCallExpression(tok, path)
	}

	ref := &ast.Reference{Token: tok, Path: path}

	if p.peekTokenIs(lexer.LBRACKET) {
		p.nextToken() // consume '['
		offset, ok := p.parseRowOffset()
		if !ok {
			return nil
		}
		ref.Offset = offset
		ref.HasOffset = true
	}

	return ref
}

// parseRowOffset parses the remainder of a bracketed row offset: a signed
// integer followed by ']'. The current token is the '['.
func (p *Parser) parseRowOffset() (int, bool) {
	sign := 1
	switch p.peekToken.Type {
	case lexer.MINUS:
		sign = -1
		p.nextToken()
	case lexer.PLUS:
		p.nextToken()
	}

	if !p.expectPeek(lexer.NUMBER) {
		return 0, false
	}
	n, err := strconv.Atoi(p.curToken.Literal)
	if err != nil {
		p.addStructuredError("PARSE-0008", p.curToken.Line, p.curToken.Column,
			map[string]any{"Literal": p.curToken.Literal})
		return 0, false
	}

	if !p.expectPeek(lexer.RBRACKET) {
		return 0, false
	}
	return sign * n, true
}

// parseCallExpression parses NAME(args...). The current token is the last
// identifier of the call target; the peek token is '('.
func (p *Parser) parseCallExpression(tok lexer.Token, path []string) ast.Expression {
	name := strings.Join(path, ".")
	p.nextToken() // consume '('

	args := p.parseCallArguments()
	if args == nil {
		return nil
	}

	switch strings.ToUpper(name) {
	case "LET":
		return p.buildLetExpression(tok, args)
	case "LAMBDA":
		return p.buildLambdaLiteral(tok, args)
	}

	return &ast.CallExpression{Token: tok, Name: name, Args: args}
}

// parseCallArguments parses a comma-separated argument list up to ')'.
// The current token is the '('.
func (p *Parser) parseCallArguments() []ast.Expression {
	args := []ast.Expression{}

	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return args
	}

	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	args = append(args, first)

	for p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		p.nextToken()
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		args = append(args, arg)
	}

	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return args
}

// buildLetExpression converts parsed LET arguments into a LetExpression:
// name/value pairs followed by one body expression.
func (p *Parser) buildLetExpression(tok lexer.Token, args []ast.Expression) ast.Expression {
	if len(args) < 3 || len(args)%2 == 0 {
		p.addStructuredError("PARSE-0006", tok.Line, tok.Column, nil)
		return nil
	}

	le := &ast.LetExpression{Token: tok, Body: args[len(args)-1]}
	for i := 0; i+1 < len(args); i += 2 {
		name, ok := bindingName(args[i])
		if !ok {
			p.addStructuredError("PARSE-0006", tok.Line, tok.Column, nil)
			return nil
		}
		le.Bindings = append(le.Bindings, ast.LetBinding{Name: name, Value: args[i+1]})
	}
	return le
}

// buildLambdaLiteral converts parsed LAMBDA arguments into a LambdaLiteral:
// parameter names followed by one body expression.
func (p *Parser) buildLambdaLiteral(tok lexer.Token, args []ast.Expression) ast.Expression {
	if len(args) < 2 {
		p.addStructuredError("PARSE-0007", tok.Line, tok.Column, nil)
		return nil
	}

	ll := &ast.LambdaLiteral{Token: tok, Body: args[len(args)-1]}
	for _, a := range args[:len(args)-1] {
		name, ok := bindingName(a)
		if !ok {
			p.addStructuredError("PARSE-0007", tok.Line, tok.Column, nil)
			return nil
		}
		ll.Params = append(ll.Params, name)
	}
	return ll
}

// bindingName extracts a bare, offset-free, single-part name from an
// expression parsed in LET/LAMBDA name position.
func bindingName(expr ast.Expression) (string, bool) {
	ref, ok := expr.(*ast.Reference)
	if !ok || len(ref.Path) != 1 || ref.HasOffset {
		return "", false
	}
	return ref.Path[0], true
}

// tokenDisplay renders a token for error messages
func tokenDisplay(tok lexer.Token) string {
	if tok.Type == lexer.EOF {
		return "end of formula"
	}
	return tok.Literal
}
