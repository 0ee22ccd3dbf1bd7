package lexer

import "testing"

func TestNextTokenOperators(t *testing.T) {
	input := `+ - * / ^ % & = <> < <= > >= , . ( ) { } [ ]`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{PLUS, "+"},
		{MINUS, "-"},
		{ASTERISK, "*"},
		{SLASH, "/"},
		{CARET, "^"},
		{PERCENT, "%"},
		{AMP, "&"},
		{EQ, "="},
		{NOT_EQ, "<>"},
		{LT, "<"},
		{LTE, "<="},
		{GT, ">"},
		{GTE, ">="},
		{COMMA, ","},
		{DOT, "."},
		{LPAREN, "("},
		{RPAREN, ")"},
		{LBRACE, "{"},
		{RBRACE, "}"},
		{LBRACKET, "["},
		{RBRACKET, "]"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type. expected=%s, got=%s (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextTokenFormula(t *testing.T) {
	input := `IF(gross_profit > 0, gross_profit*tax_rate, 0)`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "IF"},
		{LPAREN, "("},
		{IDENT, "gross_profit"},
		{GT, ">"},
		{NUMBER, "0"},
		{COMMA, ","},
		{IDENT, "gross_profit"},
		{ASTERISK, "*"},
		{IDENT, "tax_rate"},
		{COMMA, ","},
		{NUMBER, "0"},
		{RPAREN, ")"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type. expected=%s, got=%s",
				i, tt.expectedType, tok.Type)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNumberLiterals(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"42", "42"},
		{"3.14", "3.14"},
		{"0.5", "0.5"},
		{"1e6", "1e6"},
		{"2.5E-3", "2.5E-3"},
		{"1e+9", "1e+9"},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != NUMBER {
			t.Errorf("input %q: expected NUMBER, got %s", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.expected {
			t.Errorf("input %q: expected literal %q, got %q", tt.input, tt.expected, tok.Literal)
		}
	}
}

func TestStringLiterals(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"say ""hi"""`, `say "hi"`},
		{`"a,b"`, "a,b"},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != STRING {
			t.Errorf("input %q: expected STRING, got %s", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.expected {
			t.Errorf("input %q: expected literal %q, got %q", tt.input, tt.expected, tok.Literal)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"abc`)
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("expected ILLEGAL for unterminated string, got %s", tok.Type)
	}
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"TRUE", TRUE},
		{"true", TRUE},
		{"False", FALSE},
		{"FALSE", FALSE},
		{"truthy", IDENT},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != tt.expected {
			t.Errorf("input %q: expected %s, got %s", tt.input, tt.expected, tok.Type)
		}
	}
}

func TestRowOffsetReference(t *testing.T) {
	input := `revenue[-1] + units[+2]`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "revenue"},
		{LBRACKET, "["},
		{MINUS, "-"},
		{NUMBER, "1"},
		{RBRACKET, "]"},
		{PLUS, "+"},
		{IDENT, "units"},
		{LBRACKET, "["},
		{PLUS, "+"},
		{NUMBER, "2"},
		{RBRACKET, "]"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType || tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - expected (%s %q), got (%s %q)",
				i, tt.expectedType, tt.expectedLiteral, tok.Type, tok.Literal)
		}
	}
}

func TestMarkerHelpers(t *testing.T) {
	if !HasMarker("=a+b") {
		t.Error("expected HasMarker to be true for formula text")
	}
	if HasMarker("a+b") || HasMarker("") {
		t.Error("expected HasMarker to be false for plain text")
	}
	if got := StripMarker("=a+b"); got != "a+b" {
		t.Errorf("StripMarker: expected %q, got %q", "a+b", got)
	}
}

func TestTokenPositions(t *testing.T) {
	l := New("a + b")
	a := l.NextToken()
	plus := l.NextToken()
	b := l.NextToken()

	if a.Column != 1 || plus.Column != 3 || b.Column != 5 {
		t.Errorf("wrong columns: a=%d plus=%d b=%d", a.Column, plus.Column, b.Column)
	}
	if a.Line != 1 {
		t.Errorf("wrong line: %d", a.Line)
	}
}
