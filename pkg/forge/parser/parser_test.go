package parser

import (
	"testing"

	"github.com/forgefin/forge/pkg/forge/ast"
	"github.com/forgefin/forge/pkg/forge/lexer"
)

// Helper to parse a formula body (no marker) and fail the test on errors
func parseFormula(t *testing.T, input string) ast.Expression {
	t.Helper()
	p := New(lexer.New(input))
	expr := p.ParseFormula()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser error for %q: %s", input, errs[0])
	}
	if expr == nil {
		t.Fatalf("nil expression for %q", input)
	}
	return expr
}

func TestParseWithMarker(t *testing.T) {
	expr, err := Parse("=price*units_sold")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if expr.String() != "(price * units_sold)" {
		t.Errorf("unexpected AST: %s", expr.String())
	}

	if _, err := Parse("price*units_sold"); err == nil {
		t.Error("expected error for missing marker")
	} else if err.Code != "PARSE-0005" {
		t.Errorf("expected PARSE-0005, got %s", err.Code)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a + b * c", "(a + (b * c))"},
		{"a * b + c", "((a * b) + c)"},
		{"-a + b", "((-a) + b)"},
		{"a + b - c", "((a + b) - c)"},
		{"2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"-2 ^ 2", "((-2) ^ 2)"},
		{"a < b + c", "(a < (b + c))"},
		{"a = b * c", "(a = (b * c))"},
		{"a <> b", "(a <> b)"},
		{`"x" & "y" = "xy"`, `(("x" & "y") = "xy")`},
		{"(a + b) * c", "((a + b) * c)"},
		{"a / b / c", "((a / b) / c)"},
		{"5% * x", "((5%) * x)"},
		{"a & b + c", "(a & (b + c))"},
	}

	for _, tt := range tests {
		expr := parseFormula(t, tt.input)
		if expr.String() != tt.expected {
			t.Errorf("input %q: expected %s, got %s", tt.input, tt.expected, expr.String())
		}
	}
}

func TestParseReferences(t *testing.T) {
	tests := []struct {
		input     string
		path      []string
		hasOffset bool
		offset    int
	}{
		{"revenue", []string{"revenue"}, false, 0},
		{"assumptions.price", []string{"assumptions", "price"}, false, 0},
		{"shared.projections.revenue", []string{"shared", "projections", "revenue"}, false, 0},
		{"revenue[-1]", []string{"revenue"}, true, -1},
		{"revenue[+2]", []string{"revenue"}, true, 2},
		{"revenue[0]", []string{"revenue"}, true, 0},
	}

	for _, tt := range tests {
		expr := parseFormula(t, tt.input)
		ref, ok := expr.(*ast.Reference)
		if !ok {
			t.Errorf("input %q: expected *ast.Reference, got %T", tt.input, expr)
			continue
		}
		if len(ref.Path) != len(tt.path) {
			t.Errorf("input %q: path length %d, want %d", tt.input, len(ref.Path), len(tt.path))
			continue
		}
		for i := range tt.path {
			if ref.Path[i] != tt.path[i] {
				t.Errorf("input %q: path[%d]=%q, want %q", tt.input, i, ref.Path[i], tt.path[i])
			}
		}
		if ref.HasOffset != tt.hasOffset || ref.Offset != tt.offset {
			t.Errorf("input %q: offset (%v,%d), want (%v,%d)",
				tt.input, ref.HasOffset, ref.Offset, tt.hasOffset, tt.offset)
		}
	}
}

func TestParseCallExpression(t *testing.T) {
	expr := parseFormula(t, `IF(gross_profit > 0, gross_profit*tax_rate, 0)`)
	call, ok := expr.(*ast.CallExpression)
	if !ok {
		t.Fatalf("expected *ast.CallExpression, got %T", expr)
	}
	if call.Name != "IF" {
		t.Errorf("expected name IF, got %q", call.Name)
	}
	if len(call.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(call.Args))
	}
	if call.Args[0].String() != "(gross_profit > 0)" {
		t.Errorf("unexpected first arg: %s", call.Args[0].String())
	}
}

func TestParseEmptyAndNestedCalls(t *testing.T) {
	expr := parseFormula(t, `PI()`)
	call := expr.(*ast.CallExpression)
	if len(call.Args) != 0 {
		t.Errorf("expected 0 args, got %d", len(call.Args))
	}

	expr = parseFormula(t, `ROUND(SUM(a, b) / 3, 2)`)
	call = expr.(*ast.CallExpression)
	if call.Name != "ROUND" || len(call.Args) != 2 {
		t.Fatalf("unexpected call: %s", call.String())
	}
	inner, ok := call.Args[0].(*ast.InfixExpression)
	if !ok {
		t.Fatalf("expected infix arg, got %T", call.Args[0])
	}
	if _, ok := inner.Left.(*ast.CallExpression); !ok {
		t.Errorf("expected nested call, got %T", inner.Left)
	}
}

func TestParseDottedCall(t *testing.T) {
	expr := parseFormula(t, `fns.double(21)`)
	call, ok := expr.(*ast.CallExpression)
	if !ok {
		t.Fatalf("expected *ast.CallExpression, got %T", expr)
	}
	if call.Name != "fns.double" {
		t.Errorf("expected name fns.double, got %q", call.Name)
	}
}

func TestParseArrayLiteral(t *testing.T) {
	expr := parseFormula(t, `{10, 20, 30}`)
	arr, ok := expr.(*ast.ArrayLiteral)
	if !ok {
		t.Fatalf("expected *ast.ArrayLiteral, got %T", expr)
	}
	if len(arr.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr.Elements))
	}
	if arr.String() != "{10, 20, 30}" {
		t.Errorf("unexpected String(): %s", arr.String())
	}
}

func TestParseLet(t *testing.T) {
	expr := parseFormula(t, `LET(x, 10, y, 20, x + y)`)
	le, ok := expr.(*ast.LetExpression)
	if !ok {
		t.Fatalf("expected *ast.LetExpression, got %T", expr)
	}
	if len(le.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(le.Bindings))
	}
	if le.Bindings[0].Name != "x" || le.Bindings[1].Name != "y" {
		t.Errorf("unexpected binding names: %v, %v", le.Bindings[0].Name, le.Bindings[1].Name)
	}
	if le.Body.String() != "(x + y)" {
		t.Errorf("unexpected body: %s", le.Body.String())
	}
}

func TestParseLetErrors(t *testing.T) {
	bad := []string{
		`LET(x, 10)`,       // no body
		`LET(x)`,           // nothing to bind
		`LET(1, 2, 3)`,     // name is not an identifier
		`LET(a.b, 2, a.b)`, // name is not a bare identifier
	}
	for _, input := range bad {
		p := New(lexer.New(input))
		p.ParseFormula()
		if len(p.Errors()) == 0 {
			t.Errorf("expected parse error for %q", input)
		}
	}
}

func TestParseLambda(t *testing.T) {
	expr := parseFormula(t, `LAMBDA(units, price, units * price)`)
	ll, ok := expr.(*ast.LambdaLiteral)
	if !ok {
		t.Fatalf("expected *ast.LambdaLiteral, got %T", expr)
	}
	if len(ll.Params) != 2 || ll.Params[0] != "units" || ll.Params[1] != "price" {
		t.Errorf("unexpected params: %v", ll.Params)
	}
	if ll.Body.String() != "(units * price)" {
		t.Errorf("unexpected body: %s", ll.Body.String())
	}
}

func TestParseCaseInsensitiveSpecialForms(t *testing.T) {
	if _, ok := parseFormula(t, `let(x, 1, x)`).(*ast.LetExpression); !ok {
		t.Error("expected lowercase let to parse as LetExpression")
	}
	if _, ok := parseFormula(t, `Lambda(x, x)`).(*ast.LambdaLiteral); !ok {
		t.Error("expected mixed-case Lambda to parse as LambdaLiteral")
	}
}

func TestSyntaxErrorsHavePositions(t *testing.T) {
	tests := []string{
		`1 +`,
		`(1 + 2`,
		`SUM(1, 2`,
		`1 2`,
		`a.`,
		`a.b.c.d`,
		`revenue[-]`,
		`"abc`,
		`{1, 2`,
	}

	for _, input := range tests {
		p := New(lexer.New(input))
		expr := p.ParseFormula()
		errs := p.StructuredErrors()
		if expr != nil || len(errs) == 0 {
			t.Errorf("expected syntax error for %q", input)
			continue
		}
		if errs[0].Line == 0 {
			t.Errorf("input %q: error has no position: %s", input, errs[0])
		}
	}
}

func TestOnlyFirstErrorKept(t *testing.T) {
	p := New(lexer.New(`SUM( + `))
	p.ParseFormula()
	if len(p.StructuredErrors()) != 1 {
		t.Errorf("expected exactly one recorded error, got %d", len(p.StructuredErrors()))
	}
}
