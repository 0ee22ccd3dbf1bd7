package engine

import (
	"math"
	"testing"
)

// evalOne resolves a single-scalar model holding the formula and returns
// the scalar's value.
func evalOne(t *testing.T, formula string) Value {
	t.Helper()
	m := NewModel("1.0.0")
	if err := m.AddScalar(&ScalarNode{Name: "x", Formula: NewFormula(formula)}); err != nil {
		t.Fatalf("AddScalar: %v", err)
	}
	env, err := Resolve(m)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", formula, err)
	}
	v, ok := env.Get("x")
	if !ok {
		t.Fatalf("no value for x")
	}
	return v
}

func wantNumber(t *testing.T, formula string, want float64) {
	t.Helper()
	v := evalOne(t, formula)
	n, ok := v.(*Number)
	if !ok {
		t.Fatalf("%s = %s (%s), want number %v", formula, v.Inspect(), v.Type(), want)
	}
	if math.Abs(n.Value-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", formula, n.Value, want)
	}
}

func wantText(t *testing.T, formula, want string) {
	t.Helper()
	v := evalOne(t, formula)
	s, ok := v.(*Text)
	if !ok {
		t.Fatalf("%s = %s (%s), want text %q", formula, v.Inspect(), v.Type(), want)
	}
	if s.Value != want {
		t.Errorf("%s = %q, want %q", formula, s.Value, want)
	}
}

func wantBool(t *testing.T, formula string, want bool) {
	t.Helper()
	v := evalOne(t, formula)
	b, ok := v.(*Boolean)
	if !ok {
		t.Fatalf("%s = %s (%s), want boolean %v", formula, v.Inspect(), v.Type(), want)
	}
	if b.Value != want {
		t.Errorf("%s = %v, want %v", formula, b.Value, want)
	}
}

func wantErrorKind(t *testing.T, formula string, want ErrorKind) {
	t.Helper()
	v := evalOne(t, formula)
	e, ok := v.(*Error)
	if !ok {
		t.Fatalf("%s = %s (%s), want error %s", formula, v.Inspect(), v.Type(), want)
	}
	if e.Kind != want {
		t.Errorf("%s = %s, want %s", formula, e.Kind, want)
	}
}

func TestArithmeticOperators(t *testing.T) {
	tests := []struct {
		formula string
		want    float64
	}{
		{"=1 + 2 * 3", 7},
		{"=(1 + 2) * 3", 9},
		{"=10 / 4", 2.5},
		{"=2 ^ 10", 1024},
		{"=2 ^ 3 ^ 2", 512}, // right associative
		{"=-3 ^ 2", 9},      // unary minus binds tighter
		{"=50%", 0.5},
		{"=200 * 10%", 20},
		{"=7 - -2", 9},
		{"=TRUE + TRUE", 2},
		{"=\"5\" * 2", 10},
	}
	for _, tt := range tests {
		wantNumber(t, tt.formula, tt.want)
	}
}

func TestComparisonOperators(t *testing.T) {
	tests := []struct {
		formula string
		want    bool
	}{
		{"=1 < 2", true},
		{"=2 <= 2", true},
		{"=3 > 4", false},
		{"=2 <> 3", true},
		{`="abc" = "ABC"`, true}, // case-insensitive equality
		{`="abc" = "abd"`, false},
		{`="a" < "b"`, true},
		{`=1 < "a"`, true}, // numbers order before text
		{`="z" < TRUE`, true},
	}
	for _, tt := range tests {
		wantBool(t, tt.formula, tt.want)
	}
}

func TestConcatOperator(t *testing.T) {
	wantText(t, `="rev: " & 1.5`, "rev: 1.5")
	wantText(t, `=1 & 2 & 3`, "123")
	wantText(t, `="is " & TRUE`, "is TRUE")
}

func TestDivideByZero(t *testing.T) {
	wantErrorKind(t, "=1 / 0", ErrDiv0)
	wantErrorKind(t, "=0 ^ -1", ErrDiv0)
	wantErrorKind(t, "=MOD(5, 0)", ErrDiv0)
}

func TestMathFunctions(t *testing.T) {
	tests := []struct {
		formula string
		want    float64
	}{
		{"=ABS(-42)", 42},
		{"=SIGN(-3)", -1},
		{"=SQRT(144)", 12},
		{"=POWER(2, 8)", 256},
		{"=EXP(0)", 1},
		{"=LN(EXP(2))", 2},
		{"=LOG(1000)", 3},
		{"=LOG(8, 2)", 3},
		{"=LOG10(100)", 2},
		{"=MOD(10, 3)", 1},
		{"=MOD(-1, 3)", 2}, // sign follows divisor
		{"=INT(8.9)", 8},
		{"=INT(-8.1)", -9},
		{"=ROUND(3.456, 2)", 3.46},
		{"=ROUND(-3.456, 2)", -3.46},
		{"=ROUND(2.5, 0)", 3}, // half away from zero
		{"=ROUNDUP(3.421, 2)", 3.43},
		{"=ROUNDDOWN(3.456, 2)", 3.45},
		{"=TRUNC(8.97)", 8},
		{"=TRUNC(-8.97, 1)", -8.9},
		{"=CEILING(2.5, 1)", 3},
		{"=CEILING(23, 10)", 30},
		{"=FLOOR(2.5, 1)", 2},
	}
	for _, tt := range tests {
		wantNumber(t, tt.formula, tt.want)
	}
	wantErrorKind(t, "=SQRT(-1)", ErrNum)
	wantErrorKind(t, "=LN(0)", ErrNum)
}

func TestAggregationFunctions(t *testing.T) {
	tests := []struct {
		formula string
		want    float64
	}{
		{"=SUM(1, 2, 3)", 6},
		{"=SUM({1,2,3}, 4)", 10},
		{"=AVERAGE({2, 4, 6})", 4},
		{"=MIN({5, 1, 9})", 1},
		{"=MAX({5, 1, 9})", 9},
		{"=PRODUCT({2, 3, 4})", 24},
		{"=COUNT({1, \"a\", 2, TRUE})", 2},
		{"=COUNTA({1, \"a\", 2})", 3},
		{"=COUNTIF({1, 5, 8, 12}, \">=5\")", 3},
		{"=COUNTIF({\"a\", \"B\", \"a\"}, \"A\")", 2},
		{"=SUMIF({1, 5, 8}, \">4\")", 13},
		{"=SUMIF({1, 2, 3}, \">1\", {10, 20, 30})", 50},
		{"=AVERAGEIF({1, 5, 9}, \">2\")", 7},
		{"=SUMPRODUCT({1,2,3}, {4,5,6})", 32},
	}
	for _, tt := range tests {
		wantNumber(t, tt.formula, tt.want)
	}
	wantErrorKind(t, "=AVERAGE({\"a\"})", ErrDiv0)
	wantErrorKind(t, "=SUMPRODUCT({1,2}, {1})", ErrValue)
}

func TestLogicalFunctions(t *testing.T) {
	wantNumber(t, "=IF(2 > 1, 10, 20)", 10)
	wantNumber(t, "=IF(FALSE, 10, 20)", 20)
	wantBool(t, "=IF(FALSE, 10)", false)
	wantNumber(t, "=IFS(FALSE, 1, TRUE, 2)", 2)
	wantErrorKind(t, "=IFS(FALSE, 1)", ErrNA)
	wantBool(t, "=AND(TRUE, 1, \"TRUE\")", true)
	wantBool(t, "=AND(TRUE, 0)", false)
	wantBool(t, "=OR(FALSE, 0)", false)
	wantBool(t, "=OR(FALSE, 3)", true)
	wantBool(t, "=XOR(TRUE, TRUE, TRUE)", true)
	wantBool(t, "=NOT(0)", true)
	wantText(t, `=SWITCH(2, 1, "one", 2, "two", "many")`, "two")
	wantText(t, `=SWITCH(9, 1, "one", 2, "two", "many")`, "many")
	wantErrorKind(t, `=SWITCH(9, 1, "one")`, ErrNA)
}

func TestErrorInterception(t *testing.T) {
	wantNumber(t, "=IFERROR(1/0, -1)", -1)
	wantNumber(t, "=IFERROR(5, -1)", 5)
	wantErrorKind(t, "=IFNA(1/0, -1)", ErrDiv0) // only intercepts #N/A
	wantNumber(t, "=IFNA(MATCH(9, {1,2}, 0), -1)", -1)
	wantBool(t, "=ISERROR(1/0)", true)
	wantBool(t, "=ISERROR(1)", false)
	wantBool(t, "=ISERR(MATCH(9, {1,2}, 0))", false) // #N/A is not an ISERR error
	wantBool(t, "=ISNA(MATCH(9, {1,2}, 0))", true)
	wantBool(t, "=ISNUMBER(3)", true)
	wantBool(t, "=ISTEXT(\"a\")", true)
	wantBool(t, "=ISLOGICAL(TRUE)", true)
	// An error in the untaken branch must not leak through.
	wantNumber(t, "=IF(TRUE, 1, 1/0)", 1)
}

func TestTextFunctions(t *testing.T) {
	tests := []struct {
		formula string
		want    string
	}{
		{`=CONCAT("a", "b", "c")`, "abc"},
		{`=CONCATENATE("x", 1)`, "x1"},
		{`=LEFT("Hello", 2)`, "He"},
		{`=LEFT("Hello")`, "H"},
		{`=RIGHT("Hello", 3)`, "llo"},
		{`=MID("Hello", 2, 3)`, "ell"},
		{`=LOWER("ABC")`, "abc"},
		{`=UPPER("abc")`, "ABC"},
		{`=PROPER("net income")`, "Net Income"},
		{`=TRIM("  a   b  ")`, "a b"},
		{`=REPT("ab", 3)`, "ababab"},
		{`=SUBSTITUTE("a-b-c", "-", "+")`, "a+b+c"},
		{`=SUBSTITUTE("a-b-c", "-", "+", 2)`, "a-b+c"},
		{`=REPLACE("abcdef", 2, 3, "XY")`, "aXYef"},
		{`=TEXTJOIN(", ", TRUE, "a", "", "b")`, "a, b"},
		{`=TEXTJOIN("-", FALSE, {"a", "", "b"})`, "a--b"},
		{`=TEXT(0.127, "0.00")`, "0.13"},
		{`=TEXT(0.125, "0.0%")`, "12.5%"},
		{`=TEXT(1234567.891, "#,##0.00")`, "1,234,567.89"},
		{`=TEXT(DATE(2024, 3, 1), "yyyy-mm-dd")`, "2024-03-01"},
		{`=TEXT(DATE(2024, 3, 1), "mmmm")`, "March"},
		{`=TEXT(DATE(2024, 3, 1), "mmmm", "fr_FR")`, "mars"},
		{`=TEXT(DATE(2024, 3, 1), "mmm")`, "Mar"},
	}
	for _, tt := range tests {
		wantText(t, tt.formula, tt.want)
	}

	wantNumber(t, `=LEN("Hello")`, 5)
	wantBool(t, `=EXACT("abc", "ABC")`, false)
	wantBool(t, `=EXACT("abc", "abc")`, true)
	wantNumber(t, `=FIND("lo", "Hello")`, 4)
	wantErrorKind(t, `=FIND("LO", "Hello")`, ErrValue)
	wantNumber(t, `=SEARCH("LO", "Hello")`, 4)
	wantNumber(t, `=VALUE("1,250.75")`, 1250.75)
	wantNumber(t, `=VALUE("45%")`, 0.45)
}

func TestDateFunctions(t *testing.T) {
	wantNumber(t, "=YEAR(DATE(2024, 2, 29))", 2024)
	wantNumber(t, "=MONTH(DATE(2024, 2, 29))", 2)
	wantNumber(t, "=DAY(DATE(2024, 2, 29))", 29)
	wantNumber(t, "=MONTH(DATE(2024, 13, 1))", 1) // rolls into next year
	wantNumber(t, "=YEAR(DATE(2024, 13, 1))", 2025)
	wantNumber(t, "=WEEKDAY(DATE(2024, 1, 1))", 2)    // a Monday
	wantNumber(t, "=WEEKDAY(DATE(2024, 1, 1), 2)", 1)
	wantNumber(t, "=DAY(EOMONTH(DATE(2024, 2, 10), 0))", 29)
	wantNumber(t, "=DAY(EOMONTH(DATE(2024, 1, 31), 1))", 29)
	wantNumber(t, "=DAY(EDATE(DATE(2024, 1, 31), 1))", 29) // clamped, not rolled
	wantNumber(t, "=DAYS(DATE(2024, 3, 1), DATE(2024, 2, 1))", 29)
	wantNumber(t, "=DATEDIF(DATE(2020, 6, 15), DATE(2024, 6, 14), \"Y\")", 3)
	wantNumber(t, "=DATEDIF(DATE(2020, 1, 1), DATE(2024, 3, 1), \"M\")", 50)
	wantNumber(t, "=DATEDIF(DATE(2024, 1, 10), DATE(2024, 3, 5), \"MD\")", 24)
	wantNumber(t, "=YEAR(DATEVALUE(\"2024-06-30\"))", 2024)
	wantNumber(t, "=DATE(2024, 1, 2) - DATE(2024, 1, 1)", 1)
}

func TestLookupFunctions(t *testing.T) {
	wantNumber(t, "=INDEX({10, 20, 30}, 2)", 20)
	wantErrorKind(t, "=INDEX({10, 20, 30}, 4)", ErrRef)
	wantNumber(t, "=MATCH(20, {10, 20, 30}, 0)", 2)
	wantNumber(t, "=MATCH(\"b\", {\"a\", \"B\", \"c\"}, 0)", 2)
	wantNumber(t, "=MATCH(25, {10, 20, 30}, 1)", 2)  // largest <=
	wantNumber(t, "=MATCH(25, {30, 20, 10}, -1)", 1) // smallest >=
	wantErrorKind(t, "=MATCH(5, {10, 20}, 0)", ErrNA)
	wantText(t, `=XLOOKUP(2, {1, 2, 3}, {"a", "b", "c"})`, "b")
	wantText(t, `=XLOOKUP(9, {1, 2, 3}, {"a", "b", "c"}, "none")`, "none")
	wantText(t, `=XLOOKUP(25, {10, 20, 30}, {"s", "m", "l"}, "none", -1)`, "m")
	wantText(t, `=XLOOKUP(25, {10, 20, 30}, {"s", "m", "l"}, "none", 1)`, "l")
	wantText(t, `=CHOOSE(2, "a", "b", "c")`, "b")
	wantErrorKind(t, `=CHOOSE(4, "a", "b")`, ErrValue)
}

func TestFinancialFunctions(t *testing.T) {
	// A $1000 loan at 1% per period over 12 periods.
	wantNumber(t, "=PMT(0.01, 12, 1000)", -88.84878867834163)
	wantNumber(t, "=PMT(0, 12, 1200)", -100)
	wantNumber(t, "=IPMT(0.01, 1, 12, 1000)", -10)
	wantNumber(t, "=PPMT(0.01, 1, 12, 1000)", -78.84878867834163)
	wantNumber(t, "=FV(0.05, 10, -100)", 1257.7892535548839)
	wantNumber(t, "=PV(0.05, 10, -100)", 772.1734929184818)
	wantNumber(t, "=NPER(0, -100, 1200)", 12)
	wantNumber(t, "=NPV(0.1, 100, 100)", 173.55371900826447)
	wantErrorKind(t, "=NPV(-1, 100)", ErrDiv0)

	// IRR of a conventional project, cross-checked by discounting back.
	v := evalOne(t, "=IRR({-1000, 300, 400, 500, 200})")
	r, ok := v.(*Number)
	if !ok {
		t.Fatalf("IRR = %s, want number", v.Inspect())
	}
	flows := []float64{-1000, 300, 400, 500, 200}
	npv := 0.0
	for i, cf := range flows {
		npv += cf / math.Pow(1+r.Value, float64(i))
	}
	if math.Abs(npv) > 1e-6 {
		t.Errorf("NPV at IRR %v = %v, want ~0", r.Value, npv)
	}

	wantErrorKind(t, "=IRR({100, 200})", ErrNum) // no sign change
}

func TestStatisticalFunctions(t *testing.T) {
	tests := []struct {
		formula string
		want    float64
	}{
		{"=MEDIAN({1, 3, 9})", 3},
		{"=MEDIAN({1, 3, 5, 9})", 4},
		{"=MODE({1, 2, 2, 3, 3})", 2}, // tie resolves to the smaller
		{"=STDEV({2, 4, 4, 4, 5, 5, 7, 9})", 2.138089935299395},
		{"=STDEVP({2, 4, 4, 4, 5, 5, 7, 9})", 2},
		{"=VAR({1, 2, 3, 4})", 1.6666666666666667},
		{"=VARP({1, 2, 3, 4})", 1.25},
		{"=PERCENTILE({1, 2, 3, 4}, 0.5)", 2.5},
		{"=QUARTILE({1, 2, 3, 4, 5}, 2)", 3},
		{"=LARGE({10, 40, 20}, 1)", 40},
		{"=SMALL({10, 40, 20}, 2)", 20},
		{"=RANK(20, {10, 20, 40})", 2},
		{"=RANK(20, {10, 20, 40}, 1)", 2},
		{"=CORREL({1, 2, 3}, {2, 4, 6})", 1},
	}
	for _, tt := range tests {
		wantNumber(t, tt.formula, tt.want)
	}
	wantErrorKind(t, "=MODE({1, 2, 3})", ErrNA)
	wantErrorKind(t, "=STDEV({5})", ErrDiv0)
}

func TestFPAFunctions(t *testing.T) {
	wantNumber(t, "=VARIANCE(120, 100)", 20)
	wantNumber(t, "=VARIANCE_PCT(120, 100)", 0.2)
	wantErrorKind(t, "=VARIANCE_PCT(120, 0)", ErrDiv0)
	wantNumber(t, "=VARIANCE_PCT(-80, -100)", 0.2)
	wantNumber(t, "=BREAKEVEN_UNITS(50000, 25, 15)", 5000)
	wantErrorKind(t, "=BREAKEVEN_UNITS(50000, 15, 15)", ErrNum)
	wantNumber(t, "=BREAKEVEN_REVENUE(50000, 25, 15)", 125000)
	wantErrorKind(t, "=BREAKEVEN_REVENUE(50000, 15, 15)", ErrNum)
}

func TestLetAndLambda(t *testing.T) {
	wantNumber(t, "=LET(a, 2, b, a * 3, a + b)", 8)
	wantNumber(t, "=LET(x, 10, LET(y, x + 1, y * 2))", 22)
	wantNumber(t, "=LET(f, LAMBDA(x, x * x), f(7))", 49)
	wantNumber(t, "=LET(rate, 0.1, f, LAMBDA(x, x * (1 + rate)), f(100))", 110)
	// Bindings evaluate once: the second binding sees the first.
	wantNumber(t, "=LET(a, 5, a, a + 1, a)", 6)
}

func TestCaseInsensitiveFunctionNames(t *testing.T) {
	wantNumber(t, "=sum(1, 2)", 3)
	wantNumber(t, "=Round(3.456, 2)", 3.46)
	wantNumber(t, "=let(a, 1, a + 1)", 2)
}

func TestUnknownFunctionFails(t *testing.T) {
	m := NewModel("1.0.0")
	if err := m.AddScalar(&ScalarNode{Name: "x", Formula: NewFormula("=SUMM(1, 2)")}); err != nil {
		t.Fatalf("AddScalar: %v", err)
	}
	_, err := Resolve(m)
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if err.Code != "RESOLVE-0004" {
		t.Errorf("code = %s, want RESOLVE-0004", err.Code)
	}
}

func TestWrongArityFails(t *testing.T) {
	m := NewModel("1.0.0")
	if err := m.AddScalar(&ScalarNode{Name: "x", Formula: NewFormula("=ABS(1, 2)")}); err != nil {
		t.Fatalf("AddScalar: %v", err)
	}
	_, err := Resolve(m)
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if err.Code != "RESOLVE-0003" {
		t.Errorf("code = %s, want RESOLVE-0003", err.Code)
	}
}
