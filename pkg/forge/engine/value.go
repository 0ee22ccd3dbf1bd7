package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forgefin/forge/pkg/forge/ast"
)

// ValueType represents the type of computed values
type ValueType string

const (
	NUMBER_VAL  ValueType = "NUMBER"
	TEXT_VAL    ValueType = "TEXT"
	BOOLEAN_VAL ValueType = "BOOLEAN"
	DATE_VAL    ValueType = "DATE"
	BLANK_VAL   ValueType = "BLANK"
	ERROR_VAL   ValueType = "ERROR"
	ARRAY_VAL   ValueType = "ARRAY"
	LAMBDA_VAL  ValueType = "LAMBDA"
)

// Value represents all computed values in the engine
type Value interface {
	Type() ValueType
	Inspect() string
}

// Number represents numeric values. Every number in the engine is a float64;
// this is the single numeric representation the whole engine shares.
type Number struct {
	Value float64
}

func (n *Number) Type() ValueType { return NUMBER_VAL }
func (n *Number) Inspect() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }

// Text represents string values
type Text struct {
	Value string
}

func (t *Text) Type() ValueType { return TEXT_VAL }
func (t *Text) Inspect() string { return t.Value }

// Boolean represents TRUE/FALSE values
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ValueType { return BOOLEAN_VAL }
func (b *Boolean) Inspect() string {
	if b.Value {
		return "TRUE"
	}
	return "FALSE"
}

// dateEpoch is serial day zero. Serial 1 is 1899-12-31, which matches the
// ODF/Gnumeric day-count basis (the reference engine used for conformance).
var dateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Date represents calendar dates as serial day counts from the shared epoch.
// All date functions use this one epoch and the proleptic Gregorian calendar.
type Date struct {
	Serial float64
}

func (d *Date) Type() ValueType { return DATE_VAL }
func (d *Date) Inspect() string { return d.Time().Format("2006-01-02") }

// Time converts the serial to a time.Time in UTC.
func (d *Date) Time() time.Time {
	days := int(d.Serial)
	frac := d.Serial - float64(days)
	t := dateEpoch.AddDate(0, 0, days)
	if frac != 0 {
		t = t.Add(time.Duration(frac * float64(24*time.Hour)))
	}
	return t
}

// NewDate builds a Date from a calendar day.
func NewDate(year int, month time.Month, day int) *Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return DateFromTime(t)
}

// DateFromTime builds a Date from a time.Time, truncated to whole days.
func DateFromTime(t time.Time) *Date {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := int(t.Sub(dateEpoch).Hours() / 24)
	return &Date{Serial: float64(days)}
}

// Blank represents an empty cell: a declared scalar with neither literal nor
// formula content, or a null column entry.
type Blank struct{}

func (b *Blank) Type() ValueType { return BLANK_VAL }
func (b *Blank) Inspect() string { return "" }

// ErrorKind is the spreadsheet-visible classification of an in-band error.
type ErrorKind string

const (
	ErrDiv0  ErrorKind = "#DIV/0!"
	ErrValue ErrorKind = "#VALUE!"
	ErrNA    ErrorKind = "#N/A"
	ErrRef   ErrorKind = "#REF!"
	ErrNum   ErrorKind = "#NUM!"
	ErrName  ErrorKind = "#NAME?"
)

// Error represents an in-band computational error. It propagates through
// enclosing operations exactly as spreadsheet error values do, unless
// intercepted by an error-handling function such as IFERROR.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Type() ValueType { return ERROR_VAL }
func (e *Error) Inspect() string { return string(e.Kind) }

// Detail returns the kind plus the human-readable message, for diagnostics.
func (e *Error) Detail() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, a ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// isError reports whether a value is an in-band error
func isError(v Value) bool {
	_, ok := v.(*Error)
	return ok
}

// Array represents ordered sequences: table columns and multi-value results
type Array struct {
	Elements []Value
}

func (a *Array) Type() ValueType { return ARRAY_VAL }
func (a *Array) Inspect() string {
	var out strings.Builder
	elements := []string{}
	for _, e := range a.Elements {
		elements = append(elements, e.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString("]")
	return out.String()
}

// Lambda represents a callable value: the parameter list, the body as a
// tagged AST subtree, and an immutable snapshot of the bindings visible at
// definition time. Invocation builds a fresh child scope substituting
// call-site arguments for parameters; nothing shared is mutated.
type Lambda struct {
	Params []string
	Body   ast.Expression
	Scope  *Scope

	// def is the evaluation context at the definition site: references in
	// the body resolve against the defining document, group, and row.
	def *evalCtx
}

func (l *Lambda) Type() ValueType { return LAMBDA_VAL }
func (l *Lambda) Inspect() string {
	return "LAMBDA(" + strings.Join(l.Params, ", ") + ", " + l.Body.String() + ")"
}

// Scope is an explicit parent-pointer chain of LET/LAMBDA bindings. Scopes
// are created per evaluation and never mutated after their bindings are set,
// so lambdas can safely capture them.
type Scope struct {
	vars   map[string]Value
	parent *Scope
}

// NewScope creates a scope nested in parent (parent may be nil).
func NewScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]Value), parent: parent}
}

// Lookup walks the chain for a binding.
func (s *Scope) Lookup(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Bind sets a binding in this scope level.
func (s *Scope) Bind(name string, v Value) {
	s.vars[name] = v
}

// Names returns every name visible from this scope, innermost first.
func (s *Scope) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for cur := s; cur != nil; cur = cur.parent {
		for name := range cur.vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
