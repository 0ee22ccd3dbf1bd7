package engine

import (
	"math"
	"strings"

	"github.com/forgefin/forge/pkg/forge/ast"
)

// runState holds the in-flight values of one resolution run, keyed by graph
// node index. Slots are written exactly once, after every dependency slot.
type runState struct {
	graph *DependencyGraph
	slots []Value
}

func newRunState(g *DependencyGraph) *runState {
	return &runState{graph: g, slots: make([]Value, len(g.nodes))}
}

func (r *runState) value(path string) (Value, bool) {
	i, ok := r.graph.index[path]
	if !ok || r.slots[i] == nil {
		return nil, false
	}
	return r.slots[i], true
}

// evalCtx is the evaluation context of one formula: the run it reads from,
// the origin its references resolve against, the local binding scope, and
// the row cursor when evaluating a table column.
type evalCtx struct {
	run   *runState
	org   origin
	scope *Scope

	rowMode bool
	row     int
	column  *Column
	partial []Value // own column's rows computed so far
}

// evalNode computes the value of one graph node. Structural problems were
// rejected at graph build time; everything here lands in-band.
func evalNode(run *runState, n *graphNode) Value {
	switch n.kind {
	case nodeScalar:
		if n.scalar.Formula != nil {
			expr, err := n.scalar.Formula.AST()
			if err != nil {
				return newError(ErrValue, "unparsed formula at %s", n.path)
			}
			ctx := &evalCtx{run: run, org: n.org}
			return ctx.eval(expr)
		}
		if n.scalar.Literal != nil {
			return n.scalar.Literal
		}
		return &Blank{}

	case nodeColumn:
		if n.column.Formula == nil {
			return &Array{Elements: n.column.Literal}
		}
		expr, err := n.column.Formula.AST()
		if err != nil {
			return newError(ErrValue, "unparsed formula at %s", n.path)
		}
		rows := n.table.RowCount()
		partial := make([]Value, 0, rows)
		for row := 0; row < rows; row++ {
			ctx := &evalCtx{
				run:     run,
				org:     n.org,
				rowMode: true,
				row:     row,
				column:  n.column,
				partial: partial,
			}
			partial = append(partial, ctx.eval(expr))
		}
		return &Array{Elements: partial}
	}
	return &Blank{}
}

func (c *evalCtx) eval(expr ast.Expression) Value {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return &Number{Value: e.Value}
	case *ast.StringLiteral:
		return &Text{Value: e.Value}
	case *ast.BooleanLiteral:
		return &Boolean{Value: e.Value}

	case *ast.ArrayLiteral:
		out := make([]Value, len(e.Elements))
		for i, el := range e.Elements {
			out[i] = c.eval(el)
		}
		return &Array{Elements: out}

	case *ast.Reference:
		return c.evalReference(e)

	case *ast.PrefixExpression:
		return c.evalPrefix(e)

	case *ast.PercentExpression:
		return broadcast1(c.eval(e.Left), func(v Value) Value {
			f, err := toNumber(v)
			if err != nil {
				return err
			}
			return checkNumeric(f / 100)
		})

	case *ast.InfixExpression:
		return evalInfix(e.Operator, c.eval(e.Left), c.eval(e.Right))

	case *ast.LetExpression:
		inner := *c
		inner.scope = NewScope(c.scope)
		for _, b := range e.Bindings {
			inner.scope.Bind(b.Name, inner.eval(b.Value))
		}
		return inner.eval(e.Body)

	case *ast.LambdaLiteral:
		snap := *c
		return &Lambda{Params: e.Params, Body: e.Body, Scope: c.scope, def: &snap}

	case *ast.CallExpression:
		return c.evalCall(e)
	}
	return newError(ErrValue, "unsupported expression")
}

func (c *evalCtx) evalPrefix(e *ast.PrefixExpression) Value {
	v := c.eval(e.Right)
	switch e.Operator {
	case "-":
		return broadcast1(v, func(v Value) Value {
			f, err := toNumber(v)
			if err != nil {
				return err
			}
			return checkNumeric(-f)
		})
	case "+":
		return broadcast1(v, func(v Value) Value {
			f, err := toNumber(v)
			if err != nil {
				return err
			}
			return checkNumeric(f)
		})
	}
	return newError(ErrValue, "unknown operator %s", e.Operator)
}

func (c *evalCtx) evalReference(ref *ast.Reference) Value {
	if c.scope != nil && len(ref.Path) == 1 && !ref.HasOffset {
		if v, ok := c.scope.Lookup(ref.Path[0]); ok {
			return v
		}
	}

	t, rerr := resolveReference(c.org, ref, nil)
	if rerr != nil {
		return newError(ErrName, "%s", rerr.Message)
	}
	if t == nil {
		return newError(ErrName, "unknown name: %s", strings.Join(ref.Path, "."))
	}

	if t.isColumn && t.sameTable && c.rowMode {
		return c.rowValue(t, ref)
	}

	v, ok := c.run.value(t.path)
	if !ok {
		return newError(ErrName, "value of %s is not available", t.path)
	}
	return v
}

// rowValue resolves a bare sibling-column reference at the current row,
// applying the row offset if present.
func (c *evalCtx) rowValue(t *refTarget, ref *ast.Reference) Value {
	idx := c.row + t.offset

	if t.column == c.column {
		// Own column: only rows already computed are addressable.
		if !t.hasOffset || idx < 0 || idx >= c.row {
			return newError(ErrRef, "row %d of %s is not available from row %d", idx, ref.Name(), c.row)
		}
		return c.partial[idx]
	}

	v, ok := c.run.value(t.path)
	if !ok {
		return newError(ErrName, "value of %s is not available", t.path)
	}
	arr, ok := v.(*Array)
	if !ok {
		return newError(ErrValue, "%s is not a column", ref.Name())
	}
	if idx < 0 || idx >= len(arr.Elements) {
		return newError(ErrRef, "row offset %d out of range for %s", t.offset, ref.Name())
	}
	return arr.Elements[idx]
}

func (c *evalCtx) evalCall(call *ast.CallExpression) Value {
	parts := strings.Split(call.Name, ".")

	if len(parts) == 1 && c.scope != nil {
		if v, ok := c.scope.Lookup(parts[0]); ok {
			lam, ok := v.(*Lambda)
			if !ok {
				if e, isErr := v.(*Error); isErr {
					return e
				}
				return newError(ErrValue, "%s is not callable", call.Name)
			}
			return c.callLambda(lam, c.evalArgs(call.Args))
		}
	}

	if len(parts) == 1 {
		if bi, ok := LookupBuiltin(parts[0]); ok {
			return c.callBuiltin(bi, call)
		}
	}

	t, rerr := resolveReference(c.org, &ast.Reference{Token: call.Token, Path: parts}, nil)
	if rerr != nil || t == nil || t.isColumn {
		return newError(ErrName, "unknown function: %s", call.Name)
	}
	v, ok := c.run.value(t.path)
	if !ok {
		return newError(ErrName, "value of %s is not available", t.path)
	}
	lam, ok := v.(*Lambda)
	if !ok {
		return newError(ErrValue, "%s is not callable", call.Name)
	}
	return c.callLambda(lam, c.evalArgs(call.Args))
}

func (c *evalCtx) evalArgs(args []ast.Expression) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = c.eval(a)
	}
	return out
}

func (c *evalCtx) callBuiltin(bi *Builtin, call *ast.CallExpression) Value {
	args := c.evalArgs(call.Args)
	if len(args) < bi.MinArgs || (bi.MaxArgs >= 0 && len(args) > bi.MaxArgs) {
		return newError(ErrValue, "wrong number of arguments to %s", bi.Name)
	}
	if !bi.AcceptsErrors {
		for _, a := range args {
			if e, ok := a.(*Error); ok {
				return e
			}
		}
	}
	return bi.Fn(args)
}

// callLambda applies arguments in a fresh scope under the lambda's captured
// scope and evaluates the body in the lambda's definition context.
func (c *evalCtx) callLambda(lam *Lambda, args []Value) Value {
	if len(args) != len(lam.Params) {
		return newError(ErrValue, "wrong number of arguments: got %d, want %d", len(args), len(lam.Params))
	}
	scope := NewScope(lam.Scope)
	for i, p := range lam.Params {
		scope.Bind(p, args[i])
	}

	inner := *lam.def
	inner.run = c.run
	inner.scope = scope
	return inner.eval(lam.Body)
}

// evalInfix applies a binary operator with elementwise array broadcasting.
func evalInfix(op string, l, r Value) Value {
	if e, ok := l.(*Error); ok {
		return e
	}
	if e, ok := r.(*Error); ok {
		return e
	}
	return broadcast2(l, r, func(a, b Value) Value {
		return scalarInfix(op, a, b)
	})
}

func scalarInfix(op string, l, r Value) Value {
	if e, ok := l.(*Error); ok {
		return e
	}
	if e, ok := r.(*Error); ok {
		return e
	}

	switch op {
	case "&":
		ls, err := toText(l)
		if err != nil {
			return err
		}
		rs, err := toText(r)
		if err != nil {
			return err
		}
		return &Text{Value: ls + rs}

	case "+", "-", "*", "/", "^":
		a, err := toNumber(l)
		if err != nil {
			return err
		}
		b, err := toNumber(r)
		if err != nil {
			return err
		}
		return numericInfix(op, a, b)

	case "=", "<>", "<", "<=", ">", ">=":
		cmp, err := compareValues(l, r)
		if err != nil {
			return err
		}
		var out bool
		switch op {
		case "=":
			out = cmp == 0
		case "<>":
			out = cmp != 0
		case "<":
			out = cmp < 0
		case "<=":
			out = cmp <= 0
		case ">":
			out = cmp > 0
		case ">=":
			out = cmp >= 0
		}
		return &Boolean{Value: out}
	}
	return newError(ErrValue, "unknown operator %s", op)
}

func numericInfix(op string, a, b float64) Value {
	switch op {
	case "+":
		return checkNumeric(a + b)
	case "-":
		return checkNumeric(a - b)
	case "*":
		return checkNumeric(a * b)
	case "/":
		if b == 0 {
			return newError(ErrDiv0, "division by zero")
		}
		return checkNumeric(a / b)
	case "^":
		if a == 0 && b < 0 {
			return newError(ErrDiv0, "zero raised to a negative power")
		}
		return checkNumeric(math.Pow(a, b))
	}
	return newError(ErrValue, "unknown operator %s", op)
}

// compareKind orders value families for cross-type comparison: all numbers
// sort before all text, which sorts before all booleans.
func compareKind(v Value) int {
	switch v.(type) {
	case *Number, *Date:
		return 0
	case *Text:
		return 1
	case *Boolean:
		return 2
	}
	return 0
}

// compareValues orders two scalar values. Blanks coerce to the peer's zero
// value, text comparison is case-insensitive.
func compareValues(l, r Value) (int, *Error) {
	if _, ok := l.(*Blank); ok {
		l = blankAs(r)
	}
	if _, ok := r.(*Blank); ok {
		r = blankAs(l)
	}

	lk, rk := compareKind(l), compareKind(r)
	if lk != rk {
		if lk < rk {
			return -1, nil
		}
		return 1, nil
	}

	switch lk {
	case 0:
		a, err := toNumber(l)
		if err != nil {
			return 0, err
		}
		b, err := toNumber(r)
		if err != nil {
			return 0, err
		}
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	case 1:
		a := strings.ToLower(l.(*Text).Value)
		b := strings.ToLower(r.(*Text).Value)
		return strings.Compare(a, b), nil
	default:
		a := l.(*Boolean).Value
		b := r.(*Boolean).Value
		switch {
		case a == b:
			return 0, nil
		case !a:
			return -1, nil
		}
		return 1, nil
	}
}

// blankAs maps a blank to the zero value of its comparison peer.
func blankAs(peer Value) Value {
	switch peer.(type) {
	case *Text:
		return &Text{Value: ""}
	case *Boolean:
		return &Boolean{Value: false}
	default:
		return &Number{Value: 0}
	}
}
