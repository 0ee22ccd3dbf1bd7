// Package ast defines the abstract syntax tree for forge formulas.
//
// A formula is a single expression: there are no statements. Every node
// carries the token it was parsed from so that later phases (resolution,
// dependency analysis, evaluation) can report positions.
package ast

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/forgefin/forge/pkg/forge/lexer"
)

// Node represents any node in the AST
type Node interface {
	TokenLiteral() string
	String() string
}

// Expression represents expression nodes
type Expression interface {
	Node
	expressionNode()
}

// NumberLiteral represents numeric literals like 42 or 3.14
type NumberLiteral struct {
	Token lexer.Token // the lexer.NUMBER token
	Value float64
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) String() string       { return nl.Token.Literal }

// StringLiteral represents string literals like "Hello"
type StringLiteral struct {
	Token lexer.Token // the lexer.STRING token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string {
	return `"` + strings.ReplaceAll(sl.Value, `"`, `""`) + `"`
}

// BooleanLiteral represents TRUE and FALSE
type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string {
	if bl.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ArrayLiteral represents inline arrays like {10, 20, 30}
type ArrayLiteral struct {
	Token    lexer.Token // the '{' token
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) String() string {
	var out bytes.Buffer
	elements := []string{}
	for _, el := range al.Elements {
		elements = append(elements, el.String())
	}
	out.WriteString("{")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString("}")
	return out.String()
}

// Reference represents a reference to another node in the model: a bare name
// (`revenue`), a dotted path (`assumptions.price`, `projections.revenue`,
// `shared.tax_rate`), optionally with a row-relative offset (`revenue[-1]`)
// inside a table-column formula.
type Reference struct {
	Token     lexer.Token // the first IDENT token of the path
	Path      []string    // one to three parts
	Offset    int         // row-relative offset; meaningful when HasOffset
	HasOffset bool
}

func (r *Reference) expressionNode()      {}
func (r *Reference) TokenLiteral() string { return r.Token.Literal }
func (r *Reference) String() string {
	s := strings.Join(r.Path, ".")
	if r.HasOffset {
		if r.Offset >= 0 {
			s += "[+" + strconv.Itoa(r.Offset) + "]"
		} else {
			s += "[" + strconv.Itoa(r.Offset) + "]"
		}
	}
	return s
}

// Name returns the last path component.
func (r *Reference) Name() string { return r.Path[len(r.Path)-1] }

// PrefixExpression represents unary expressions like -x
type PrefixExpression struct {
	Token    lexer.Token // the prefix token, e.g. '-'
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	return "(" + pe.Operator + pe.Right.String() + ")"
}

// InfixExpression represents binary expressions like a + b
type InfixExpression struct {
	Token    lexer.Token // the operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// PercentExpression represents the postfix percent operator: 5% is 0.05
type PercentExpression struct {
	Token lexer.Token // the '%' token
	Left  Expression
}

func (pe *PercentExpression) expressionNode()      {}
func (pe *PercentExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PercentExpression) String() string {
	return "(" + pe.Left.String() + "%)"
}

// CallExpression represents function calls like SUM(a, b) or, when Name
// resolves to a LAMBDA-valued node or binding, a lambda invocation.
type CallExpression struct {
	Token lexer.Token // the IDENT token of the function name
	Name  string
	Args  []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) String() string {
	var out bytes.Buffer
	args := []string{}
	for _, a := range ce.Args {
		args = append(args, a.String())
	}
	out.WriteString(ce.Name)
	out.WriteString("(")
	out.WriteString(strings.Join(args, ", "))
	out.WriteString(")")
	return out.String()
}

// LetBinding is one name/value pair inside a LET expression.
type LetBinding struct {
	Name  string
	Value Expression
}

// LetExpression represents LET(n1, v1, ..., nk, vk, body). Bindings are
// sequential: each value may reference the names bound before it. The
// bindings are visible only inside Body.
type LetExpression struct {
	Token    lexer.Token // the LET IDENT token
	Bindings []LetBinding
	Body     Expression
}

func (le *LetExpression) expressionNode()      {}
func (le *LetExpression) TokenLiteral() string { return le.Token.Literal }
func (le *LetExpression) String() string {
	var out bytes.Buffer
	out.WriteString("LET(")
	for _, b := range le.Bindings {
		out.WriteString(b.Name)
		out.WriteString(", ")
		out.WriteString(b.Value.String())
		out.WriteString(", ")
	}
	out.WriteString(le.Body.String())
	out.WriteString(")")
	return out.String()
}

// LambdaLiteral represents LAMBDA(p1, ..., pk, body): a callable value.
// The body is not evaluated until the lambda is invoked.
type LambdaLiteral struct {
	Token  lexer.Token // the LAMBDA IDENT token
	Params []string
	Body   Expression
}

func (ll *LambdaLiteral) expressionNode()      {}
func (ll *LambdaLiteral) TokenLiteral() string { return ll.Token.Literal }
func (ll *LambdaLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("LAMBDA(")
	out.WriteString(strings.Join(ll.Params, ", "))
	out.WriteString(", ")
	out.WriteString(ll.Body.String())
	out.WriteString(")")
	return out.String()
}

// Walk calls fn for expr and every expression beneath it, in source order.
// Walking continues while fn returns true.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *ArrayLiteral:
		for _, el := range e.Elements {
			Walk(el, fn)
		}
	case *PrefixExpression:
		Walk(e.Right, fn)
	case *InfixExpression:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *PercentExpression:
		Walk(e.Left, fn)
	case *CallExpression:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *LetExpression:
		for _, b := range e.Bindings {
			Walk(b.Value, fn)
		}
		Walk(e.Body, fn)
	case *LambdaLiteral:
		Walk(e.Body, fn)
	}
}
