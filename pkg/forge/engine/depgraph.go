package engine

import (
	"container/heap"
	"strconv"
	"strings"

	"github.com/forgefin/forge/pkg/forge/ast"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
)

type nodeKind int

const (
	nodeScalar nodeKind = iota
	nodeColumn
)

// graphNode is one evaluatable unit: a scalar, or a whole table column.
type graphNode struct {
	path string
	kind nodeKind
	org  origin

	scalar *ScalarNode
	table  *TableNode
	column *Column

	// isLambda marks scalars whose formula is a LAMBDA literal. Their
	// body dependencies attach to this node so every caller inherits
	// them transitively.
	isLambda bool

	deps       []int
	dependents []int
	depSet     map[int]bool
}

// DependencyGraph indexes every node of a model (includes expanded) and
// carries a deterministic topological evaluation order.
type DependencyGraph struct {
	nodes []*graphNode
	index map[string]int
	order []int
}

// Node returns the graph node for an environment path.
func (g *DependencyGraph) Node(path string) (*graphNode, bool) {
	i, ok := g.index[path]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Order returns node paths in evaluation order.
func (g *DependencyGraph) Order() []string {
	paths := make([]string, len(g.order))
	for i, n := range g.order {
		paths[i] = g.nodes[n].path
	}
	return paths
}

// BuildGraph enumerates the model's nodes, resolves every formula's
// references, and computes a topological order. Ties between ready nodes are
// broken by declaration order, with included documents enumerated before the
// document that includes them.
func BuildGraph(m *Model) (*DependencyGraph, *ferrors.ForgeError) {
	g := &DependencyGraph{index: make(map[string]int)}
	addModelNodes(g, m, "")

	b := &graphBuilder{g: g}
	for _, n := range g.nodes {
		if err := b.collectNode(n); err != nil {
			return nil, err
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

func addModelNodes(g *DependencyGraph, m *Model, prefix string) {
	for _, incName := range m.IncludeNames() {
		sub, _ := m.Include(incName)
		addModelNodes(g, sub, prefix+incName+".")
	}

	add := func(n *graphNode) {
		g.index[n.path] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	for _, e := range m.order {
		if e.table {
			t, _ := m.Table(e.key)
			for _, c := range t.Columns {
				add(&graphNode{
					path:   prefix + t.Name + "." + c.Name,
					kind:   nodeColumn,
					org:    origin{prefix: prefix, model: m, table: t},
					table:  t,
					column: c,
				})
			}
			continue
		}
		s, _ := m.Scalar(e.key)
		n := &graphNode{
			path:   prefix + s.Path(),
			kind:   nodeScalar,
			org:    origin{prefix: prefix, model: m, group: s.Group},
			scalar: s,
		}
		if s.Formula != nil {
			if expr, err := s.Formula.AST(); err == nil {
				_, n.isLambda = expr.(*ast.LambdaLiteral)
			}
		}
		add(n)
	}
}

type graphBuilder struct {
	g *DependencyGraph
}

func (b *graphBuilder) collectNode(n *graphNode) *ferrors.ForgeError {
	var f *Formula
	switch n.kind {
	case nodeScalar:
		f = n.scalar.Formula
	case nodeColumn:
		f = n.column.Formula
	}
	if f == nil {
		return nil
	}

	expr, err := f.AST()
	if err != nil {
		return err.WithNode(n.path)
	}
	return b.collect(n, expr, nil)
}

func (b *graphBuilder) addEdge(n *graphNode, target int) {
	if n.depSet == nil {
		n.depSet = make(map[int]bool)
	}
	if n.depSet[target] {
		return
	}
	n.depSet[target] = true
	n.deps = append(n.deps, target)
	b.g.nodes[target].dependents = append(b.g.nodes[target].dependents, b.g.index[n.path])
}

// collect walks a formula expression recording dependency edges. bound holds
// the LET/LAMBDA names lexically in scope at the current subexpression.
func (b *graphBuilder) collect(n *graphNode, expr ast.Expression, bound map[string]bool) *ferrors.ForgeError {
	switch e := expr.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral:
		return nil

	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			if err := b.collect(n, el, bound); err != nil {
				return err
			}
		}
		return nil

	case *ast.PrefixExpression:
		return b.collect(n, e.Right, bound)

	case *ast.PercentExpression:
		return b.collect(n, e.Left, bound)

	case *ast.InfixExpression:
		if err := b.collect(n, e.Left, bound); err != nil {
			return err
		}
		return b.collect(n, e.Right, bound)

	case *ast.Reference:
		t, err := resolveReference(n.org, e, bound)
		if err != nil {
			return err.WithNode(n.path)
		}
		if t == nil {
			return nil // local binding
		}
		// References into the column's own earlier or later rows
		// sequence within the column, not between nodes.
		if t.hasOffset && t.offset != 0 && t.column == n.column {
			return nil
		}
		return b.edgeTo(n, t.path, e.Token.Line, e.Token.Column)

	case *ast.LetExpression:
		inner := copyBound(bound)
		for _, binding := range e.Bindings {
			if err := b.collect(n, binding.Value, inner); err != nil {
				return err
			}
			inner[binding.Name] = true
		}
		return b.collect(n, e.Body, inner)

	case *ast.LambdaLiteral:
		inner := copyBound(bound)
		for _, p := range e.Params {
			inner[p] = true
		}
		return b.collect(n, e.Body, inner)

	case *ast.CallExpression:
		return b.collectCall(n, e, bound)
	}
	return nil
}

func (b *graphBuilder) edgeTo(n *graphNode, path string, line, column int) *ferrors.ForgeError {
	target, ok := b.g.index[path]
	if !ok {
		// Resolution found the node in the model but the graph does not
		// carry it. This indicates an enumeration bug, surface it loudly.
		return ferrors.NewSimple(ferrors.ClassResolve, "internal: unindexed node "+path).
			WithNode(n.path).WithPosition(line, column)
	}
	b.addEdge(n, target)
	return nil
}

func (b *graphBuilder) collectCall(n *graphNode, call *ast.CallExpression, bound map[string]bool) *ferrors.ForgeError {
	walkArgs := func() *ferrors.ForgeError {
		for _, a := range call.Args {
			if err := b.collect(n, a, bound); err != nil {
				return err
			}
		}
		return nil
	}

	parts := strings.Split(call.Name, ".")

	if len(parts) == 1 {
		if bound[parts[0]] {
			// Calling a local binding. The bound lambda's body was
			// walked where the LAMBDA literal appeared.
			return walkArgs()
		}
		if bi, ok := LookupBuiltin(parts[0]); ok {
			if err := checkArity(call, bi.MinArgs, bi.MaxArgs); err != nil {
				return err.WithNode(n.path)
			}
			return walkArgs()
		}
	}

	// Not a builtin: must name a LAMBDA-valued scalar.
	ref := &ast.Reference{Token: call.Token, Path: parts}
	t, err := resolveReference(n.org, ref, bound)
	if err != nil {
		if err.Code == "RESOLVE-0001" {
			return ferrors.NewUnknownFunction(call.Name, callableNames(b.g, n.org)).
				WithNode(n.path).WithPosition(call.Token.Line, call.Token.Column)
		}
		return err.WithNode(n.path)
	}
	if t == nil || t.isColumn {
		return ferrors.NewWithPosition("RESOLVE-0005", call.Token.Line, call.Token.Column,
			map[string]any{"Name": call.Name}).WithNode(n.path)
	}

	lamIdx, lam, lerr := b.lambdaTarget(n, t.path, call)
	if lerr != nil {
		return lerr
	}
	if len(call.Args) != len(lam.Params) {
		return ferrors.NewWithPosition("RESOLVE-0003", call.Token.Line, call.Token.Column,
			map[string]any{
				"Function": call.Name,
				"Got":      len(call.Args),
				"Want":     strconv.Itoa(len(lam.Params)),
			}).WithNode(n.path)
	}

	b.addEdge(n, lamIdx)
	return walkArgs()
}

// lambdaTarget follows a scalar, through plain reference aliases, to the
// LAMBDA literal it denotes. A node whose alias chain reaches itself is a
// self-referential lambda.
func (b *graphBuilder) lambdaTarget(n *graphNode, path string, call *ast.CallExpression) (int, *ast.LambdaLiteral, *ferrors.ForgeError) {
	visited := []string{}
	for {
		idx, ok := b.g.index[path]
		if !ok {
			break
		}
		for _, seen := range visited {
			if seen == path {
				return 0, nil, ferrors.NewWithPosition("CYCLE-0002", call.Token.Line, call.Token.Column,
					map[string]any{"Chain": strings.Join(append(visited, path), " -> ")}).WithNode(n.path)
			}
		}
		if path == n.path {
			return 0, nil, ferrors.NewWithPosition("CYCLE-0002", call.Token.Line, call.Token.Column,
				map[string]any{"Chain": n.path + " -> " + n.path}).WithNode(n.path)
		}
		visited = append(visited, path)

		target := b.g.nodes[idx]
		if target.kind != nodeScalar || target.scalar.Formula == nil {
			break
		}
		expr, err := target.scalar.Formula.AST()
		if err != nil {
			return 0, nil, err.WithNode(target.path)
		}
		switch body := expr.(type) {
		case *ast.LambdaLiteral:
			return idx, body, nil
		case *ast.Reference:
			alias, rerr := resolveReference(target.org, body, nil)
			if rerr != nil || alias == nil || alias.isColumn {
				break
			}
			path = alias.path
			continue
		}
		break
	}
	return 0, nil, ferrors.NewWithPosition("RESOLVE-0005", call.Token.Line, call.Token.Column,
		map[string]any{"Name": call.Name}).WithNode(n.path)
}

func copyBound(bound map[string]bool) map[string]bool {
	inner := make(map[string]bool, len(bound)+4)
	for k := range bound {
		inner[k] = true
	}
	return inner
}

func checkArity(call *ast.CallExpression, min, max int) *ferrors.ForgeError {
	got := len(call.Args)
	if got >= min && (max < 0 || got <= max) {
		return nil
	}
	want := strconv.Itoa(min)
	switch {
	case max < 0:
		want = "at least " + strconv.Itoa(min)
	case max != min:
		want = strconv.Itoa(min) + " to " + strconv.Itoa(max)
	}
	return ferrors.NewWithPosition("RESOLVE-0003", call.Token.Line, call.Token.Column,
		map[string]any{"Function": strings.ToUpper(call.Name), "Got": got, "Want": want})
}

func callableNames(g *DependencyGraph, o origin) []string {
	names := BuiltinNames()
	for _, n := range g.nodes {
		if n.isLambda && strings.HasPrefix(n.path, o.prefix) {
			names = append(names, strings.TrimPrefix(n.path, o.prefix))
		}
	}
	return names
}

// sort runs Kahn's algorithm with an index-ordered ready heap so equal-depth
// nodes always schedule in declaration order.
func (g *DependencyGraph) sort() *ferrors.ForgeError {
	indegree := make([]int, len(g.nodes))
	ready := &intHeap{}
	for i, n := range g.nodes {
		indegree[i] = len(n.deps)
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, d := range g.nodes[i].dependents {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(order) < len(g.nodes) {
		return g.cycleError(indegree)
	}
	g.order = order
	return nil
}

// cycleError extracts one cycle from the unsorted remainder and reports it
// as an ordered chain.
func (g *DependencyGraph) cycleError(indegree []int) *ferrors.ForgeError {
	start := -1
	for i := range g.nodes {
		if indegree[i] > 0 {
			start = i
			break
		}
	}

	// Walk dependency edges until a node repeats; the repeat closes the
	// cycle. Deps are followed lowest-index-first for a stable report.
	seen := make(map[int]int)
	var chain []int
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			chain = chain[at:]
			break
		}
		seen[cur] = len(chain)
		chain = append(chain, cur)
		next := -1
		for _, d := range g.nodes[cur].deps {
			if indegree[d] > 0 && (next < 0 || d < next) {
				next = d
			}
		}
		cur = next
	}

	parts := make([]string, 0, len(chain)+1)
	allLambda := true
	for _, i := range chain {
		parts = append(parts, g.nodes[i].path)
		allLambda = allLambda && g.nodes[i].isLambda
	}
	parts = append(parts, g.nodes[chain[0]].path)

	code := "CYCLE-0001"
	if allLambda {
		code = "CYCLE-0002"
	}
	return ferrors.New(code, map[string]any{"Chain": strings.Join(parts, " -> ")}).
		WithNode(g.nodes[chain[0]].path)
}

type intHeap []int

func (h intHeap) Len() int            { return len(h) }
func (h intHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any           { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }
