package engine

import (
	"strconv"
	"strings"

	"github.com/forgefin/forge/pkg/forge/ast"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
	"github.com/forgefin/forge/pkg/forge/parser"
)

// Formula is formula text exclusively owned by one node, with its lazily
// built AST. The source keeps the leading '=' marker.
type Formula struct {
	Source string

	parsed   bool
	expr     ast.Expression
	parseErr *ferrors.ForgeError
}

// NewFormula wraps formula field text. The text must include the marker.
func NewFormula(source string) *Formula {
	return &Formula{Source: source}
}

// AST parses the formula on first use and caches the result. The model is
// built and resolved on one goroutine, so no locking is needed here.
func (f *Formula) AST() (ast.Expression, *ferrors.ForgeError) {
	if !f.parsed {
		f.parsed = true
		f.expr, f.parseErr = parser.Parse(f.Source)
	}
	return f.expr, f.parseErr
}

// ScalarNode is a named value, optionally nested in a group. When both a
// literal and a formula are present the formula is authoritative.
type ScalarNode struct {
	Name    string
	Group   string // "" for root-level scalars
	Literal Value  // nil when absent
	Formula *Formula
}

// Path returns the node's full path within its model.
func (s *ScalarNode) Path() string {
	if s.Group == "" {
		return s.Name
	}
	return s.Group + "." + s.Name
}

// Column is one table column: a literal ordered sequence or a formula
// evaluated once per row.
type Column struct {
	Name    string
	Literal []Value // nil for formula columns
	Formula *Formula
}

// TableNode is a named ordered set of equal-length columns.
type TableNode struct {
	Name    string
	Columns []*Column

	index map[string]int
}

// NewTable creates a table from columns in declaration order.
func NewTable(name string, columns ...*Column) *TableNode {
	t := &TableNode{Name: name, Columns: columns, index: make(map[string]int)}
	for i, c := range columns {
		t.index[c.Name] = i
	}
	return t
}

// Column looks a column up by name.
func (t *TableNode) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.Columns[i], true
}

// RowCount returns the table's row count: the length of its literal
// columns. Formula columns take their length from this.
func (t *TableNode) RowCount() int {
	for _, c := range t.Columns {
		if c.Literal != nil {
			return len(c.Literal)
		}
	}
	return 0
}

// Model is the root container of a parsed document: a version tag gating
// legal shapes, named nodes in declaration order, and merged includes.
// Models are built once and immutable for the duration of a run.
type Model struct {
	Version string

	scalars map[string]*ScalarNode // keyed by path
	tables  map[string]*TableNode
	groups  map[string]bool
	top     map[string]bool // top-level name collision detection

	order []orderEntry

	includes     map[string]*Model
	includeOrder []string
}

type orderEntry struct {
	table bool
	key   string // scalar path or table name
}

// NewModel creates an empty model with the given version tag.
func NewModel(version string) *Model {
	return &Model{
		Version:  version,
		scalars:  make(map[string]*ScalarNode),
		tables:   make(map[string]*TableNode),
		groups:   make(map[string]bool),
		top:      make(map[string]bool),
		includes: make(map[string]*Model),
	}
}

// AddScalar adds a scalar node. Duplicate paths and collisions with tables,
// groups, or includes are rejected.
func (m *Model) AddScalar(s *ScalarNode) *ferrors.ForgeError {
	path := s.Path()
	if _, dup := m.scalars[path]; dup {
		return ferrors.NewSimple(ferrors.ClassResolve, "duplicate node: "+path)
	}
	if s.Group == "" {
		if m.top[s.Name] {
			return ferrors.NewSimple(ferrors.ClassResolve, "duplicate top-level name: "+s.Name)
		}
		m.top[s.Name] = true
	} else {
		if m.top[s.Group] && !m.groups[s.Group] {
			return ferrors.NewSimple(ferrors.ClassResolve, "group name collides with existing node: "+s.Group)
		}
		m.top[s.Group] = true
		m.groups[s.Group] = true
	}
	m.scalars[path] = s
	m.order = append(m.order, orderEntry{key: path})
	return nil
}

// AddTable adds a table node.
func (m *Model) AddTable(t *TableNode) *ferrors.ForgeError {
	if m.top[t.Name] {
		return ferrors.NewSimple(ferrors.ClassResolve, "duplicate top-level name: "+t.Name)
	}
	m.top[t.Name] = true
	m.tables[t.Name] = t
	m.order = append(m.order, orderEntry{table: true, key: t.Name})
	return nil
}

// AddInclude merges an already-parsed sibling document under its declared
// name as a resolution namespace.
func (m *Model) AddInclude(name string, sub *Model) *ferrors.ForgeError {
	if m.top[name] {
		return ferrors.NewSimple(ferrors.ClassResolve, "duplicate top-level name: "+name)
	}
	m.top[name] = true
	m.includes[name] = sub
	m.includeOrder = append(m.includeOrder, name)
	return nil
}

// Scalar looks a scalar up by full path.
func (m *Model) Scalar(path string) (*ScalarNode, bool) {
	s, ok := m.scalars[path]
	return s, ok
}

// Table looks a table up by name.
func (m *Model) Table(name string) (*TableNode, bool) {
	t, ok := m.tables[name]
	return t, ok
}

// HasGroup reports whether the model declares the named group.
func (m *Model) HasGroup(name string) bool { return m.groups[name] }

// Include looks an include up by declared name.
func (m *Model) Include(name string) (*Model, bool) {
	sub, ok := m.includes[name]
	return sub, ok
}

// IncludeNames returns include names in declaration order.
func (m *Model) IncludeNames() []string { return m.includeOrder }

// NodePaths returns the path of every value-bearing node in declaration
// order: scalars by path, table columns as "table.column". This order is
// the tie-breaker for scheduling, so it must be deterministic.
func (m *Model) NodePaths() []string {
	var paths []string
	for _, e := range m.order {
		if !e.table {
			paths = append(paths, e.key)
			continue
		}
		t := m.tables[e.key]
		for _, c := range t.Columns {
			paths = append(paths, t.Name+"."+c.Name)
		}
	}
	return paths
}

// VisibleNames returns every name referencable from root scope, used for
// "did you mean" hints on unknown references.
func (m *Model) VisibleNames() []string {
	var names []string
	for _, e := range m.order {
		names = append(names, e.key)
	}
	for g := range m.groups {
		names = append(names, g)
	}
	names = append(names, m.includeOrder...)
	return names
}

// majorVersion extracts the leading integer of the version tag.
func majorVersion(version string) (int, bool) {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Validate applies version gating and shape invariants. It runs before any
// computation: a scalar-only model containing a table or include fails here,
// and no partial environment is ever produced.
func (m *Model) Validate() *ferrors.ForgeError {
	major, ok := majorVersion(m.Version)
	if !ok || major > 2 {
		return ferrors.New("VERSION-0003", map[string]any{"Version": m.Version})
	}

	if major < 2 {
		for _, e := range m.order {
			if e.table {
				return ferrors.New("VERSION-0001", map[string]any{
					"Version": m.Version, "Table": e.key,
				})
			}
		}
		if len(m.includeOrder) > 0 {
			return ferrors.New("VERSION-0002", map[string]any{
				"Version": m.Version, "Include": m.includeOrder[0],
			})
		}
	}

	for _, t := range m.tables {
		rows := -1
		for _, c := range t.Columns {
			if c.Literal == nil {
				continue
			}
			if rows == -1 {
				rows = len(c.Literal)
			} else if len(c.Literal) != rows {
				return ferrors.New("VERSION-0004", map[string]any{"Table": t.Name})
			}
		}
	}

	for _, name := range m.includeOrder {
		if err := m.includes[name].Validate(); err != nil {
			return err.WithNode(name)
		}
	}

	return nil
}
