package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVersionGatingTables(t *testing.T) {
	m := NewModel("1.0.0")
	if err := m.AddTable(NewTable("t", &Column{Name: "c", Literal: []Value{&Number{Value: 1}}})); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	err := m.Validate()
	if err == nil {
		t.Fatal("expected version error")
	}
	if err.Code != "VERSION-0001" {
		t.Errorf("code = %s, want VERSION-0001", err.Code)
	}
}

func TestVersionGatingIncludes(t *testing.T) {
	sub := NewModel("1.0.0")
	m := NewModel("1.0.0")
	if err := m.AddInclude("shared", sub); err != nil {
		t.Fatalf("AddInclude: %v", err)
	}
	err := m.Validate()
	if err == nil {
		t.Fatal("expected version error")
	}
	if err.Code != "VERSION-0002" {
		t.Errorf("code = %s, want VERSION-0002", err.Code)
	}
}

func TestVersionGatingRunsBeforeEvaluation(t *testing.T) {
	// A version-gated model must fail before any formula is even parsed.
	m := NewModel("1.0.0")
	if err := m.AddTable(NewTable("t", &Column{Name: "c", Formula: NewFormula("=((")})); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	_, err := Resolve(m)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Code != "VERSION-0001" {
		t.Errorf("code = %s, want VERSION-0001 before any parse error", err.Code)
	}
}

func TestInvalidVersion(t *testing.T) {
	m := NewModel("vNext")
	err := m.Validate()
	if err == nil || err.Code != "VERSION-0003" {
		t.Fatalf("err = %v, want VERSION-0003", err)
	}
}

func TestUnequalColumnLengths(t *testing.T) {
	m := NewModel("2.0.0")
	if err := m.AddTable(NewTable("t",
		&Column{Name: "a", Literal: []Value{&Number{Value: 1}, &Number{Value: 2}}},
		&Column{Name: "b", Literal: []Value{&Number{Value: 1}}},
	)); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	err := m.Validate()
	if err == nil || err.Code != "VERSION-0004" {
		t.Fatalf("err = %v, want VERSION-0004", err)
	}
}

func TestDuplicateNamesRejected(t *testing.T) {
	m := NewModel("2.0.0")
	if err := m.AddScalar(&ScalarNode{Name: "x", Literal: &Number{Value: 1}}); err != nil {
		t.Fatalf("first AddScalar: %v", err)
	}
	if err := m.AddScalar(&ScalarNode{Name: "x", Literal: &Number{Value: 2}}); err == nil {
		t.Error("duplicate scalar accepted")
	}
	if err := m.AddTable(NewTable("x")); err == nil {
		t.Error("table colliding with scalar accepted")
	}
}

func TestNodePathsDeclarationOrder(t *testing.T) {
	m := NewModel("2.0.0")
	if err := m.AddScalar(&ScalarNode{Name: "first", Literal: &Number{Value: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddTable(NewTable("t",
		&Column{Name: "a", Literal: []Value{&Number{Value: 1}}},
		&Column{Name: "b", Literal: []Value{&Number{Value: 2}}},
	)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddScalar(&ScalarNode{Name: "last", Literal: &Number{Value: 3}}); err != nil {
		t.Fatal(err)
	}

	want := []string{"first", "t.a", "t.b", "last"}
	if diff := cmp.Diff(want, m.NodePaths()); diff != "" {
		t.Errorf("NodePaths mismatch:\n%s", diff)
	}
}

func TestFormulaASTCached(t *testing.T) {
	f := NewFormula("=1 + 2")
	first, err := f.AST()
	if err != nil {
		t.Fatalf("AST: %v", err)
	}
	second, _ := f.AST()
	if first != second {
		t.Error("AST reparsed instead of cached")
	}
}

func TestEnvironmentWriteOnce(t *testing.T) {
	env := NewEnvironment()
	env.Set("a", &Number{Value: 1})

	defer func() {
		if recover() == nil {
			t.Error("second write to the same path did not panic")
		}
	}()
	env.Set("a", &Number{Value: 2})
}

func TestEnvironmentOrder(t *testing.T) {
	env := NewEnvironment()
	env.Set("b", &Number{Value: 1})
	env.Set("a", &Number{Value: 2})
	env.Set("c", &Number{Value: 3})

	if diff := cmp.Diff([]string{"b", "a", "c"}, env.Paths()); diff != "" {
		t.Errorf("paths not in write order:\n%s", diff)
	}
}
