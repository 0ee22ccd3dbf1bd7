package document

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/forgefin/forge/pkg/forge/engine"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
)

func resolveYAML(t *testing.T, src string) map[string]string {
	t.Helper()
	m, derr := Decode([]byte(src))
	if derr != nil {
		t.Fatalf("Decode: %v", derr)
	}
	env, rerr := engine.Resolve(m)
	if rerr != nil {
		t.Fatalf("Resolve: %v", rerr)
	}
	out := make(map[string]string)
	env.Each(func(path string, v engine.Value) {
		out[path] = v.Inspect()
	})
	return out
}

func TestDecodeScalarsAndGroups(t *testing.T) {
	src := `
_forge_version: "2.0.0"
revenue: 1000
label: forecast
active: true
assumptions:
  growth_rate:
    value: 0.05
    unit: percent
  doubled:
    formula: "=growth_rate * 2"
    expected: 0.1
margin: "=revenue * assumptions.growth_rate"
`
	got := resolveYAML(t, src)
	want := map[string]string{
		"revenue":                 "1000",
		"label":                   "forecast",
		"active":                  "TRUE",
		"assumptions.growth_rate": "0.05",
		"assumptions.doubled":     "0.1",
		"margin":                  "50",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved values mismatch:\n%s", diff)
	}
}

func TestDecodeTable(t *testing.T) {
	src := `
_forge_version: "2.0.0"
projections:
  units: [100, 200, 300]
  price: [10, 10, 12]
  revenue: "=units * price"
total: "=SUM(projections.revenue)"
`
	got := resolveYAML(t, src)
	if got["projections.revenue"] != "[1000, 2000, 3600]" {
		t.Errorf("revenue = %s", got["projections.revenue"])
	}
	if got["total"] != "6600" {
		t.Errorf("total = %s", got["total"])
	}
}

func TestFormulaStringsNeedLeadingEquals(t *testing.T) {
	src := `
_forge_version: "1.0.0"
x:
  formula: "1 + 1"
`
	_, err := Decode([]byte(src))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if err.Class != ferrors.ClassParse {
		t.Errorf("class = %s, want parse", err.Class)
	}
}

func TestGroupOfFormulasIsNotATable(t *testing.T) {
	// Without a list column there is no row count, so a mapping of
	// formula strings must decode as a scalar group.
	src := `
_forge_version: "2.0.0"
base: 10
derived:
  twice: "=base * 2"
  thrice: "=base * 3"
`
	got := resolveYAML(t, src)
	if got["derived.twice"] != "20" || got["derived.thrice"] != "30" {
		t.Errorf("group values = %s, %s", got["derived.twice"], got["derived.thrice"])
	}
}

func TestInlineInclude(t *testing.T) {
	src := `
_forge_version: "2.0.0"
_includes:
  shared:
    _forge_version: "2.0.0"
    tax_rate: 0.21
net: "=100 * (1 - shared.tax_rate)"
`
	got := resolveYAML(t, src)
	if got["net"] != "79" {
		t.Errorf("net = %s, want 79", got["net"])
	}
	if got["shared.tax_rate"] != "0.21" {
		t.Errorf("shared.tax_rate = %s", got["shared.tax_rate"])
	}
}

func TestExternalInclude(t *testing.T) {
	shared, err := Decode([]byte(`
_forge_version: "2.0.0"
tax_rate: 0.3
`))
	if err != nil {
		t.Fatalf("Decode shared: %v", err)
	}

	src := `
_forge_version: "2.0.0"
_includes:
  shared: shared.yaml
gross: 200
net: "=gross * (1 - tax_rate)"
`
	m, err := DecodeWith([]byte(src), map[string]*engine.Model{"shared": shared})
	if err != nil {
		t.Fatalf("DecodeWith: %v", err)
	}
	env, rerr := engine.Resolve(m)
	if rerr != nil {
		t.Fatalf("Resolve: %v", rerr)
	}
	if v, _ := env.Get("net"); v.Inspect() != "140" {
		t.Errorf("net = %s, want 140", v.Inspect())
	}
}

func TestExternalIncludeMissingSibling(t *testing.T) {
	src := `
_forge_version: "2.0.0"
_includes:
  shared: shared.yaml
x: 1
`
	_, err := Decode([]byte(src))
	if err == nil {
		t.Fatal("expected error for unsupplied include")
	}
	if err.Class != ferrors.ClassParse {
		t.Errorf("class = %s, want parse", err.Class)
	}
	if !strings.Contains(err.Error(), "shared") {
		t.Errorf("message should name the include: %s", err.Error())
	}
}

func TestMissingVersion(t *testing.T) {
	_, err := Decode([]byte("x: 1\n"))
	if err == nil {
		t.Fatal("expected version error")
	}
	if err.Class != ferrors.ClassVersion {
		t.Errorf("class = %s, want version", err.Class)
	}
}

func TestNonMappingRoot(t *testing.T) {
	for _, src := range []string{"- 1\n- 2\n", "just a string\n", ""} {
		_, err := Decode([]byte(src))
		if err == nil {
			t.Errorf("Decode(%q): expected parse error", src)
			continue
		}
		if err.Class != ferrors.ClassParse {
			t.Errorf("Decode(%q): class = %s, want parse", src, err.Class)
		}
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := Decode([]byte("a: [1, 2\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if err.Class != ferrors.ClassParse {
		t.Errorf("class = %s, want parse", err.Class)
	}
}

func TestNullScalarIsBlank(t *testing.T) {
	src := `
_forge_version: "1.0.0"
empty:
total: "=empty + 5"
`
	got := resolveYAML(t, src)
	if got["empty"] != "" {
		t.Errorf("empty = %q, want blank", got["empty"])
	}
	if got["total"] != "5" {
		t.Errorf("total = %s, want 5", got["total"])
	}
}
