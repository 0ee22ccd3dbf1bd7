package engine

import (
	"strings"

	"github.com/forgefin/forge/pkg/forge/ast"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
)

// origin describes where a formula lives: the model (root document or an
// include) it resolves against, the environment-key prefix of that model,
// the enclosing group, and the enclosing table for column formulas.
type origin struct {
	prefix string // "" for the root document, "shared." inside include shared
	model  *Model
	group  string
	table  *TableNode
}

// refTarget is a resolved reference: the concrete node identity a textual
// reference maps to.
type refTarget struct {
	isColumn bool
	path     string // environment key: prefix + local node path

	scalar *ScalarNode
	table  *TableNode
	column *Column

	// sameTable marks a bare reference to a sibling column of the
	// originating table; those resolve per row during broadcasting.
	sameTable bool

	offset    int
	hasOffset bool
}

// resolveReference maps a Reference to its target node identity.
//
// Resolution order: local LET/LAMBDA bindings (handled by the caller via
// bound), then the nearest enclosing group, then the model root, then
// cross-file includes. An unprefixed name found in more than one include is
// ambiguous, never silently shadowed.
func resolveReference(o origin, ref *ast.Reference, bound map[string]bool) (*refTarget, *ferrors.ForgeError) {
	var target *refTarget
	var err *ferrors.ForgeError

	switch len(ref.Path) {
	case 1:
		if bound[ref.Path[0]] {
			// Local binding: not a model node, no target. Offsets are
			// row navigation and never apply to LET/LAMBDA names.
			if ref.HasOffset {
				return nil, ferrors.NewWithPosition("RESOLVE-0006", ref.Token.Line, ref.Token.Column,
					map[string]any{"Name": ref.Path[0]})
			}
			return nil, nil
		}
		target, err = resolveBareName(o, ref)
	case 2:
		target, err = resolveQualified(o, o.model, o.prefix, ref.Path[0], ref.Path[1], ref)
	case 3:
		sub, ok := o.model.Include(ref.Path[0])
		if !ok {
			return nil, unknownName(o, ref, bound)
		}
		target, err = resolveQualified(o, sub, o.prefix+ref.Path[0]+".", ref.Path[1], ref.Path[2], ref)
	default:
		return nil, ferrors.New("PARSE-0009", map[string]any{"Path": strings.Join(ref.Path, ".")})
	}
	if err != nil {
		return nil, err
	}

	if ref.HasOffset {
		if o.table == nil || !target.sameTable {
			return nil, ferrors.NewWithPosition("RESOLVE-0006", ref.Token.Line, ref.Token.Column,
				map[string]any{"Name": strings.Join(ref.Path, ".")})
		}
		target.offset = ref.Offset
		target.hasOffset = true
	}

	return target, nil
}

// resolveBareName resolves a single-part name: sibling column, enclosing
// group, model root, then includes.
func resolveBareName(o origin, ref *ast.Reference) (*refTarget, *ferrors.ForgeError) {
	name := ref.Path[0]

	if o.table != nil {
		if col, ok := o.table.Column(name); ok {
			return &refTarget{
				isColumn:  true,
				path:      o.prefix + o.table.Name + "." + name,
				table:     o.table,
				column:    col,
				sameTable: true,
			}, nil
		}
	}

	if o.group != "" {
		if s, ok := o.model.Scalar(o.group + "." + name); ok {
			return &refTarget{path: o.prefix + s.Path(), scalar: s}, nil
		}
	}

	if s, ok := o.model.Scalar(name); ok {
		return &refTarget{path: o.prefix + name, scalar: s}, nil
	}

	// Cross-file fallback: a bare name defined by exactly one include
	// resolves to it; defined by several, it is ambiguous.
	var found *refTarget
	var foundIn []string
	for _, incName := range o.model.IncludeNames() {
		sub, _ := o.model.Include(incName)
		if s, ok := sub.Scalar(name); ok {
			foundIn = append(foundIn, incName)
			found = &refTarget{path: o.prefix + incName + "." + name, scalar: s}
		}
	}
	switch len(foundIn) {
	case 0:
		return nil, unknownName(o, ref, nil)
	case 1:
		return found, nil
	default:
		return nil, ferrors.NewWithPosition("RESOLVE-0002", ref.Token.Line, ref.Token.Column,
			map[string]any{
				"Name":     name,
				"Includes": strings.Join(foundIn, ", "),
				"Example":  foundIn[0] + "." + name,
			})
	}
}

// resolveQualified resolves `first.second` against a model: a group scalar,
// a table column, or (at the top level only) an include's root scalar.
func resolveQualified(o origin, m *Model, prefix, first, second string, ref *ast.Reference) (*refTarget, *ferrors.ForgeError) {
	if m.HasGroup(first) {
		if s, ok := m.Scalar(first + "." + second); ok {
			return &refTarget{path: prefix + s.Path(), scalar: s}, nil
		}
		return nil, unknownName(o, ref, nil)
	}

	if t, ok := m.Table(first); ok {
		col, ok := t.Column(second)
		if !ok {
			return nil, unknownName(o, ref, nil)
		}
		// Qualified column references always denote the whole column,
		// even from inside the same table; only bare sibling names get
		// per-row semantics and may carry offsets.
		return &refTarget{
			isColumn: true,
			path:     prefix + t.Name + "." + second,
			table:    t,
			column:   col,
		}, nil
	}

	if sub, ok := m.Include(first); ok {
		if s, ok := sub.Scalar(second); ok {
			return &refTarget{path: prefix + first + "." + second, scalar: s}, nil
		}
		return nil, unknownName(o, ref, nil)
	}

	return nil, unknownName(o, ref, nil)
}

// unknownName builds an unknown-name error with fuzzy-match hints over the
// names visible from the reference site.
func unknownName(o origin, ref *ast.Reference, bound map[string]bool) *ferrors.ForgeError {
	candidates := o.model.VisibleNames()
	if o.table != nil {
		for _, c := range o.table.Columns {
			candidates = append(candidates, c.Name)
		}
	}
	for name := range bound {
		candidates = append(candidates, name)
	}

	err := ferrors.NewUnknownName(strings.Join(ref.Path, "."), candidates)
	err.Line = ref.Token.Line
	err.Column = ref.Token.Column
	return err
}
