// Package document decodes the YAML model format into an engine.Model. It
// works on bytes only; reading files, resolving include paths, and fetching
// sibling documents are the caller's job.
package document

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgefin/forge/pkg/forge/engine"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
)

const (
	versionKey  = "_forge_version"
	includesKey = "_includes"
)

// Decode parses one YAML document. Includes must be declared inline as
// nested documents; use DecodeWith to attach separately decoded siblings.
func Decode(data []byte) (*engine.Model, *ferrors.ForgeError) {
	return DecodeWith(data, nil)
}

// DecodeWith parses a YAML document whose _includes section may name
// sibling documents by key; siblings holds those already-decoded models.
// An include given inline as a mapping is decoded recursively instead.
func DecodeWith(data []byte, siblings map[string]*engine.Model) (*engine.Model, *ferrors.ForgeError) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, ferrors.NewSimple(ferrors.ClassParse, "malformed document: "+err.Error())
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, ferrors.NewSimple(ferrors.ClassParse, "empty document")
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, ferrors.NewSimple(ferrors.ClassParse, "document root must be a mapping")
	}
	return decodeModel(mapping, siblings)
}

func decodeModel(mapping *yaml.Node, siblings map[string]*engine.Model) (*engine.Model, *ferrors.ForgeError) {
	version := ""
	if v, ok := childValue(mapping, versionKey); ok {
		version = v.Value
	}
	if version == "" {
		return nil, ferrors.NewSimple(ferrors.ClassVersion, "document declares no "+versionKey)
	}
	m := engine.NewModel(version)

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		val := mapping.Content[i+1]

		if key == includesKey {
			if err := decodeIncludes(m, val, siblings); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(key, "_") {
			continue // document metadata
		}

		if err := decodeSection(m, key, val); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func decodeIncludes(m *engine.Model, node *yaml.Node, siblings map[string]*engine.Model) *ferrors.ForgeError {
	if node.Kind != yaml.MappingNode {
		return ferrors.NewSimple(ferrors.ClassParse, includesKey+" must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]

		var sub *engine.Model
		switch val.Kind {
		case yaml.MappingNode:
			decoded, err := decodeModel(val, siblings)
			if err != nil {
				return err.WithNode(name)
			}
			sub = decoded
		case yaml.ScalarNode:
			attached, ok := siblings[name]
			if !ok {
				return ferrors.NewSimple(ferrors.ClassParse,
					"include "+name+" names an external document that was not supplied").WithNode(name)
			}
			sub = attached
		default:
			return ferrors.NewSimple(ferrors.ClassParse, "include "+name+" must be a mapping or a document name")
		}
		if err := m.AddInclude(name, sub); err != nil {
			return err
		}
	}
	return nil
}

// decodeSection classifies a top-level entry: a scalar (plain value, formula
// string, or value/formula object), a scalar group (mapping of scalar
// objects), or a table (mapping of literal lists and column formulas).
func decodeSection(m *engine.Model, name string, node *yaml.Node) *ferrors.ForgeError {
	switch node.Kind {
	case yaml.ScalarNode:
		s, err := scalarFromYAML(name, "", node)
		if err != nil {
			return err
		}
		return m.AddScalar(s)

	case yaml.MappingNode:
		if isScalarObject(node) {
			s, err := scalarObject(name, "", node)
			if err != nil {
				return err
			}
			return m.AddScalar(s)
		}
		if isTable(node) {
			return decodeTable(m, name, node)
		}
		return decodeGroup(m, name, node)
	}
	return ferrors.NewSimple(ferrors.ClassParse, "section must be a mapping or a scalar").WithNode(name)
}

// isScalarObject reports whether a mapping is a single scalar declaration
// rather than a group of them.
func isScalarObject(node *yaml.Node) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "value", "formula":
			return true
		}
	}
	return false
}

// isTable reports whether a mapping's entries look like columns. At least
// one literal list must be present: it fixes the row count, and without one
// a mapping of formula strings reads as a scalar group instead.
func isTable(node *yaml.Node) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i+1].Kind == yaml.SequenceNode {
			return true
		}
	}
	return false
}

func decodeGroup(m *engine.Model, group string, node *yaml.Node) *ferrors.ForgeError {
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]

		var s *engine.ScalarNode
		var err *ferrors.ForgeError
		switch {
		case val.Kind == yaml.MappingNode && isScalarObject(val):
			s, err = scalarObject(name, group, val)
		case val.Kind == yaml.ScalarNode:
			s, err = scalarFromYAML(name, group, val)
		default:
			err = ferrors.NewSimple(ferrors.ClassParse, "scalar entry must be a value or a value/formula object").
				WithNode(group + "." + name)
		}
		if err != nil {
			return err
		}
		if aerr := m.AddScalar(s); aerr != nil {
			return aerr
		}
	}
	return nil
}

func decodeTable(m *engine.Model, name string, node *yaml.Node) *ferrors.ForgeError {
	var columns []*engine.Column
	for i := 0; i+1 < len(node.Content); i += 2 {
		colName := node.Content[i].Value
		val := node.Content[i+1]

		switch val.Kind {
		case yaml.SequenceNode:
			lits := make([]engine.Value, 0, len(val.Content))
			for _, item := range val.Content {
				v, err := literalValue(item)
				if err != nil {
					return err.WithNode(name + "." + colName)
				}
				lits = append(lits, v)
			}
			columns = append(columns, &engine.Column{Name: colName, Literal: lits})
		case yaml.ScalarNode:
			if !strings.HasPrefix(val.Value, "=") {
				return ferrors.NewSimple(ferrors.ClassParse, "column must be a list or a formula string").
					WithNode(name + "." + colName)
			}
			columns = append(columns, &engine.Column{Name: colName, Formula: engine.NewFormula(val.Value)})
		default:
			return ferrors.NewSimple(ferrors.ClassParse, "column must be a list or a formula string").
				WithNode(name + "." + colName)
		}
	}
	return m.AddTable(engine.NewTable(name, columns...))
}

// scalarObject decodes a {value, formula, ...} mapping. Unknown keys such as
// expected, unit, or description are metadata and do not affect computation.
func scalarObject(name, group string, node *yaml.Node) (*engine.ScalarNode, *ferrors.ForgeError) {
	s := &engine.ScalarNode{Name: name, Group: group}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "value":
			if val.Tag == "!!null" {
				continue
			}
			v, err := literalValue(val)
			if err != nil {
				return nil, err.WithNode(s.Path())
			}
			s.Literal = v
		case "formula":
			if val.Kind != yaml.ScalarNode || !strings.HasPrefix(val.Value, "=") {
				return nil, ferrors.NewSimple(ferrors.ClassParse, "formula must be a string starting with =").
					WithNode(s.Path())
			}
			s.Formula = engine.NewFormula(val.Value)
		}
	}
	return s, nil
}

// scalarFromYAML decodes a bare scalar entry: a formula string or a literal.
func scalarFromYAML(name, group string, node *yaml.Node) (*engine.ScalarNode, *ferrors.ForgeError) {
	s := &engine.ScalarNode{Name: name, Group: group}
	if node.Tag == "!!str" && strings.HasPrefix(node.Value, "=") {
		s.Formula = engine.NewFormula(node.Value)
		return s, nil
	}
	v, err := literalValue(node)
	if err != nil {
		return nil, err.WithNode(s.Path())
	}
	s.Literal = v
	return s, nil
}

func literalValue(node *yaml.Node) (engine.Value, *ferrors.ForgeError) {
	if node.Kind != yaml.ScalarNode {
		return nil, ferrors.NewSimple(ferrors.ClassParse, "literal must be a scalar value")
	}
	switch node.Tag {
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return nil, ferrors.NewSimple(ferrors.ClassParse, "invalid number "+node.Value)
		}
		return &engine.Number{Value: f}, nil
	case "!!bool":
		return &engine.Boolean{Value: node.Value == "true" || node.Value == "True" || node.Value == "TRUE"}, nil
	case "!!null":
		return &engine.Blank{}, nil
	case "!!str":
		return &engine.Text{Value: node.Value}, nil
	}
	return &engine.Text{Value: node.Value}, nil
}

func childValue(mapping *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], true
		}
	}
	return nil, false
}
