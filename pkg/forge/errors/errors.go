// Package errors provides structured error types for the forge engine.
//
// This package defines ForgeError, a unified error type covering every
// structural failure the engine can report: syntax errors from the formula
// parser, resolution errors, dependency cycles, and schema-version
// violations. Computational errors (divide-by-zero, lookup misses) are not
// represented here; they surface as in-band error values during evaluation.
package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and templating.
type ErrorClass string

const (
	ClassParse   ErrorClass = "parse"   // Malformed formula text
	ClassResolve ErrorClass = "resolve" // Unknown/ambiguous names, wrong arity
	ClassCycle   ErrorClass = "cycle"   // Circular references
	ClassType    ErrorClass = "type"    // Argument type mismatches
	ClassValue   ErrorClass = "value"   // Computational errors (in-band)
	ClassVersion ErrorClass = "version" // Construct not permitted by schema version
)

// ForgeError represents any structural error from parsing, resolution,
// graph construction, or model validation.
type ForgeError struct {
	Class   ErrorClass     `json:"class"`           // Error category
	Code    string         `json:"code"`            // Error code (e.g., "RESOLVE-0001")
	Message string         `json:"message"`         // Human-readable message
	Hints   []string       `json:"hints,omitempty"` // Suggestions for fixing
	Node    string         `json:"node,omitempty"`  // Model node path (e.g., "projections.growth")
	Line    int            `json:"line"`            // 1-based line within the formula (0 if unknown)
	Column  int            `json:"column"`          // 1-based column within the formula (0 if unknown)
	Data    map[string]any `json:"data,omitempty"`  // Template variables
}

// Error implements the error interface.
func (e *ForgeError) Error() string {
	return e.String()
}

// String returns a formatted string representation of the error.
func (e *ForgeError) String() string {
	var sb strings.Builder

	if e.Node != "" {
		sb.WriteString(e.Node)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}
	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *ForgeError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithNode returns a copy of the error with the model node path set.
func (e *ForgeError) WithNode(node string) *ForgeError {
	copy := *e
	copy.Node = node
	return &copy
}

// WithPosition returns a copy of the error with line and column set.
func (e *ForgeError) WithPosition(line, column int) *ForgeError {
	copy := *e
	copy.Line = line
	copy.Column = column
	return &copy
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass // Error category
	Template string     // Message template with {{.placeholders}}
	Hints    []string   // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Parse errors (PARSE-0xxx)
	// ========================================
	"PARSE-0001": {
		Class:    ClassParse,
		Template: "expected {{.Expected}}, got '{{.Got}}'",
	},
	"PARSE-0002": {
		Class:    ClassParse,
		Template: "unexpected token '{{.Token}}'",
	},
	"PARSE-0003": {
		Class:    ClassParse,
		Template: "unterminated string",
	},
	"PARSE-0004": {
		Class:    ClassParse,
		Template: "invalid number literal: {{.Literal}}",
	},
	"PARSE-0005": {
		Class:    ClassParse,
		Template: "formula must begin with '='",
	},
	"PARSE-0006": {
		Class:    ClassParse,
		Template: "LET expects name/value pairs followed by a body expression",
		Hints:    []string{"LET(x, 10, y, 20, x + y)"},
	},
	"PARSE-0007": {
		Class:    ClassParse,
		Template: "LAMBDA expects parameter names followed by a body expression",
		Hints:    []string{"LAMBDA(units, units * price)"},
	},
	"PARSE-0008": {
		Class:    ClassParse,
		Template: "invalid row offset: {{.Literal}}",
		Hints:    []string{"row offsets are signed integers: revenue[-1]"},
	},
	"PARSE-0009": {
		Class:    ClassParse,
		Template: "reference path too deep: {{.Path}}",
		Hints:    []string{"references have at most three parts: include.table.column"},
	},

	// ========================================
	// Resolution errors (RESOLVE-0xxx)
	// ========================================
	"RESOLVE-0001": {
		Class:    ClassResolve,
		Template: "unknown name: {{.Name}}",
		// Hint "Did you mean `X`?" added dynamically by fuzzy matching
	},
	"RESOLVE-0002": {
		Class:    ClassResolve,
		Template: "ambiguous name '{{.Name}}': defined in includes {{.Includes}}",
		Hints:    []string{"qualify the reference with the include name: {{.Example}}"},
	},
	"RESOLVE-0003": {
		Class:    ClassResolve,
		Template: "wrong number of arguments to {{.Function}}: got {{.Got}}, want {{.Want}}",
	},
	"RESOLVE-0004": {
		Class:    ClassResolve,
		Template: "unknown function: {{.Name}}",
	},
	"RESOLVE-0005": {
		Class:    ClassResolve,
		Template: "{{.Name}} is not callable",
		Hints:    []string{"only built-in functions and LAMBDA-valued nodes can be called"},
	},
	"RESOLVE-0006": {
		Class:    ClassResolve,
		Template: "row offset on '{{.Name}}' outside a table-column formula",
	},

	// ========================================
	// Cycle errors (CYCLE-0xxx)
	// ========================================
	"CYCLE-0001": {
		Class:    ClassCycle,
		Template: "circular reference: {{.Chain}}",
	},
	"CYCLE-0002": {
		Class:    ClassCycle,
		Template: "self-referential LAMBDA: {{.Chain}}",
	},

	// ========================================
	// Type errors (TYPE-0xxx)
	// ========================================
	"TYPE-0001": {
		Class:    ClassType,
		Template: "{{.Function}} expected {{.Expected}}, got {{.Got}}",
	},
	"TYPE-0002": {
		Class:    ClassType,
		Template: "cannot apply operator {{.Operator}} to {{.LeftType}} and {{.RightType}}",
	},

	// ========================================
	// Value errors (VALUE-0xxx)
	// ========================================
	"VALUE-0001": {
		Class:    ClassValue,
		Template: "division by zero",
	},
	"VALUE-0002": {
		Class:    ClassValue,
		Template: "lookup value not found",
	},

	// ========================================
	// Version errors (VERSION-0xxx)
	// ========================================
	"VERSION-0001": {
		Class:    ClassVersion,
		Template: "model version {{.Version}} does not permit tables (table '{{.Table}}')",
	},
	"VERSION-0002": {
		Class:    ClassVersion,
		Template: "model version {{.Version}} does not permit includes (include '{{.Include}}')",
	},
	"VERSION-0003": {
		Class:    ClassVersion,
		Template: "unsupported model version: {{.Version}}",
		Hints:    []string{`declare a supported version, e.g. "1.0.0" or "2.0.0"`},
	},
	"VERSION-0004": {
		Class:    ClassVersion,
		Template: "table '{{.Table}}' has columns of unequal length",
	},
}

// New creates a ForgeError from the catalog.
// If the code is not found, creates a generic error with the message.
func New(code string, data map[string]any) *ForgeError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &ForgeError{
			Class:   ClassValue,
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &ForgeError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
}

// NewWithPosition creates a ForgeError with position information.
func NewWithPosition(code string, line, column int, data map[string]any) *ForgeError {
	err := New(code, data)
	err.Line = line
	err.Column = column
	return err
}

// NewSimple creates a simple error without using the catalog.
func NewSimple(class ErrorClass, message string) *ForgeError {
	return &ForgeError{
		Class:   class,
		Message: message,
	}
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest match to the given string from candidates.
// Returns the best match if the distance is within the threshold, otherwise
// an empty string. The threshold scales with the length of the input.
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	// Sort a copy so the suggestion does not depend on candidate order.
	sorted := make([]string, len(candidates))
	copy(sorted, candidates)
	sort.Strings(sorted)

	var bestMatch string
	bestDistance := -1

	for _, candidate := range sorted {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	// Short words (1-3): max 1 edit; medium (4-6): 2; longer: 3.
	threshold := 1
	if len(input) >= 4 && len(input) <= 6 {
		threshold = 2
	} else if len(input) >= 7 {
		threshold = 3
	}

	if bestDistance <= 0 || bestDistance > threshold {
		return ""
	}

	return bestMatch
}

// NewUnknownName creates an unknown-name error with optional fuzzy matching
// over the names visible at the reference site.
func NewUnknownName(name string, visibleNames []string) *ForgeError {
	err := New("RESOLVE-0001", map[string]any{"Name": name})

	if suggestion := FindClosestMatch(name, visibleNames); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}

	return err
}

// NewUnknownFunction creates an unknown-function error with optional fuzzy
// matching over the registered function names.
func NewUnknownFunction(name string, registered []string) *ForgeError {
	err := New("RESOLVE-0004", map[string]any{"Name": name})

	if suggestion := FindClosestMatch(name, registered); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}

	return err
}
