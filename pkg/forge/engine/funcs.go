package engine

import (
	"sort"
	"strings"
)

// BuiltinFunc is a pure mapping from evaluated arguments to one value.
// Implementations never mutate their arguments and never touch shared state.
type BuiltinFunc func(args []Value) Value

// Builtin describes one registered function: name, arity bounds, and
// whether in-band error arguments reach the implementation instead of
// propagating before the call.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	// AcceptsErrors lets the function inspect error arguments, for
	// error-handling and branch-selection functions.
	AcceptsErrors bool
	Fn            BuiltinFunc
}

var builtins = map[string]*Builtin{}

// register adds a builtin to the dispatch table. Called from init functions;
// a duplicate name is a programming error.
func register(b *Builtin) {
	name := strings.ToUpper(b.Name)
	if _, dup := builtins[name]; dup {
		panic("duplicate builtin: " + name)
	}
	b.Name = name
	builtins[name] = b
}

// LookupBuiltin finds a builtin by case-insensitive name.
func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := builtins[strings.ToUpper(name)]
	return b, ok
}

// BuiltinNames returns every registered name, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
