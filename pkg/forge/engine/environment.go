package engine

import (
	"fmt"
	"sync"
)

// Environment holds the computed value of every node in a model, keyed by
// node path ("price", "assumptions.price", "projections.revenue"). It is
// append-only: entries are written exactly once per run, in dependency
// order, and never rolled back. Insertion order is preserved so results can
// be reported in declaration order.
//
// The mutex only matters in parallel runs; a sequential run never contends.
type Environment struct {
	mu     sync.RWMutex
	order  []string
	values map[string]Value
}

// NewEnvironment creates an empty environment
func NewEnvironment() *Environment {
	return &Environment{values: make(map[string]Value)}
}

// Get retrieves the computed value for a node path.
func (e *Environment) Get(path string) (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[path]
	return v, ok
}

// Set stores the computed value for a node path. Writing a path twice is a
// determinism violation, so it panics rather than silently overwriting:
// the scheduler guarantees it never happens.
func (e *Environment) Set(path string, v Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.values[path]; exists {
		panic(fmt.Sprintf("engine: environment slot %q written twice", path))
	}
	e.values[path] = v
	e.order = append(e.order, path)
}

// Len returns the number of computed nodes.
func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.values)
}

// Paths returns the computed node paths in the order they were written.
func (e *Environment) Paths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Each calls fn for every computed node in write order.
func (e *Environment) Each(fn func(path string, v Value)) {
	e.mu.RLock()
	order := make([]string, len(e.order))
	copy(order, e.order)
	e.mu.RUnlock()

	for _, path := range order {
		e.mu.RLock()
		v := e.values[path]
		e.mu.RUnlock()
		fn(path, v)
	}
}
