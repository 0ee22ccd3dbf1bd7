// Package engine evaluates financial-model documents: scalar assumptions,
// formula cells, and table columns, resolved in dependency order with
// deterministic results.
package engine

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/forgefin/forge/internal/ctxlog"
	ferrors "github.com/forgefin/forge/pkg/forge/errors"
)

// Options tunes a resolution run. The zero value evaluates sequentially
// with the context's logger.
type Options struct {
	// Workers is the number of evaluation goroutines. Zero or one runs
	// sequentially; negative means one worker per CPU.
	Workers int
	// Logger overrides the context logger when set.
	Logger *slog.Logger
}

// Resolve validates the model, builds its dependency graph, and evaluates
// every node. The returned environment holds one value per node, written in
// evaluation order. Structural problems (parse, resolution, cycle, version)
// abort with a ForgeError; computational problems land in the environment
// as in-band error values.
func Resolve(m *Model) (*Environment, *ferrors.ForgeError) {
	return ResolveWith(context.Background(), m, Options{})
}

// ResolveWith is Resolve with a context and options. Worker count changes
// throughput, never results: the environment is identical for any setting.
func ResolveWith(ctx context.Context, m *Model, opts Options) (*Environment, *ferrors.ForgeError) {
	log := opts.Logger
	if log == nil {
		log = ctxlog.From(ctx)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	graph, err := BuildGraph(m)
	if err != nil {
		return nil, err
	}
	log.Debug("dependency graph built", "nodes", len(graph.nodes))

	run := newRunState(graph)

	workers := opts.Workers
	if workers < 0 {
		workers = runtime.NumCPU()
	}
	if workers > 1 {
		if cerr := runParallel(ctx, run, workers); cerr != nil {
			return nil, ferrors.NewSimple(ferrors.ClassValue, cerr.Error())
		}
	} else {
		if cerr := runSequential(ctx, run); cerr != nil {
			return nil, ferrors.NewSimple(ferrors.ClassValue, cerr.Error())
		}
	}

	// Commit in topological order so the write sequence is identical for
	// every worker count.
	env := NewEnvironment()
	for _, i := range graph.order {
		env.Set(graph.nodes[i].path, run.slots[i])
	}
	log.Debug("model resolved", "values", env.Len())
	return env, nil
}

func runSequential(ctx context.Context, run *runState) error {
	for _, i := range run.graph.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.slots[i] = evalNode(run, run.graph.nodes[i])
	}
	return nil
}

// runParallel evaluates the graph with a worker pool. A node is dispatched
// once its remaining-dependency count reaches zero; finished nodes decrement
// their dependents' counts.
func runParallel(ctx context.Context, run *runState, workers int) error {
	g := run.graph
	if len(g.nodes) == 0 {
		return nil
	}
	if workers > len(g.nodes) {
		workers = len(g.nodes)
	}

	remaining := make([]atomic.Int64, len(g.nodes))
	for i, n := range g.nodes {
		remaining[i].Store(int64(len(n.deps)))
	}

	ready := make(chan int, len(g.nodes))
	for _, i := range g.order {
		if len(g.nodes[i].deps) == 0 {
			ready <- i
		}
	}

	var done atomic.Int64
	total := int64(len(g.nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case i, ok := <-ready:
					if !ok {
						return
					}
					run.slots[i] = evalNode(run, g.nodes[i])
					for _, d := range g.nodes[i].dependents {
						if remaining[d].Add(-1) == 0 {
							ready <- d
						}
					}
					if done.Add(1) == total {
						close(ready)
					}
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
