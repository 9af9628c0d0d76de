// Package executor runs the build commands of a dependency graph with a
// bounded pool of workers. A node is dispatched once every node it depends on
// has been built. After the first failure no further node is dispatched, but
// builds already running are allowed to finish.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/dag"
)

// Runner builds one build command.
type Runner interface {
	Run(ctx context.Context, cmd *dag.BuildCommand) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd *dag.BuildCommand) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmd *dag.BuildCommand) error {
	return f(ctx, cmd)
}

// State is the execution state of a node.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// task is the executor's runtime bookkeeping for one node.
type task struct {
	node       *dag.Node
	key        string
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
	dependents []*task
}

func (t *task) setState(s State) { t.state.Store(int32(s)) }

// State returns the current state of the task.
func (t *task) State() State { return State(t.state.Load()) }

// Executor runs the nodes of a graph.
type Executor struct {
	runner     Runner
	numWorkers int
	order      []*task
	tasks      map[string]*task

	wg       sync.WaitGroup
	failOnce sync.Once
	firstErr error
}

// New creates an executor for the nodes of g. order is the scheduler's build
// order; ready nodes are dispatched in that order.
func New(g *dag.Graph, order []*dag.Node, runner Runner, numWorkers int) (*Executor, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	e := &Executor{
		runner:     runner,
		numWorkers: numWorkers,
		tasks:      make(map[string]*task, len(order)),
	}
	for _, n := range order {
		t := &task{node: n, key: n.Key()}
		e.tasks[t.key] = t
		e.order = append(e.order, t)
	}
	if len(e.tasks) != g.Len() {
		return nil, fmt.Errorf("executor: build order holds %d nodes, graph holds %d", len(e.tasks), g.Len())
	}

	for _, t := range e.order {
		deps, err := g.Dependencies(t.key)
		if err != nil {
			return nil, fmt.Errorf("executor: %w", err)
		}
		t.depCount.Store(int32(len(deps)))
		for _, depKey := range deps {
			dep, ok := e.tasks[depKey]
			if !ok {
				return nil, fmt.Errorf("executor: dependency %s of %s is not in the build order", depKey, t.key)
			}
			dep.dependents = append(dep.dependents, t)
		}
	}
	return e, nil
}

// Run executes every node and returns the first build failure, or the
// context's error if it was cancelled first.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *task, len(e.order))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	rootCount := 0
	for _, t := range e.order {
		if t.depCount.Load() == 0 {
			readyChan <- t
			rootCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootCount)

	e.wg.Add(len(e.order))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, runCtx, readyChan, cancel, i)
	}

	logger.Info("Waiting for all builds to complete...", "nodes", len(e.order))
	e.wg.Wait()
	close(readyChan)

	counts := make(map[State]int)
	for _, t := range e.order {
		counts[t.State()]++
	}
	logger.Info("All builds completed.", "done", counts[Done], "failed", counts[Failed], "skipped", counts[Skipped])

	if e.firstErr != nil {
		return e.firstErr
	}
	return ctx.Err()
}

// States returns the final state of every node, keyed by node key.
func (e *Executor) States() map[string]State {
	out := make(map[string]State, len(e.order))
	for _, t := range e.order {
		out[t.key] = t.State()
	}
	return out
}

// fail records err as the failure of t. The first failure recorded becomes
// the result of Run.
func (e *Executor) fail(t *task, err error) {
	t.setState(Failed)
	t.err = err
	e.failOnce.Do(func() { e.firstErr = err })
}

// skip marks t and everything depending on it as skipped.
func (e *Executor) skip(ctx context.Context, t *task, reason error) {
	t.skipOnce.Do(func() {
		t.setState(Skipped)
		t.err = reason
		e.wg.Done()
		e.skipDependents(ctx, t)
	})
}

// skipDependents recursively marks all downstream nodes as skipped and
// decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, t *task) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range t.dependents {
		logger.Debug("Skipping dependent node due to upstream failure.", "node", dependent.node.String(), "dependency", t.node.String())
		e.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of %s", t.node))
	}
}
