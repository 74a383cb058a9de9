package workspace

// eval.go - Lazy evaluation of resources over the dependency graph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/op"
)

// Step and run statuses passed to the RunRecorder.
const (
	StepSuccess  = "success"
	StepFailed   = "failed"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// task is one node scheduled for recomputation in an evaluation pass. Nodes
// sharing a level have no dependency path between them.
type task struct {
	node  graph.Node
	level int
}

// Evaluate returns the value of the named resource, computing it and any
// stale dependencies first. Every stale node is computed at most once per
// call, diamonds included. A failure carries the failing resource's name and
// leaves that resource dirty; values computed earlier in the pass stay
// cached. Cancellation is honored between node invocations.
func (w *Workspace) Evaluate(ctx context.Context, name string) (any, error) {
	w.pass.Lock()
	defer w.pass.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, &StateError{Kind: KindNotOpen, Base: w.base}
	}
	if !w.graph.Has(name) {
		w.mu.Unlock()
		return nil, &graph.Error{Kind: graph.KindUnknownResource, Resource: name}
	}
	if v, ok := w.cache.Get(name); ok {
		w.mu.Unlock()
		w.logger.Debug("cache hit", "workspace", w.base, "resource", name)
		return v, nil
	}
	tasks := w.plan(name)
	version := w.version
	w.mu.Unlock()

	w.logger.Debug("evaluating", "workspace", w.base, "resource", name, "stale", len(tasks))

	runID := ""
	if w.recorder != nil {
		runID, _ = w.recorder.BeginRun(w.base, name)
	}

	err := w.runTasks(ctx, tasks, version, runID)

	if w.recorder != nil && runID != "" {
		if err != nil {
			_ = w.recorder.FinishRun(runID, RunFailed, err.Error())
		} else {
			_ = w.recorder.FinishRun(runID, RunCompleted, "")
		}
	}
	if err != nil {
		return nil, err
	}

	v, ok := w.cache.Get(name)
	if !ok {
		return nil, &EvalError{Resource: name, Err: fmt.Errorf("no value produced")}
	}
	return v, nil
}

// plan returns the stale ancestors of target, target included, as tasks in a
// valid evaluation order. Called with w.mu held.
func (w *Workspace) plan(target string) []task {
	stale := make(map[string]bool)
	var mark func(string)
	mark = func(n string) {
		if stale[n] {
			return
		}
		if _, ok := w.cache.Get(n); ok {
			// A clean node never has stale ancestors: invalidation is
			// transitive at mutation time.
			return
		}
		stale[n] = true
		for _, dep := range w.graph.Dependencies(n) {
			mark(dep)
		}
	}
	mark(target)

	levels := make(map[string]int, len(stale))
	tasks := make([]task, 0, len(stale))
	for _, n := range w.graph.TopologicalOrder() {
		if !stale[n] {
			continue
		}
		level := 0
		for _, dep := range w.graph.Dependencies(n) {
			if l, ok := levels[dep]; ok && l+1 > level {
				level = l + 1
			}
		}
		levels[n] = level
		node, _ := w.graph.Node(n)
		cp := *node
		cp.Bindings = append([]graph.Binding(nil), node.Bindings...)
		tasks = append(tasks, task{node: cp, level: level})
	}
	return tasks
}

// runTasks computes tasks wave by wave: all tasks of one level are mutually
// independent, so a wave may run its nodes concurrently when the workspace
// has workers configured. Operator invocations happen outside the metadata
// lock.
func (w *Workspace) runTasks(ctx context.Context, tasks []task, version uint64, runID string) error {
	for start := 0; start < len(tasks); {
		end := start
		for end < len(tasks) && tasks[end].level == tasks[start].level {
			end++
		}
		wave := tasks[start:end]
		start = end

		if err := ctx.Err(); err != nil {
			return err
		}

		if w.workers > 1 && len(wave) > 1 {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(w.workers)
			for _, t := range wave {
				g.Go(func() error {
					return w.runOne(gctx, t, version, runID)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			continue
		}

		for _, t := range wave {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.runOne(ctx, t, version, runID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workspace) runOne(ctx context.Context, t task, version uint64, runID string) error {
	start := time.Now()
	value, err := w.invoke(ctx, t.node)
	elapsed := time.Since(start)

	if err != nil {
		if w.recorder != nil && runID != "" {
			_ = w.recorder.RecordStep(runID, t.node.Name, StepFailed, elapsed, err.Error())
		}
		w.logger.Debug("resource failed", "workspace", w.base, "resource", t.node.Name, "error", err)
		return &EvalError{Resource: t.node.Name, Err: err}
	}

	w.cache.Put(t.node.Name, value, version)
	if w.recorder != nil && runID != "" {
		_ = w.recorder.RecordStep(runID, t.node.Name, StepSuccess, elapsed, "")
	}
	w.logger.Debug("resource computed", "workspace", w.base, "resource", t.node.Name, "elapsed_ms", elapsed.Milliseconds())
	return nil
}

// invoke computes one node from already-cached dependency values.
func (w *Workspace) invoke(ctx context.Context, node graph.Node) (any, error) {
	if node.Kind == graph.KindSource {
		if w.opener == nil {
			return nil, fmt.Errorf("no dataset opener configured to reopen %q", node.Prov.Ref)
		}
		return w.opener.Open(ctx, node.Prov)
	}

	operation, ok := w.ops.Lookup(node.Op)
	if !ok {
		return nil, fmt.Errorf("operation %q is not registered", node.Op)
	}

	args := make(map[string]any, len(operation.Signature.Params))
	for _, b := range node.Bindings {
		if b.IsRef {
			v, ok := w.cache.Get(b.Ref)
			if !ok {
				return nil, fmt.Errorf("dependency %q has no value", b.Ref)
			}
			args[b.Param] = v
			continue
		}
		v, err := op.Native(b.Value)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", b.Param, err)
		}
		args[b.Param] = v
	}
	for _, p := range operation.Signature.Params {
		if _, bound := args[p.Name]; bound || p.Default == nil {
			continue
		}
		v, err := op.Native(*p.Default)
		if err != nil {
			return nil, fmt.Errorf("default for %s: %w", p.Name, err)
		}
		args[p.Name] = v
	}

	return operation.Handler(ctx, op.Call{Op: node.Op, Resource: node.Name, Args: args})
}
