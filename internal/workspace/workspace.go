// Package workspace implements the resource graph engine: a workspace holds
// a dependency graph of named resources, an evaluation cache, and session
// metadata, and is persisted as a JSON document under its base directory.
// The Manager tracks open workspaces process-wide, one per path.
package workspace

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/op"
)

// DataDirName is the directory under a workspace base holding its state.
const DataDirName = ".tephra"

// FileName is the graph document inside the data directory.
const FileName = "workspace.json"

// HistoryFileName is the evaluation history database inside the data
// directory.
const HistoryFileName = "history.db"

// SourceOpener reopens source datasets from their provenance. The catalog
// registry satisfies it.
type SourceOpener interface {
	Open(ctx context.Context, prov graph.Provenance) (any, error)
}

// RunRecorder receives evaluation pass events. Implementations must tolerate
// concurrent RecordStep calls. Recording is best-effort: a failing recorder
// never fails an evaluation.
type RunRecorder interface {
	BeginRun(base, target string) (string, error)
	RecordStep(runID, resource, status string, elapsed time.Duration, errText string) error
	FinishRun(runID, status, errText string) error
}

// Config carries the collaborators a workspace needs.
type Config struct {
	// Ops validates step bindings and supplies operation handlers.
	Ops *op.Registry

	// Opener reopens source datasets on cache misses. Optional; without it
	// source resources cannot be evaluated after a reload.
	Opener SourceOpener

	// Recorder receives evaluation history. Optional.
	Recorder RunRecorder

	// Workers bounds concurrent operator invocations within one evaluation
	// pass. Values below 2 evaluate strictly sequentially.
	Workers int

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Workspace is the persisted unit: a resource graph plus session metadata.
//
// Mutations and evaluation passes are serialized against each other by the
// pass lock. The data lock guards graph and metadata and is held only for
// bookkeeping, never while an operator runs, so read accessors stay
// responsive during long evaluations.
type Workspace struct {
	pass sync.Mutex // serializes mutations and whole evaluation passes
	mu   sync.Mutex // guards graph and the metadata below

	base        string
	description string
	graph       *graph.Graph
	cache       *Cache
	ops         *op.Registry
	opener      SourceOpener
	recorder    RunRecorder
	workers     int
	logger      *slog.Logger

	version  uint64
	created  time.Time
	updated  time.Time
	modified bool
	closed   bool
}

func newWorkspace(base string, cfg Config) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ops := cfg.Ops
	if ops == nil {
		ops = op.NewRegistry()
	}
	now := time.Now().UTC()
	return &Workspace{
		base:     base,
		graph:    graph.New(ops),
		cache:    NewCache(),
		ops:      ops,
		opener:   cfg.Opener,
		recorder: cfg.Recorder,
		workers:  cfg.Workers,
		logger:   logger,
		created:  now,
		updated:  now,
	}
}

// Base returns the workspace base directory.
func (w *Workspace) Base() string { return w.base }

// Description returns the free-text description given at init time.
func (w *Workspace) Description() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.description
}

// DataDir returns the directory holding the workspace's persisted state.
func (w *Workspace) DataDir() string { return filepath.Join(w.base, DataDirName) }

// FilePath returns the path of the persisted graph document.
func (w *Workspace) FilePath() string { return filepath.Join(w.base, DataDirName, FileName) }

// HistoryPath returns the path of the evaluation history database.
func (w *Workspace) HistoryPath() string { return filepath.Join(w.base, DataDirName, HistoryFileName) }

// Version returns the mutation counter. It starts at zero and increases by
// one for every committed mutation.
func (w *Workspace) Version() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Modified reports whether the workspace changed since the last save.
func (w *Workspace) Modified() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.modified
}

// Closed reports whether the workspace has been closed.
func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Created returns the creation timestamp.
func (w *Workspace) Created() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.created
}

// Updated returns the last mutation timestamp.
func (w *Workspace) Updated() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updated
}

// Resources returns a snapshot of all resources in insertion order.
func (w *Workspace) Resources() []graph.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graph.Snapshot()
}

// Resource returns a copy of the named resource.
func (w *Workspace) Resource(name string) (graph.Node, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	node, ok := w.graph.Node(name)
	if !ok {
		return graph.Node{}, false
	}
	cp := *node
	cp.Bindings = append([]graph.Binding(nil), node.Bindings...)
	return cp, true
}

// Dependencies returns the resources name directly references.
func (w *Workspace) Dependencies(name string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graph.Dependencies(name)
}

// Dependents returns the resources that directly reference name.
func (w *Workspace) Dependents(name string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graph.Dependents(name)
}

// Cached reports whether name has a clean cached value.
func (w *Workspace) Cached(name string) bool {
	_, ok := w.cache.Get(name)
	return ok
}

// CacheEntries lists the cached values.
func (w *Workspace) CacheEntries() []CacheInfo {
	return w.cache.Entries()
}

// AddSource registers a source resource. A non-nil handle primes the cache
// so the first evaluation needs no reopen; with a nil handle the dataset is
// reopened from its provenance on demand.
func (w *Workspace) AddSource(name string, handle any, prov graph.Provenance) error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	if err := w.graph.AddSource(name, prov); err != nil {
		return err
	}
	w.touch()
	if handle != nil {
		w.cache.Put(name, handle, w.version)
	}
	w.logger.Debug("source added", "workspace", w.base, "resource", name, "store", prov.Store, "ref", prov.Ref)
	return nil
}

// AddStep registers a step resource bound to an operation.
func (w *Workspace) AddStep(name, opName string, bindings []graph.Binding) error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	if err := w.graph.AddStep(name, opName, bindings); err != nil {
		return err
	}
	w.touch()
	w.logger.Debug("step added", "workspace", w.base, "resource", name, "op", opName)
	return nil
}

// Rebind replaces a step's operation and bindings. The step and its
// transitive dependents become dirty.
func (w *Workspace) Rebind(name, opName string, bindings []graph.Binding) error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	return w.rebindLocked(name, opName, bindings)
}

// SetStep adds the step, or rebinds it when the name already exists.
func (w *Workspace) SetStep(name, opName string, bindings []graph.Binding) error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	if w.graph.Has(name) {
		return w.rebindLocked(name, opName, bindings)
	}
	if err := w.graph.AddStep(name, opName, bindings); err != nil {
		return err
	}
	w.touch()
	w.logger.Debug("step added", "workspace", w.base, "resource", name, "op", opName)
	return nil
}

func (w *Workspace) rebindLocked(name, opName string, bindings []graph.Binding) error {
	if err := w.graph.Rebind(name, opName, bindings); err != nil {
		return err
	}
	w.touch()
	stale := append([]string{name}, w.graph.TransitiveDependents(name)...)
	w.cache.Invalidate(stale...)
	w.logger.Debug("step rebound", "workspace", w.base, "resource", name, "op", opName, "invalidated", len(stale))
	return nil
}

// Remove deletes a resource. Without force it fails while other resources
// still reference it; with force the dependents are removed as well. The
// returned list names every removed resource.
func (w *Workspace) Remove(name string, force bool) ([]string, error) {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, &StateError{Kind: KindNotOpen, Base: w.base}
	}
	removed, err := w.graph.Remove(name, force)
	if err != nil {
		return nil, err
	}
	w.touch()
	w.cache.Invalidate(removed...)
	for _, r := range removed {
		if r == name {
			w.logger.Debug("resource removed", "workspace", w.base, "resource", r)
			continue
		}
		w.logger.Info("dependent resource removed", "workspace", w.base, "resource", r, "removed_with", name)
	}
	return removed, nil
}

// Rename changes a resource's name and rewrites every reference to it.
// Cached values move with the name; nothing becomes dirty.
func (w *Workspace) Rename(old, newName string) error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	if err := w.graph.Rename(old, newName); err != nil {
		return err
	}
	w.touch()
	w.cache.Rename(old, newName)
	w.logger.Debug("resource renamed", "workspace", w.base, "from", old, "to", newName)
	return nil
}

// Clean removes every resource but keeps the workspace identity.
func (w *Workspace) Clean() error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}
	w.graph.Clear()
	w.cache.Clear()
	w.touch()
	w.logger.Debug("workspace cleaned", "workspace", w.base)
	return nil
}

// Close drops in-memory state and reports whether unsaved changes were
// discarded. Closing never fails; an unsaved workspace closes with a
// warning, not an error.
func (w *Workspace) Close() (discarded bool) {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	discarded = w.modified
	w.closed = true
	w.cache.Clear()
	if discarded {
		w.logger.Warn("closing workspace with unsaved changes", "workspace", w.base)
	}
	return discarded
}

// touch commits a mutation: bump the version, mark the workspace modified.
// Called with w.mu held.
func (w *Workspace) touch() {
	w.version++
	w.modified = true
	w.updated = time.Now().UTC()
}
