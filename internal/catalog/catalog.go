// Package catalog resolves dataset references against named data stores.
// A store maps refs to datasets; the registry routes "store:ref" tokens,
// reopens sources for the workspace engine, and owns store lifecycles.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/workspace"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

// DefaultStore is the store refs without an explicit prefix resolve against.
const DefaultStore = "local"

// Entry identifies one dataset a store can open.
type Entry struct {
	Store string
	Ref   string
	Title string
}

// ColumnInfo describes one column of a tabular dataset.
type ColumnInfo struct {
	Name string
	Type string
}

// Info describes a dataset without handing out its values.
type Info struct {
	Store   string
	Ref     string
	Title   string
	Vars    []string
	Dims    []string
	Columns []ColumnInfo
	Rows    int64
}

// Store provides datasets by reference.
type Store interface {
	// Name returns the name the store is registered under.
	Name() string

	// Entries lists the datasets the store can open.
	Entries(ctx context.Context) ([]Entry, error)

	// Describe reports a dataset's shape.
	Describe(ctx context.Context, ref string) (*Info, error)

	// Open loads the dataset behind ref.
	Open(ctx context.Context, ref string) (*dataset.Dataset, error)

	// Close releases the store's resources.
	Close() error
}

// NotFoundError reports a missing dataset, or a missing store when Ref is
// empty.
type NotFoundError struct {
	Store string
	Ref   string
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("unknown data store %q", e.Store)
	}
	return fmt.Sprintf("dataset %q not found in store %q", e.Ref, e.Store)
}

// ParseRef splits a dataset token into store name and ref. Tokens without a
// store prefix resolve against DefaultStore.
func ParseRef(token string) (store, ref string) {
	if i := strings.Index(token, ":"); i >= 0 {
		return token[:i], token[i+1:]
	}
	return DefaultStore, token
}

// Registry routes dataset references to registered stores.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		stores: make(map[string]Store),
		logger: logger,
	}
}

// Register adds a store under its name.
func (r *Registry) Register(s Store) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("store has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; ok {
		return fmt.Errorf("store %q already registered", name)
	}
	r.stores[name] = s
	r.logger.Debug("data store registered", "store", name)
	return nil
}

// Lookup returns the store registered under name.
func (r *Registry) Lookup(name string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	return s, ok
}

// Names returns the registered store names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries lists datasets, from one store when name is given or from every
// registered store otherwise.
func (r *Registry) Entries(ctx context.Context, name string) ([]Entry, error) {
	if name != "" {
		s, ok := r.Lookup(name)
		if !ok {
			return nil, &NotFoundError{Store: name}
		}
		return s.Entries(ctx)
	}

	r.mu.RLock()
	stores := make([]Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	var all []Entry
	for _, s := range stores {
		entries, err := s.Entries(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Store != all[j].Store {
			return all[i].Store < all[j].Store
		}
		return all[i].Ref < all[j].Ref
	})
	return all, nil
}

// Open reopens a source from its recorded provenance. This is the hook the
// workspace engine calls when a source value is not cached.
func (r *Registry) Open(ctx context.Context, prov graph.Provenance) (any, error) {
	name := prov.Store
	if name == "" {
		name = DefaultStore
	}
	s, ok := r.Lookup(name)
	if !ok {
		return nil, &NotFoundError{Store: name}
	}
	return s.Open(ctx, prov.Ref)
}

var _ workspace.SourceOpener = (*Registry)(nil)

// Resolve parses a dataset token, opens the dataset, and returns provenance
// recording where it came from together with the opened handle.
func (r *Registry) Resolve(ctx context.Context, token string) (graph.Provenance, any, error) {
	storeName, ref := ParseRef(token)
	s, ok := r.Lookup(storeName)
	if !ok {
		return graph.Provenance{}, nil, &NotFoundError{Store: storeName}
	}

	ds, err := s.Open(ctx, ref)
	if err != nil {
		return graph.Provenance{}, nil, err
	}

	prov := graph.Provenance{Store: storeName, Ref: ref, OpenedAt: time.Now().UTC()}
	if info, err := s.Describe(ctx, ref); err == nil && info.Title != "" {
		prov.Title = info.Title
	}
	return prov, ds, nil
}

// Close closes every registered store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.stores = make(map[string]Store)
	return errors.Join(errs...)
}
