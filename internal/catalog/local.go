// local.go - Datasets stored as JSON documents under a YAML-indexed directory
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tephra-labs/tephra/pkg/dataset"
)

// IndexFileName is the catalog index inside a local store's root directory.
const IndexFileName = "catalog.yaml"

// Local serves datasets from JSON documents under a root directory. The
// catalog.yaml index maps refs to files.
type Local struct {
	name string
	root string
}

type localIndex struct {
	Datasets []localEntry `yaml:"datasets"`
}

type localEntry struct {
	Ref   string `yaml:"ref"`
	File  string `yaml:"file"`
	Title string `yaml:"title,omitempty"`
}

// NewLocal creates a store named name serving datasets from root.
func NewLocal(name, root string) *Local {
	return &Local{name: name, root: root}
}

// Name returns the store's registry name.
func (l *Local) Name() string { return l.name }

// Root returns the directory the store serves from.
func (l *Local) Root() string { return l.root }

// Entries lists the indexed datasets sorted by ref.
func (l *Local) Entries(ctx context.Context) ([]Entry, error) {
	idx, err := l.index()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(idx.Datasets))
	for _, e := range idx.Datasets {
		entries = append(entries, Entry{Store: l.name, Ref: e.Ref, Title: e.Title})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ref < entries[j].Ref })
	return entries, nil
}

// Describe loads the dataset document and reports its variables and axes.
func (l *Local) Describe(ctx context.Context, ref string) (*Info, error) {
	entry, err := l.entry(ref)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.ReadFile(filepath.Join(l.root, entry.File))
	if err != nil {
		return nil, fmt.Errorf("reading dataset %q: %w", ref, err)
	}
	return &Info{
		Store: l.name,
		Ref:   ref,
		Title: entry.Title,
		Vars:  ds.VarNames(),
		Dims:  ds.DimNames(),
	}, nil
}

// Open loads the dataset behind ref.
func (l *Local) Open(ctx context.Context, ref string) (*dataset.Dataset, error) {
	entry, err := l.entry(ref)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.ReadFile(filepath.Join(l.root, entry.File))
	if err != nil {
		return nil, fmt.Errorf("reading dataset %q: %w", ref, err)
	}
	if ds.Name == "" {
		ds.Name = ref
	}
	return ds, nil
}

// Close is a no-op; the store holds no resources between calls.
func (l *Local) Close() error { return nil }

func (l *Local) index() (*localIndex, error) {
	raw, err := os.ReadFile(filepath.Join(l.root, IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("reading catalog index: %w", err)
	}
	var idx localIndex
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("invalid catalog index: %w", err)
	}
	return &idx, nil
}

func (l *Local) entry(ref string) (*localEntry, error) {
	idx, err := l.index()
	if err != nil {
		return nil, err
	}
	for i := range idx.Datasets {
		if idx.Datasets[i].Ref == ref {
			return &idx.Datasets[i], nil
		}
	}
	return nil, &NotFoundError{Store: l.name, Ref: ref}
}

var _ Store = (*Local)(nil)
