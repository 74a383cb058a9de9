package workspace

// persist.go - Atomic JSON persistence of the resource graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/tephra-labs/tephra/internal/graph"
)

// FormatVersion is the persisted file format. Files carrying a different
// version are rejected on load.
const FormatVersion = 1

// atomicRename is swapped by tests to inject failures between the temp
// write and the rename.
var atomicRename = os.Rename

type workspaceFile struct {
	FormatVersion int              `json:"format_version"`
	Description   string           `json:"description,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       uint64           `json:"version"`
	Resources     []resourceRecord `json:"resources"`
}

type resourceRecord struct {
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	Source *sourceRecord `json:"source,omitempty"`
	Op     string        `json:"op,omitempty"`
	Args   []argRecord   `json:"args,omitempty"`
}

type sourceRecord struct {
	Store    string    `json:"store,omitempty"`
	Ref      string    `json:"ref"`
	Title    string    `json:"title,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// argRecord is one binding. Ref is set for reference bindings; literal
// bindings carry the cty type and value in their JSON encodings so the
// declared type round-trips exactly.
type argRecord struct {
	Param string          `json:"param"`
	Ref   string          `json:"ref,omitempty"`
	Type  json.RawMessage `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Save serializes the graph to the workspace file. The document is written
// to a temp file in the same directory and renamed into place, so a failure
// mid-write leaves the previous file intact. Cached values are never
// persisted; they are recomputed on demand after a reload.
func (w *Workspace) Save() error {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &StateError{Kind: KindNotOpen, Base: w.base}
	}

	data, err := w.encodeLocked()
	if err != nil {
		return &PersistError{Path: w.FilePath(), Err: err}
	}

	if err := writeFileAtomic(w.FilePath(), data); err != nil {
		return &PersistError{Path: w.FilePath(), Err: err}
	}

	w.modified = false
	w.logger.Debug("workspace saved", "workspace", w.base, "version", w.version)
	return nil
}

// Document returns the workspace serialized in its file format without
// touching disk. The HTTP service returns it as the workspace body.
func (w *Workspace) Document() ([]byte, error) {
	w.pass.Lock()
	defer w.pass.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, &StateError{Kind: KindNotOpen, Base: w.base}
	}
	return w.encodeLocked()
}

func (w *Workspace) encodeLocked() ([]byte, error) {
	doc := workspaceFile{
		FormatVersion: FormatVersion,
		Description:   w.description,
		CreatedAt:     w.created,
		UpdatedAt:     w.updated,
		Version:       w.version,
		Resources:     make([]resourceRecord, 0, w.graph.Len()),
	}
	for _, node := range w.graph.Snapshot() {
		rec, err := encodeResource(node)
		if err != nil {
			return nil, err
		}
		doc.Resources = append(doc.Resources, rec)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".workspace-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := atomicRename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func encodeResource(node graph.Node) (resourceRecord, error) {
	rec := resourceRecord{Name: node.Name, Kind: string(node.Kind)}
	if node.Kind == graph.KindSource {
		rec.Source = &sourceRecord{
			Store:    node.Prov.Store,
			Ref:      node.Prov.Ref,
			Title:    node.Prov.Title,
			OpenedAt: node.Prov.OpenedAt,
		}
		return rec, nil
	}

	rec.Op = node.Op
	rec.Args = make([]argRecord, 0, len(node.Bindings))
	for _, b := range node.Bindings {
		if b.IsRef {
			rec.Args = append(rec.Args, argRecord{Param: b.Param, Ref: b.Ref})
			continue
		}
		t, err := ctyjson.MarshalType(b.Value.Type())
		if err != nil {
			return rec, fmt.Errorf("argument %s of %s: %w", b.Param, node.Name, err)
		}
		v, err := ctyjson.Marshal(b.Value, b.Value.Type())
		if err != nil {
			return rec, fmt.Errorf("argument %s of %s: %w", b.Param, node.Name, err)
		}
		rec.Args = append(rec.Args, argRecord{Param: b.Param, Type: t, Value: v})
	}
	return rec, nil
}

// load reads a persisted workspace from base. It fails with NotFound when no
// workspace file exists there.
func load(base string, cfg Config) (*Workspace, error) {
	path := filepath.Join(base, DataDirName, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &StateError{Kind: KindNotFound, Base: base}
	}
	if err != nil {
		return nil, &PersistError{Path: path, Err: err}
	}

	var doc workspaceFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &PersistError{Path: path, Err: fmt.Errorf("corrupt workspace file: %w", err)}
	}
	if doc.FormatVersion != FormatVersion {
		return nil, &PersistError{Path: path, Err: fmt.Errorf("unsupported format_version %d", doc.FormatVersion)}
	}

	nodes := make([]graph.Node, 0, len(doc.Resources))
	for _, rec := range doc.Resources {
		node, err := decodeResource(rec)
		if err != nil {
			return nil, &PersistError{Path: path, Err: err}
		}
		nodes = append(nodes, node)
	}

	w := newWorkspace(base, cfg)
	if err := w.graph.Restore(nodes); err != nil {
		return nil, &PersistError{Path: path, Err: err}
	}
	w.description = doc.Description
	w.version = doc.Version
	w.created = doc.CreatedAt
	w.updated = doc.UpdatedAt
	return w, nil
}

func decodeResource(rec resourceRecord) (graph.Node, error) {
	switch graph.Kind(rec.Kind) {
	case graph.KindSource:
		if rec.Source == nil {
			return graph.Node{}, fmt.Errorf("source resource %s has no source block", rec.Name)
		}
		return graph.Node{
			Name: rec.Name,
			Kind: graph.KindSource,
			Prov: graph.Provenance{
				Store:    rec.Source.Store,
				Ref:      rec.Source.Ref,
				Title:    rec.Source.Title,
				OpenedAt: rec.Source.OpenedAt,
			},
		}, nil

	case graph.KindStep:
		node := graph.Node{Name: rec.Name, Kind: graph.KindStep, Op: rec.Op}
		for _, a := range rec.Args {
			if a.Ref != "" {
				node.Bindings = append(node.Bindings, graph.RefTo(a.Param, a.Ref))
				continue
			}
			t, err := ctyjson.UnmarshalType(a.Type)
			if err != nil {
				return graph.Node{}, fmt.Errorf("argument %s of %s: %w", a.Param, rec.Name, err)
			}
			v, err := ctyjson.Unmarshal(a.Value, t)
			if err != nil {
				return graph.Node{}, fmt.Errorf("argument %s of %s: %w", a.Param, rec.Name, err)
			}
			node.Bindings = append(node.Bindings, graph.Lit(a.Param, v))
		}
		return node, nil
	}
	return graph.Node{}, fmt.Errorf("resource %s has unknown kind %q", rec.Name, rec.Kind)
}
