package workspace

// manager.go - Process-wide registry of open workspaces

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Manager tracks open workspaces by base directory and enforces at most one
// open instance per path. Distinct workspaces are fully independent; the
// manager's own lock only guards the registry.
type Manager struct {
	mu     sync.Mutex
	open   map[string]*Workspace
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a manager handing cfg to every workspace it opens.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		open:   make(map[string]*Workspace),
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Resolve cleans base into the absolute path used to identify a workspace.
func Resolve(base string) (string, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving workspace path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// Init creates an empty workspace at base, persists it, and opens it. It
// fails with AlreadyExists when a workspace is already persisted there,
// unless overwrite is set.
func (m *Manager) Init(base, description string, overwrite bool) (*Workspace, error) {
	key, err := Resolve(base)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[key]; ok {
		return nil, &StateError{Kind: KindAlreadyOpen, Base: key}
	}
	if _, err := os.Stat(filepath.Join(key, DataDirName, FileName)); err == nil && !overwrite {
		return nil, &StateError{Kind: KindAlreadyExists, Base: key}
	}

	w := newWorkspace(key, m.cfg)
	w.description = description
	if err := w.Save(); err != nil {
		return nil, err
	}
	m.open[key] = w
	m.logger.Info("workspace initialized", "workspace", key)
	return w, nil
}

// Open loads the persisted workspace at base. A second in-process open of
// the same path fails with AlreadyOpen; use Get for the existing handle.
func (m *Manager) Open(base string) (*Workspace, error) {
	key, err := Resolve(base)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[key]; ok {
		return nil, &StateError{Kind: KindAlreadyOpen, Base: key}
	}
	w, err := load(key, m.cfg)
	if err != nil {
		return nil, err
	}
	m.open[key] = w
	m.logger.Info("workspace opened", "workspace", key, "resources", len(w.Resources()))
	return w, nil
}

// Get returns the open workspace at base.
func (m *Manager) Get(base string) (*Workspace, error) {
	key, err := Resolve(base)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.open[key]
	if !ok {
		return nil, &StateError{Kind: KindNotOpen, Base: key}
	}
	return w, nil
}

// List returns the base directories of all open workspaces, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	bases := make([]string, 0, len(m.open))
	for base := range m.open {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	return bases
}

// Close closes the workspace at base and reports whether unsaved changes
// were discarded.
func (m *Manager) Close(base string) (bool, error) {
	key, err := Resolve(base)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	w, ok := m.open[key]
	if !ok {
		m.mu.Unlock()
		return false, &StateError{Kind: KindNotOpen, Base: key}
	}
	delete(m.open, key)
	m.mu.Unlock()

	discarded := w.Close()
	m.logger.Info("workspace closed", "workspace", key, "discarded_changes", discarded)
	return discarded, nil
}

// CloseAll closes every open workspace and returns the bases whose unsaved
// changes were discarded.
func (m *Manager) CloseAll() []string {
	m.mu.Lock()
	workspaces := make([]*Workspace, 0, len(m.open))
	for _, w := range m.open {
		workspaces = append(workspaces, w)
	}
	m.open = make(map[string]*Workspace)
	m.mu.Unlock()

	var discarded []string
	for _, w := range workspaces {
		if w.Close() {
			discarded = append(discarded, w.Base())
		}
	}
	sort.Strings(discarded)
	return discarded
}

// Delete closes the workspace if open and removes its data directory. The
// base directory itself, and anything exported into it, stays.
func (m *Manager) Delete(base string) error {
	key, err := Resolve(base)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if w, ok := m.open[key]; ok {
		delete(m.open, key)
		m.mu.Unlock()
		_ = w.Close()
	} else {
		m.mu.Unlock()
	}

	dataDir := filepath.Join(key, DataDirName)
	if _, err := os.Stat(filepath.Join(dataDir, FileName)); errors.Is(err, os.ErrNotExist) {
		return &StateError{Kind: KindNotFound, Base: key}
	}
	if err := os.RemoveAll(dataDir); err != nil {
		return &PersistError{Path: dataDir, Err: err}
	}
	m.logger.Info("workspace deleted", "workspace", key)
	return nil
}

// Clean removes every resource from the workspace at base and persists the
// now empty graph. The workspace may be open in this manager or on disk
// only.
func (m *Manager) Clean(base string) error {
	key, err := Resolve(base)
	if err != nil {
		return err
	}
	m.mu.Lock()
	w, ok := m.open[key]
	m.mu.Unlock()

	if !ok {
		w, err = load(key, m.cfg)
		if err != nil {
			return err
		}
	}
	if err := w.Clean(); err != nil {
		return err
	}
	if err := w.Save(); err != nil {
		return err
	}
	m.logger.Info("workspace cleaned", "workspace", key)
	return nil
}
