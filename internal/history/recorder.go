// recorder.go - Routing engine events to per-workspace history stores
package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tephra-labs/tephra/internal/workspace"
)

// Recorder receives evaluation pass events for any number of workspaces and
// writes each to the history database under that workspace's data directory.
// Stores open lazily on first use and stay open until Close. Run IDs route
// follow-up events back to the store that issued them.
type Recorder struct {
	mu     sync.Mutex
	logger *slog.Logger
	stores map[string]*Store // keyed by database path
	runs   map[string]*Store // run id -> issuing store
}

// NewRecorder creates a recorder with no open stores.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		logger: logger,
		stores: make(map[string]*Store),
		runs:   make(map[string]*Store),
	}
}

// BeginRun starts a run in the history database of the workspace at base.
func (r *Recorder) BeginRun(base, target string) (string, error) {
	store, err := r.storeFor(base)
	if err != nil {
		r.logger.Warn("history store unavailable", "workspace", base, "error", err)
		return "", err
	}

	id, err := store.BeginRun(base, target)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.runs[id] = store
	r.mu.Unlock()
	return id, nil
}

// RecordStep records one resource outcome against the run's store.
func (r *Recorder) RecordStep(runID, resource, status string, elapsed time.Duration, errText string) error {
	r.mu.Lock()
	store, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown run: %s", runID)
	}
	return store.RecordStep(runID, resource, status, elapsed, errText)
}

// FinishRun finishes the run and releases its routing entry.
func (r *Recorder) FinishRun(runID, status, errText string) error {
	r.mu.Lock()
	store, ok := r.runs[runID]
	delete(r.runs, runID)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown run: %s", runID)
	}
	return store.FinishRun(runID, status, errText)
}

// Close closes every store the recorder opened.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.stores = make(map[string]*Store)
	r.runs = make(map[string]*Store)
	return errors.Join(errs...)
}

var _ workspace.RunRecorder = (*Recorder)(nil)

func (r *Recorder) storeFor(base string) (*Store, error) {
	path := filepath.Join(base, workspace.DataDirName, workspace.HistoryFileName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores[path]; ok {
		return store, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	store := NewStore()
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	r.stores[path] = store
	return store, nil
}
