package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-labs/tephra/internal/graph"
)

func TestManagerInitOpenCycle(t *testing.T) {
	calls := newCallLog()
	m := NewManager(Config{Ops: newTestRegistry(t, calls)})
	base := t.TempDir()

	w, err := m.Init(base, "", false)
	require.NoError(t, err)
	assert.FileExists(t, w.FilePath())
	assert.False(t, w.Modified(), "init persists the empty graph")

	require.NoError(t, w.AddSource("a", nil, prov("a")))
	require.NoError(t, w.AddStep("b", "trace", []graph.Binding{graph.RefTo("x", "a")}))
	require.NoError(t, w.Save())

	discarded, err := m.Close(base)
	require.NoError(t, err)
	assert.False(t, discarded)

	reopened, err := m.Open(base)
	require.NoError(t, err)
	assert.Len(t, reopened.Resources(), 2)
}

func TestManagerInitAlreadyExists(t *testing.T) {
	m := NewManager(Config{})
	base := t.TempDir()

	_, err := m.Init(base, "", false)
	require.NoError(t, err)
	_, err = m.Close(base)
	require.NoError(t, err)

	_, err = m.Init(base, "", false)
	assert.True(t, IsState(err, KindAlreadyExists))

	w, err := m.Init(base, "", true)
	require.NoError(t, err, "overwrite replaces the persisted workspace")
	assert.Empty(t, w.Resources())
}

func TestManagerOpenNotFound(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Open(t.TempDir())
	assert.True(t, IsState(err, KindNotFound))
}

func TestManagerInitDescriptionSurvivesReload(t *testing.T) {
	m := NewManager(Config{})
	base := t.TempDir()

	w, err := m.Init(base, "sea surface temperature scratchpad", false)
	require.NoError(t, err)
	assert.Equal(t, "sea surface temperature scratchpad", w.Description())

	_, err = m.Close(base)
	require.NoError(t, err)

	reopened, err := m.Open(base)
	require.NoError(t, err)
	assert.Equal(t, "sea surface temperature scratchpad", reopened.Description())
}

func TestManagerSecondOpenRejected(t *testing.T) {
	m := NewManager(Config{})
	base := t.TempDir()

	_, err := m.Init(base, "", false)
	require.NoError(t, err)

	_, err = m.Open(base)
	assert.True(t, IsState(err, KindAlreadyOpen))
	_, err = m.Init(base, "", true)
	assert.True(t, IsState(err, KindAlreadyOpen))

	w, err := m.Get(base)
	require.NoError(t, err)
	assert.Equal(t, base, w.Base())
}

func TestManagerGetNotOpen(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Get(t.TempDir())
	assert.True(t, IsState(err, KindNotOpen))
}

func TestManagerCloseAllReportsDiscarded(t *testing.T) {
	m := NewManager(Config{})
	clean := t.TempDir()
	touched := t.TempDir()

	_, err := m.Init(clean, "", false)
	require.NoError(t, err)
	w, err := m.Init(touched, "", false)
	require.NoError(t, err)
	require.NoError(t, w.AddSource("a", nil, prov("a")))

	discarded := m.CloseAll()
	assert.Equal(t, []string{touched}, discarded)
	assert.Empty(t, m.List())
}

func TestManagerDelete(t *testing.T) {
	m := NewManager(Config{})
	base := t.TempDir()

	w, err := m.Init(base, "", false)
	require.NoError(t, err)
	dataDir := w.DataDir()

	require.NoError(t, m.Delete(base))
	assert.NoDirExists(t, dataDir)
	assert.Empty(t, m.List(), "delete closes the workspace first")

	err = m.Delete(base)
	assert.True(t, IsState(err, KindNotFound))
}

func TestManagerDeleteKeepsBaseDir(t *testing.T) {
	m := NewManager(Config{})
	base := t.TempDir()
	keep := filepath.Join(base, "exported.csv")
	require.NoError(t, os.WriteFile(keep, []byte("variable,value\n"), 0o644))

	_, err := m.Init(base, "", false)
	require.NoError(t, err)
	require.NoError(t, m.Delete(base))

	assert.FileExists(t, keep)
	assert.DirExists(t, base)
}

func TestManagerClean(t *testing.T) {
	calls := newCallLog()
	m := NewManager(Config{Ops: newTestRegistry(t, calls)})
	base := t.TempDir()

	w, err := m.Init(base, "", false)
	require.NoError(t, err)
	require.NoError(t, w.AddSource("a", nil, prov("a")))
	require.NoError(t, w.Save())

	require.NoError(t, m.Clean(base))
	assert.Empty(t, w.Resources())
	assert.False(t, w.Modified(), "clean persists the emptied graph")

	// Clean also works against a workspace that is only on disk.
	_, err = m.Close(base)
	require.NoError(t, err)
	reopened, err := m.Open(base)
	require.NoError(t, err)
	assert.Empty(t, reopened.Resources())
}

func TestManagerListSorted(t *testing.T) {
	m := NewManager(Config{})
	a := t.TempDir()
	b := t.TempDir()

	_, err := m.Init(b, "", false)
	require.NoError(t, err)
	_, err = m.Init(a, "", false)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.True(t, list[0] < list[1])
}
