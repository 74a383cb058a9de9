package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tephra-labs/tephra/internal/catalog"
	"github.com/tephra-labs/tephra/internal/cli/config"
	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/testutil"
	"github.com/tephra-labs/tephra/internal/workspace"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

// testContext drives the run functions directly, with both renderer streams
// captured in one buffer.
type testContext struct {
	*CommandContext
	dir string
	out *bytes.Buffer
}

func newTestContext(t *testing.T, mode output.Mode) *testContext {
	t.Helper()

	cfg := &config.Config{
		WorkspaceDir: t.TempDir(),
		CatalogDir:   seedCatalogDir(t),
		Workers:      2,
		OutputFormat: string(mode),
	}

	out := &bytes.Buffer{}
	r := output.NewRendererWithTTY(out, out, false, mode)

	cc, err := newEngineContext(cfg, testutil.NewTestLogger(t), r)
	require.NoError(t, err)
	cc.autosave = true
	t.Cleanup(cc.Close)

	return &testContext{CommandContext: cc, dir: cfg.WorkspaceDir, out: out}
}

// seedCatalogDir writes a local store holding one small time series.
func seedCatalogDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	ds := dataset.New("sst_monthly")
	ds.Coords["time"] = []float64{0, 1, 2}
	ds.Vars["sst"] = &dataset.Variable{Dims: []string{"time"}, Values: []float64{284, 286, 288}}

	f, err := os.Create(filepath.Join(root, "sst.json"))
	require.NoError(t, err)
	require.NoError(t, dataset.Encode(f, ds))
	require.NoError(t, f.Close())

	index := "datasets:\n  - ref: sst\n    file: sst.json\n    title: Monthly SST\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, catalog.IndexFileName), []byte(index), 0o644))
	return root
}

// seed initializes the workspace with a source and a step averaging it.
func (tc *testContext) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))
	require.NoError(t, runSource(context.Background(), tc.CommandContext, tc.dir, "raw", "sst", ""))
	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "mean", "temporal_mean", []string{"ds=@raw"}))
	tc.out.Reset()
}

func (tc *testContext) base(t *testing.T) string {
	t.Helper()
	base, err := workspace.Resolve(tc.dir)
	require.NoError(t, err)
	return base
}

func TestRunInitAndStatus(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)

	require.NoError(t, runInit(tc.CommandContext, tc.dir, "reef survey", false))
	base := tc.base(t)
	assert.Contains(t, tc.out.String(), "initialized workspace at "+base)
	assert.Contains(t, tc.out.String(), "reef survey")

	tc.out.Reset()
	require.NoError(t, runStatus(tc.CommandContext, tc.dir))
	got := tc.out.String()
	assert.Contains(t, got, "Workspace "+base)
	assert.Contains(t, got, "reef survey")
	assert.Contains(t, got, "saved")
	assert.Contains(t, got, "0 sources, 0 steps")
}

func TestRunStatusJSON(t *testing.T) {
	tc := newTestContext(t, output.ModeJSON)
	tc.seed(t)

	require.NoError(t, runStatus(tc.CommandContext, tc.dir))

	var st workspaceStatus
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &st))
	assert.Equal(t, tc.base(t), st.Base)
	assert.Equal(t, 2, st.Resources)
	assert.Equal(t, 1, st.Sources)
	assert.Equal(t, 1, st.Steps)
	assert.False(t, st.Modified)
}

func TestRunInitExistingAndForce(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)

	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))

	// Still open in this context.
	err := runInit(tc.CommandContext, tc.dir, "", false)
	assert.True(t, workspace.IsState(err, workspace.KindAlreadyOpen))

	_, err = tc.Manager.Close(tc.base(t))
	require.NoError(t, err)

	// Closed but persisted on disk.
	err = runInit(tc.CommandContext, tc.dir, "", false)
	assert.True(t, workspace.IsState(err, workspace.KindAlreadyExists))

	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", true))
	assert.Contains(t, tc.out.String(), "initialized workspace")
}

func TestRunOpenFallsBackToOpenHandle(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	require.NoError(t, runOpen(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "opened "+tc.base(t))
	assert.Contains(t, tc.out.String(), "(2 resources)")
}

func TestRunSourceAndList(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))

	require.NoError(t, runSource(context.Background(), tc.CommandContext, tc.dir, "raw", "sst", ""))
	assert.Contains(t, tc.out.String(), "added source raw from local:sst (Monthly SST)")

	tc.out.Reset()
	require.NoError(t, runList(tc.CommandContext, tc.dir))
	got := tc.out.String()
	assert.Contains(t, got, "Resources (1 total)")
	assert.Contains(t, got, "raw")
	assert.Contains(t, got, "local:sst")
}

func TestRunSourceStoreFlag(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))

	require.NoError(t, runSource(context.Background(), tc.CommandContext, tc.dir, "raw", "sst", "local"))
	assert.Contains(t, tc.out.String(), "added source raw from local:sst")
}

func TestRunSourceUnknownRef(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))

	err := runSource(context.Background(), tc.CommandContext, tc.dir, "raw", "missing", "")
	var nf *catalog.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Ref)
}

func TestRunListEmptyWorkspace(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))
	tc.out.Reset()

	require.NoError(t, runList(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "workspace is empty")
}

func TestRunListJSON(t *testing.T) {
	tc := newTestContext(t, output.ModeJSON)
	tc.seed(t)

	require.NoError(t, runList(tc.CommandContext, tc.dir))

	var infos []resourceInfo
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "raw", infos[0].Name)
	assert.Equal(t, "source", infos[0].Kind)
	assert.Equal(t, "mean", infos[1].Name)
	assert.Equal(t, []string{"raw"}, infos[1].DependsOn)
}

func TestRunAddAndSetStep(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	require.NoError(t, runInit(tc.CommandContext, tc.dir, "", false))
	require.NoError(t, runSource(context.Background(), tc.CommandContext, tc.dir, "raw", "sst", ""))
	tc.out.Reset()

	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "mean", "temporal_mean", []string{"ds=@raw"}))
	assert.Contains(t, tc.out.String(), "added step mean = temporal_mean ds=@raw")

	// Adding the same name again is rejected.
	err := runAddStep(tc.CommandContext, tc.dir, "mean", "temporal_mean", []string{"ds=@raw"})
	assert.True(t, graph.IsKind(err, graph.KindDuplicateName))

	// set rebinds the existing step.
	tc.out.Reset()
	tokens := []string{"ds=@raw", "expr=sst - 273.15"}
	require.NoError(t, runSetStep(tc.CommandContext, tc.dir, "mean", "compute", tokens))
	assert.Contains(t, tc.out.String(), "rebound step mean = compute")

	// set with a new name adds.
	tc.out.Reset()
	require.NoError(t, runSetStep(tc.CommandContext, tc.dir, "avg", "temporal_mean", []string{"ds=@raw"}))
	assert.Contains(t, tc.out.String(), "added step avg")
}

func TestRunAddStepUnknownOperation(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	err := runAddStep(tc.CommandContext, tc.dir, "x", "frobnicate", nil)
	assert.True(t, graph.IsKind(err, graph.KindUnknownOperation))
}

func TestRunRemoveInUseAndCascade(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	err := runRemove(tc.CommandContext, tc.dir, "raw", false)
	assert.True(t, graph.IsKind(err, graph.KindResourceInUse))

	require.NoError(t, runRemove(tc.CommandContext, tc.dir, "raw", true))
	assert.Contains(t, tc.out.String(), "removed raw and 1 dependent(s): mean")

	w, err := tc.Manager.Get(tc.base(t))
	require.NoError(t, err)
	assert.Empty(t, w.Resources())
}

func TestRunRemoveLeaf(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	require.NoError(t, runRemove(tc.CommandContext, tc.dir, "mean", false))
	assert.Contains(t, tc.out.String(), "removed mean")
}

func TestRunRenameRewritesReferences(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	require.NoError(t, runRename(tc.CommandContext, tc.dir, "raw", "sst2020"))
	assert.Contains(t, tc.out.String(), "renamed raw to sst2020")

	w, err := tc.Manager.Get(tc.base(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"sst2020"}, w.Dependencies("mean"))
}

func TestRunPrintScalarText(t *testing.T) {
	tc := newTestContext(t, output.ModeText)
	tc.seed(t)

	require.NoError(t, runPrint(context.Background(), tc.CommandContext, tc.dir, "mean"))
	assert.Contains(t, tc.out.String(), "Evaluated mean")
	assert.Contains(t, tc.out.String(), "286")
}

func TestRunPrintDatasetJSON(t *testing.T) {
	tc := newTestContext(t, output.ModeJSON)
	tc.seed(t)

	require.NoError(t, runPrint(context.Background(), tc.CommandContext, tc.dir, "raw"))

	var doc struct {
		Name string `json:"name"`
		Vars map[string]struct {
			Dims   []string  `json:"dims"`
			Values []float64 `json:"values"`
		} `json:"vars"`
	}
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &doc))
	require.Contains(t, doc.Vars, "sst")
	assert.Equal(t, []float64{284, 286, 288}, doc.Vars["sst"].Values)
}

func TestRunPrintUnknownResource(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	err := runPrint(context.Background(), tc.CommandContext, tc.dir, "nope")
	assert.True(t, graph.IsKind(err, graph.KindUnknownResource))
}

func TestRunExport(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	csvPath := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, runExport(context.Background(), tc.CommandContext, tc.dir, "raw", csvPath, ""))
	assert.Contains(t, tc.out.String(), "wrote raw to "+csvPath+" (csv)")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "variable"))
	assert.Len(t, lines, 4)

	jsonPath := filepath.Join(t.TempDir(), "out.json")
	tc.out.Reset()
	require.NoError(t, runExport(context.Background(), tc.CommandContext, tc.dir, "mean", jsonPath, "json"))
	assert.Contains(t, tc.out.String(), "(json)")

	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestRunSaveAndClose(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)
	base := tc.base(t)

	// Shell semantics: no autosave, so the added step stays in memory only.
	tc.autosave = false
	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "extra", "temporal_mean", []string{"ds=@raw"}))

	tc.out.Reset()
	require.NoError(t, runClose(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "closed "+base+", unsaved changes discarded")

	require.NoError(t, runOpen(tc.CommandContext, tc.dir))
	w, err := tc.Manager.Get(base)
	require.NoError(t, err)
	_, ok := w.Resource("extra")
	assert.False(t, ok)

	// Saved changes survive the close.
	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "extra", "temporal_mean", []string{"ds=@raw"}))
	tc.out.Reset()
	require.NoError(t, runSave(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "saved "+base)

	tc.out.Reset()
	require.NoError(t, runClose(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "closed "+base)
	assert.NotContains(t, tc.out.String(), "discarded")

	require.NoError(t, runOpen(tc.CommandContext, tc.dir))
	w, err = tc.Manager.Get(base)
	require.NoError(t, err)
	_, ok = w.Resource("extra")
	assert.True(t, ok)
}

func TestRunCleanResetsGraph(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)
	base := tc.base(t)

	require.NoError(t, runClean(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "cleaned "+base)

	w, err := tc.Manager.Get(base)
	require.NoError(t, err)
	assert.Empty(t, w.Resources())

	tc.out.Reset()
	require.NoError(t, runList(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "workspace is empty")
}

func TestRunDelete(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)
	base := tc.base(t)

	require.NoError(t, runDelete(tc.CommandContext, tc.dir))
	assert.Contains(t, tc.out.String(), "deleted workspace at "+base)

	_, err := os.Stat(filepath.Join(base, workspace.DataDirName))
	assert.True(t, os.IsNotExist(err))

	err = runDelete(tc.CommandContext, tc.dir)
	assert.True(t, workspace.IsState(err, workspace.KindNotFound))
}

func TestRunExitConfirm(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)
	tc.autosave = false
	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "extra", "temporal_mean", []string{"ds=@raw"}))
	tc.out.Reset()

	// Declining the prompt keeps everything open.
	leave, err := runExit(tc.CommandContext, false, func(string) bool { return false })
	require.NoError(t, err)
	assert.False(t, leave)
	assert.Contains(t, tc.out.String(), "not exiting")
	assert.Len(t, tc.Manager.List(), 1)

	// Accepting discards and reports the workspace.
	tc.out.Reset()
	var prompt string
	leave, err = runExit(tc.CommandContext, false, func(p string) bool { prompt = p; return true })
	require.NoError(t, err)
	assert.True(t, leave)
	assert.Contains(t, prompt, "1 workspace(s)")
	assert.Contains(t, tc.out.String(), "discarded unsaved changes in "+tc.base(t))
	assert.Empty(t, tc.Manager.List())
}

func TestRunExitYesSkipsPrompt(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)
	tc.autosave = false
	require.NoError(t, runAddStep(tc.CommandContext, tc.dir, "extra", "temporal_mean", []string{"ds=@raw"}))
	tc.out.Reset()

	leave, err := runExit(tc.CommandContext, true, func(string) bool {
		t.Fatal("confirm must not be called with --yes")
		return false
	})
	require.NoError(t, err)
	assert.True(t, leave)
	assert.Empty(t, tc.Manager.List())
}

func TestRunExitCleanWorkspaces(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	leave, err := runExit(tc.CommandContext, false, func(string) bool {
		t.Fatal("confirm must not be called without unsaved changes")
		return false
	})
	require.NoError(t, err)
	assert.True(t, leave)
	assert.NotContains(t, tc.out.String(), "discarded")
}

func TestRunOpsListAndDetail(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	require.NoError(t, runOps(tc.CommandContext))
	got := tc.out.String()
	assert.Contains(t, got, "Operations (8 total)")
	assert.Contains(t, got, "temporal_mean")
	assert.Contains(t, got, "correlation")

	tc.out.Reset()
	require.NoError(t, runOpDetail(tc.CommandContext, "correlation"))
	got = tc.out.String()
	assert.Contains(t, got, "var_x")
	assert.Contains(t, got, "Pearson")

	err := runOpDetail(tc.CommandContext, "frobnicate")
	assert.True(t, graph.IsKind(err, graph.KindUnknownOperation))
}

func TestRunOpsJSON(t *testing.T) {
	tc := newTestContext(t, output.ModeJSON)
	tc.seed(t)

	require.NoError(t, runOps(tc.CommandContext))

	var infos []opInfo
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &infos))
	require.Len(t, infos, 8)

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Contains(t, names, "compute")
	assert.Contains(t, names, "subset_spatial")
}

func TestRunHistoryAfterEvaluation(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)
	tc.seed(t)

	require.NoError(t, runPrint(context.Background(), tc.CommandContext, tc.dir, "mean"))

	tc.out.Reset()
	require.NoError(t, runHistory(tc.CommandContext, tc.dir, 10))
	got := tc.out.String()
	assert.Contains(t, got, "Evaluation history (1 runs)")
	assert.Contains(t, got, "mean")
	assert.Contains(t, got, "completed")
}

func TestRunHistoryNoWorkspace(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)

	err := runHistory(tc.CommandContext, t.TempDir(), 10)
	assert.True(t, workspace.IsState(err, workspace.KindNotFound))
}

func TestTargetDir(t *testing.T) {
	tc := newTestContext(t, output.ModeMarkdown)

	assert.Equal(t, tc.dir, tc.targetDir(nil))
	assert.Equal(t, "elsewhere", tc.targetDir([]string{"elsewhere"}))

	tc.Cfg.WorkspaceDir = ""
	assert.Equal(t, ".", tc.targetDir(nil))
}
