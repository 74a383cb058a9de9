package graph

import (
	"testing"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
)

type sigStub map[string]op.Signature

func (s sigStub) Signature(name string) (op.Signature, bool) {
	sig, ok := s[name]
	return sig, ok
}

func testSigs() sigStub {
	half := cty.NumberFloatVal(0.5)
	return sigStub{
		"scale": {
			Name: "scale",
			Params: []op.Param{
				{Name: "ds", Resource: true},
				{Name: "factor", Type: cty.Number},
			},
		},
		"merge": {
			Name: "merge",
			Params: []op.Param{
				{Name: "left", Resource: true},
				{Name: "right", Resource: true},
			},
		},
		"constant": {
			Name:   "constant",
			Params: []op.Param{{Name: "value", Type: cty.Number}},
		},
		"smooth": {
			Name: "smooth",
			Params: []op.Param{
				{Name: "ds", Resource: true},
				{Name: "window", Type: cty.Number, Default: &half},
			},
		},
	}
}

func mustAddSource(t *testing.T, g *Graph, name string) {
	t.Helper()
	if err := g.AddSource(name, Provenance{Store: "local", Ref: name}); err != nil {
		t.Fatalf("AddSource(%q) failed: %v", name, err)
	}
}

func mustAddStep(t *testing.T, g *Graph, name, opName string, bindings ...Binding) {
	t.Helper()
	if err := g.AddStep(name, opName, bindings); err != nil {
		t.Fatalf("AddStep(%q) failed: %v", name, err)
	}
}

func sameNodes(t *testing.T, want, got []Node) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("node count: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Name != g.Name || w.Kind != g.Kind || w.Op != g.Op {
			t.Fatalf("node %d: want %s/%s/%s, got %s/%s/%s", i, w.Name, w.Kind, w.Op, g.Name, g.Kind, g.Op)
		}
		if len(w.Bindings) != len(g.Bindings) {
			t.Fatalf("node %s: binding count: want %d, got %d", w.Name, len(w.Bindings), len(g.Bindings))
		}
		for j := range w.Bindings {
			wb, gb := w.Bindings[j], g.Bindings[j]
			if wb.Param != gb.Param || wb.IsRef != gb.IsRef || wb.Ref != gb.Ref {
				t.Fatalf("node %s binding %d: want %+v, got %+v", w.Name, j, wb, gb)
			}
			if !wb.IsRef && !wb.Value.RawEquals(gb.Value) {
				t.Fatalf("node %s binding %d: literal mismatch", w.Name, j)
			}
		}
	}
}

func TestAddSourceAndStep(t *testing.T) {
	g := New(testSigs())

	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "scaled", "scale",
		RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(2)))

	if g.Len() != 2 {
		t.Errorf("expected 2 resources, got %d", g.Len())
	}
	node, ok := g.Node("scaled")
	if !ok {
		t.Fatal("expected node 'scaled'")
	}
	if node.Op != "scale" {
		t.Errorf("expected op 'scale', got %q", node.Op)
	}
	deps := g.Dependencies("scaled")
	if len(deps) != 1 || deps[0] != "sst" {
		t.Errorf("expected dependencies [sst], got %v", deps)
	}
	if got := g.Dependents("sst"); len(got) != 1 || got[0] != "scaled" {
		t.Errorf("expected dependents [scaled], got %v", got)
	}
}

func TestAddRejectsInvalidNames(t *testing.T) {
	g := New(testSigs())

	for _, name := range []string{"", "9lives", "a b", "x-y", "@ref"} {
		err := g.AddSource(name, Provenance{})
		if !IsKind(err, KindInvalidName) {
			t.Errorf("AddSource(%q): expected invalid name error, got %v", name, err)
		}
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")

	err := g.AddStep("sst", "constant", []Binding{Lit("value", cty.NumberIntVal(1))})
	if !IsKind(err, KindDuplicateName) {
		t.Errorf("expected duplicate name error, got %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("failed add must not change the graph, len=%d", g.Len())
	}
}

func TestAddStepValidation(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")

	tests := []struct {
		name     string
		op       string
		bindings []Binding
		kind     ErrKind
	}{
		{"unknown op", "resample", nil, KindUnknownOperation},
		{"unknown param", "scale", []Binding{RefTo("ds", "sst"), Lit("phase", cty.NumberIntVal(1))}, KindUnknownParameter},
		{"duplicate binding", "constant", []Binding{Lit("value", cty.NumberIntVal(1)), Lit("value", cty.NumberIntVal(2))}, KindDuplicateBinding},
		{"type mismatch", "constant", []Binding{Lit("value", cty.StringVal("warm"))}, KindTypeMismatch},
		{"literal for resource param", "scale", []Binding{Lit("ds", cty.NumberIntVal(1)), Lit("factor", cty.NumberIntVal(2))}, KindTypeMismatch},
		{"missing required", "scale", []Binding{RefTo("ds", "sst")}, KindMissingParameter},
		{"unknown reference", "scale", []Binding{RefTo("ds", "ghost"), Lit("factor", cty.NumberIntVal(2))}, KindUnknownReference},
	}

	for _, tt := range tests {
		err := g.AddStep("out", tt.op, tt.bindings)
		if !IsKind(err, tt.kind) {
			t.Errorf("%s: expected %s, got %v", tt.name, tt.kind, err)
		}
		if g.Has("out") {
			t.Fatalf("%s: rejected step must not be inserted", tt.name)
		}
	}
}

func TestAddStepSelfReference(t *testing.T) {
	g := New(testSigs())

	err := g.AddStep("loop", "scale", []Binding{RefTo("ds", "loop"), Lit("factor", cty.NumberIntVal(1))})
	if !IsKind(err, KindCycle) {
		t.Errorf("expected cycle error for self reference, got %v", err)
	}
}

func TestOptionalParameterMayStayUnbound(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")

	if err := g.AddStep("smoothed", "smooth", []Binding{RefTo("ds", "sst")}); err != nil {
		t.Fatalf("optional parameter should not be required: %v", err)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := New(testSigs())

	// Diamond: merged depends on warm and cold, both depend on sst.
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "warm", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(1.1)))
	mustAddStep(t, g, "cold", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(0.9)))
	mustAddStep(t, g, "merged", "merge", RefTo("left", "warm"), RefTo("right", "cold"))

	order := g.TopologicalOrder()
	if len(order) != 4 {
		t.Fatalf("expected 4 entries, got %v", order)
	}

	positions := make(map[string]int)
	for i, name := range order {
		positions[name] = i
	}
	if positions["sst"] > positions["warm"] || positions["sst"] > positions["cold"] {
		t.Errorf("dependencies must come first: %v", order)
	}
	if positions["merged"] < positions["warm"] || positions["merged"] < positions["cold"] {
		t.Errorf("dependents must come last: %v", order)
	}
	if positions["warm"] > positions["cold"] {
		t.Errorf("insertion order must break ties: %v", order)
	}
}

func TestTopologicalOrderInsertionTieBreak(t *testing.T) {
	g := New(testSigs())

	// Three independent resources: order must be pure insertion order.
	mustAddStep(t, g, "zeta", "constant", Lit("value", cty.NumberIntVal(1)))
	mustAddStep(t, g, "alpha", "constant", Lit("value", cty.NumberIntVal(2)))
	mustAddStep(t, g, "mid", "constant", Lit("value", cty.NumberIntVal(3)))

	order := g.TopologicalOrder()
	want := []string{"zeta", "alpha", "mid"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestRebind(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddSource(t, g, "ice")
	mustAddStep(t, g, "scaled", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberIntVal(2)))

	if err := g.Rebind("scaled", "scale", []Binding{RefTo("ds", "ice"), Lit("factor", cty.NumberIntVal(3))}); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	deps := g.Dependencies("scaled")
	if len(deps) != 1 || deps[0] != "ice" {
		t.Errorf("expected dependencies [ice], got %v", deps)
	}
	if got := g.Dependents("sst"); len(got) != 0 {
		t.Errorf("old dependency must drop its dependent, got %v", got)
	}
}

func TestRebindKeepsDependents(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddSource(t, g, "ice")
	mustAddStep(t, g, "mid", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberIntVal(2)))
	mustAddStep(t, g, "top", "scale", RefTo("ds", "mid"), Lit("factor", cty.NumberIntVal(3)))

	if err := g.Rebind("mid", "scale", []Binding{RefTo("ds", "ice"), Lit("factor", cty.NumberIntVal(2))}); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	if deps := g.Dependencies("top"); len(deps) != 1 || deps[0] != "mid" {
		t.Errorf("dependents must keep their edge to the rebound resource, got %v", deps)
	}
	if got := g.Dependents("mid"); len(got) != 1 || got[0] != "top" {
		t.Errorf("expected dependents [top], got %v", got)
	}
}

func TestRebindErrors(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")

	err := g.Rebind("ghost", "constant", []Binding{Lit("value", cty.NumberIntVal(1))})
	if !IsKind(err, KindUnknownResource) {
		t.Errorf("expected unknown resource, got %v", err)
	}

	err = g.Rebind("sst", "constant", []Binding{Lit("value", cty.NumberIntVal(1))})
	if !IsKind(err, KindNotAStep) {
		t.Errorf("expected not-a-step error, got %v", err)
	}
}

func TestRebindCycleRejectedLeavesGraphUnchanged(t *testing.T) {
	g := New(testSigs())
	mustAddStep(t, g, "a", "constant", Lit("value", cty.NumberIntVal(1)))
	mustAddStep(t, g, "b", "scale", RefTo("ds", "a"), Lit("factor", cty.NumberIntVal(2)))
	mustAddStep(t, g, "c", "scale", RefTo("ds", "b"), Lit("factor", cty.NumberIntVal(3)))

	before := g.Snapshot()

	// a -> c would close a cycle a -> b -> c -> a.
	err := g.Rebind("a", "scale", []Binding{RefTo("ds", "c"), Lit("factor", cty.NumberIntVal(1))})
	if !IsKind(err, KindCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	var ge *Error
	if !asGraphError(err, &ge) || len(ge.Cycle) < 3 {
		t.Errorf("cycle error should carry the offending path, got %+v", ge)
	}

	sameNodes(t, before, g.Snapshot())
	order := g.TopologicalOrder()
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("graph changed after rejected rebind: %v", order)
		}
	}
}

func asGraphError(err error, target **Error) bool {
	ge, ok := err.(*Error)
	if ok {
		*target = ge
	}
	return ok
}

func TestRemoveInUse(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "scaled", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberIntVal(2)))

	_, err := g.Remove("sst", false)
	if !IsKind(err, KindResourceInUse) {
		t.Fatalf("expected resource-in-use, got %v", err)
	}
	var ge *Error
	if !asGraphError(err, &ge) || len(ge.Dependents) != 1 || ge.Dependents[0] != "scaled" {
		t.Errorf("expected dependents [scaled], got %+v", ge)
	}
	if !g.Has("sst") || !g.Has("scaled") {
		t.Error("failed remove must not change the graph")
	}
}

func TestRemoveForceCascades(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "warm", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(1.1)))
	mustAddStep(t, g, "merged", "merge", RefTo("left", "warm"), RefTo("right", "sst"))
	mustAddStep(t, g, "aside", "constant", Lit("value", cty.NumberIntVal(7)))

	removed, err := g.Remove("sst", true)
	if err != nil {
		t.Fatalf("forced remove failed: %v", err)
	}
	want := []string{"merged", "warm", "sst"}
	if len(removed) != len(want) {
		t.Fatalf("expected removals %v, got %v", want, removed)
	}
	for i, name := range want {
		if removed[i] != name {
			t.Fatalf("expected removals %v, got %v", want, removed)
		}
	}
	if g.Len() != 1 || !g.Has("aside") {
		t.Errorf("unrelated resources must survive, len=%d", g.Len())
	}
}

func TestRemoveUnknown(t *testing.T) {
	g := New(testSigs())
	_, err := g.Remove("ghost", false)
	if !IsKind(err, KindUnknownResource) {
		t.Errorf("expected unknown resource, got %v", err)
	}
}

func TestRenameRewritesReferences(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "warm", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(1.1)))
	mustAddStep(t, g, "merged", "merge", RefTo("left", "warm"), RefTo("right", "sst"))

	if err := g.Rename("sst", "sea_surface"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if g.Has("sst") {
		t.Error("old name must be gone")
	}
	node, _ := g.Node("warm")
	if node.Bindings[0].Ref != "sea_surface" {
		t.Errorf("reference not rewritten: %+v", node.Bindings[0])
	}
	node, _ = g.Node("merged")
	if node.Bindings[1].Ref != "sea_surface" {
		t.Errorf("reference not rewritten: %+v", node.Bindings[1])
	}
	deps := g.Dependencies("merged")
	if len(deps) != 2 || deps[0] != "warm" || deps[1] != "sea_surface" {
		t.Errorf("adjacency not rewritten: %v", deps)
	}

	// Insertion order is preserved under rename.
	order := g.TopologicalOrder()
	want := []string{"sea_surface", "warm", "merged"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestRenameErrors(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddSource(t, g, "ice")

	if err := g.Rename("ghost", "x"); !IsKind(err, KindUnknownResource) {
		t.Errorf("expected unknown resource, got %v", err)
	}
	if err := g.Rename("sst", "ice"); !IsKind(err, KindDuplicateName) {
		t.Errorf("expected duplicate name, got %v", err)
	}
	if err := g.Rename("sst", "not a name"); !IsKind(err, KindInvalidName) {
		t.Errorf("expected invalid name, got %v", err)
	}
	if err := g.Rename("sst", "sst"); err != nil {
		t.Errorf("renaming to the same name should be a no-op, got %v", err)
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "a")
	mustAddStep(t, g, "b", "scale", RefTo("ds", "a"), Lit("factor", cty.NumberIntVal(1)))
	mustAddStep(t, g, "d", "scale", RefTo("ds", "b"), Lit("factor", cty.NumberIntVal(2)))
	mustAddStep(t, g, "e", "scale", RefTo("ds", "a"), Lit("factor", cty.NumberIntVal(3)))

	got := g.TransitiveDependents("b")
	if len(got) != 1 || got[0] != "d" {
		t.Errorf("expected [d], got %v", got)
	}

	got = g.TransitiveDependents("a")
	want := []string{"b", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "warm", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberFloatVal(1.1)))
	mustAddStep(t, g, "merged", "merge", RefTo("left", "warm"), RefTo("right", "sst"))

	snapshot := g.Snapshot()

	restored := New(testSigs())
	if err := restored.Restore(snapshot); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	sameNodes(t, snapshot, restored.Snapshot())

	orderA := g.TopologicalOrder()
	orderB := restored.TopologicalOrder()
	for i := range orderA {
		if orderA[i] != orderB[i] {
			t.Fatalf("topological order changed across restore: %v vs %v", orderA, orderB)
		}
	}
}

func TestRestoreForwardReference(t *testing.T) {
	g := New(testSigs())
	mustAddStep(t, g, "first", "constant", Lit("value", cty.NumberIntVal(1)))
	mustAddStep(t, g, "second", "constant", Lit("value", cty.NumberIntVal(2)))

	// Rebinding makes an earlier-inserted resource reference a later one.
	if err := g.Rebind("first", "scale", []Binding{RefTo("ds", "second"), Lit("factor", cty.NumberIntVal(2))}); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	restored := New(testSigs())
	if err := restored.Restore(g.Snapshot()); err != nil {
		t.Fatalf("Restore must handle forward references: %v", err)
	}
	deps := restored.Dependencies("first")
	if len(deps) != 1 || deps[0] != "second" {
		t.Errorf("expected dependencies [second], got %v", deps)
	}
}

func TestRestoreRejectsCycle(t *testing.T) {
	nodes := []Node{
		{Name: "a", Kind: KindStep, Op: "scale", Bindings: []Binding{
			RefTo("ds", "b"), Lit("factor", cty.NumberIntVal(1)),
		}},
		{Name: "b", Kind: KindStep, Op: "scale", Bindings: []Binding{
			RefTo("ds", "a"), Lit("factor", cty.NumberIntVal(1)),
		}},
	}

	g := New(testSigs())
	if err := g.Restore(nodes); !IsKind(err, KindCycle) {
		t.Errorf("expected cycle error, got %v", err)
	}
}

func TestClear(t *testing.T) {
	g := New(testSigs())
	mustAddSource(t, g, "sst")
	mustAddStep(t, g, "warm", "scale", RefTo("ds", "sst"), Lit("factor", cty.NumberIntVal(1)))

	g.Clear()
	if g.Len() != 0 {
		t.Errorf("expected empty graph, got %d", g.Len())
	}
	if len(g.TopologicalOrder()) != 0 {
		t.Error("expected empty order")
	}
	mustAddSource(t, g, "sst")
	if g.Len() != 1 {
		t.Error("graph must be usable after Clear")
	}
}
