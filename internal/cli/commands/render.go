package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/graph"
)

// renderRows prints a header and rows as a styled terminal table or a
// markdown table depending on mode. Callers print row counts themselves
// where they matter.
func renderRows(w io.Writer, markdown bool, cols []string, rows [][]string) {
	if markdown {
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
		seps := make([]string, len(cols))
		for i := range seps {
			seps[i] = "---"
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(r, " | "))
		}
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		t.AppendRow(row)
	}
	t.Render()
}

// formatCtyValue renders a literal binding value in the same syntax the
// command line accepts it back.
func formatCtyValue(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString()
	case t == cty.Number:
		return v.AsBigFloat().Text('g', -1)
	case t == cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	case t.IsListType() || t.IsSetType() || t.IsTupleType():
		var parts []string
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			parts = append(parts, formatCtyValue(ev))
		}
		return strings.Join(parts, ",")
	}
	return v.GoString()
}

// formatBindings renders a step's bindings as param=value tokens, references
// with their @ prefix.
func formatBindings(bindings []graph.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if b.IsRef {
			parts = append(parts, fmt.Sprintf("%s=@%s", b.Param, b.Ref))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%s", b.Param, formatCtyValue(b.Value)))
		}
	}
	return strings.Join(parts, " ")
}

// provLabel renders a source's provenance as store:ref.
func provLabel(p graph.Provenance) string {
	if p.Store == "" {
		return p.Ref
	}
	return p.Store + ":" + p.Ref
}

// resourceLabel summarizes what a node computes: the operation call for
// steps, the catalog reference for sources.
func resourceLabel(n graph.Node) string {
	if n.Kind == graph.KindSource {
		return provLabel(n.Prov)
	}
	if args := formatBindings(n.Bindings); args != "" {
		return n.Op + " " + args
	}
	return n.Op
}
