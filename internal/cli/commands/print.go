package commands

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

// NewPrintCommand creates the print command.
func NewPrintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print <name>",
		Short: "Evaluate a resource and print its value",
		Long: `Evaluate the named resource, computing stale dependencies first, and
print the result. Cached values are reused; nothing recomputes unless a
mutation made it stale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runPrint(cmd.Context(), cc, cc.targetDir(nil), args[0])
		},
	}
	return cmd
}

func runPrint(ctx context.Context, cc *CommandContext, dir, name string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}

	r := cc.Renderer
	effectiveMode := r.EffectiveMode()

	var spinner *output.Spinner
	if effectiveMode == output.ModeText {
		spinner = r.NewSpinner("Evaluating " + name + "...")
		spinner.Start()
	}

	v, err := w.Evaluate(ctx, name)
	if err != nil {
		if spinner != nil {
			spinner.Fail("Evaluation failed")
		}
		return err
	}
	if spinner != nil {
		spinner.Success("Evaluated " + name)
	}

	if effectiveMode == output.ModeJSON {
		if ds, ok := v.(*dataset.Dataset); ok {
			return dataset.Encode(r.Writer(), ds)
		}
		return r.JSON(map[string]any{"value": v})
	}
	return printValue(r, effectiveMode == output.ModeMarkdown, v)
}

func printValue(r *output.Renderer, markdown bool, v any) error {
	ds, ok := v.(*dataset.Dataset)
	if !ok {
		r.Println(fmt.Sprintf("%v", v))
		return nil
	}
	if val, ok := ds.ScalarValue(); ok {
		r.Println(formatFloat(val))
		return nil
	}
	return printDataset(r, markdown, ds)
}

func printDataset(r *output.Renderer, markdown bool, ds *dataset.Dataset) error {
	title := ds.Name
	if title == "" {
		title = "dataset"
	}
	r.Header(1, title)

	if dims := ds.DimNames(); len(dims) > 0 {
		parts := make([]string, 0, len(dims))
		for _, d := range dims {
			parts = append(parts, fmt.Sprintf("%s: %d", d, len(ds.Coords[d])))
		}
		if markdown {
			r.Println("")
			r.Println(output.FormatKeyValue("Dimensions", strings.Join(parts, ", ")))
		} else {
			r.Printf("   Dimensions: %s\n", strings.Join(parts, ", "))
		}
	}
	for _, k := range sortedKeys(ds.Attrs) {
		if markdown {
			r.Println(output.FormatKeyValue(k, ds.Attrs[k]))
		} else {
			r.Printf("   %s: %s\n", k, ds.Attrs[k])
		}
	}

	cols := []string{"variable", "shape", "count", "min", "max", "mean"}
	rows := make([][]string, 0, len(ds.Vars))
	for _, vn := range ds.VarNames() {
		va := ds.Vars[vn]
		st := dataset.ValueStats(va.Values)
		rows = append(rows, []string{
			vn,
			shapeLabel(ds, va),
			strconv.Itoa(st.Count),
			formatFloat(st.Min),
			formatFloat(st.Max),
			formatFloat(st.Mean),
		})
	}
	r.Println("")
	renderRows(r.Writer(), markdown, cols, rows)
	return nil
}

func shapeLabel(ds *dataset.Dataset, v *dataset.Variable) string {
	if len(v.Dims) == 0 {
		return "scalar"
	}
	shape := ds.Shape(v)
	parts := make([]string, len(v.Dims))
	for i, d := range v.Dims {
		parts[i] = fmt.Sprintf("%s[%d]", d, shape[i])
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
