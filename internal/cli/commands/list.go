package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspace resources",
		Long: `List every resource in insertion order with its definition, cache state,
and the resources it depends on.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runList(cc, cc.targetDir(nil))
		},
	}
	return cmd
}

// resourceInfo is one row of the list command's JSON output.
type resourceInfo struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Detail    string   `json:"detail"`
	DependsOn []string `json:"depends_on,omitempty"`
	Cached    bool     `json:"cached"`
}

func buildResourceList(w *workspace.Workspace) []resourceInfo {
	nodes := w.Resources()
	infos := make([]resourceInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, resourceInfo{
			Name:      n.Name,
			Kind:      string(n.Kind),
			Detail:    resourceLabel(n),
			DependsOn: w.Dependencies(n.Name),
			Cached:    w.Cached(n.Name),
		})
	}
	return infos
}

func runList(cc *CommandContext, dir string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	infos := buildResourceList(w)
	r := cc.Renderer

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	markdown := r.EffectiveMode() == output.ModeMarkdown
	r.Header(1, fmt.Sprintf("Resources (%d total)", len(infos)))
	if len(infos) == 0 {
		r.Muted("workspace is empty; add sources with the source command")
		return nil
	}
	if markdown {
		r.Println("")
	}

	cols := []string{"name", "kind", "definition", "state", "depends on"}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		state := "dirty"
		if info.Cached {
			state = "cached"
		}
		rows = append(rows, []string{
			info.Name,
			info.Kind,
			info.Detail,
			state,
			joinNames(info.DependsOn),
		})
	}
	renderRows(r.Writer(), markdown, cols, rows)
	return nil
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
