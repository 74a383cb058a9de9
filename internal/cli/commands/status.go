package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [directory]",
		Short: "Show workspace metadata and resource counts",
		Long: `Show the workspace header: description, version, save state, timestamps,
and how many resources are cached versus pending recomputation.

Use list for the full resource table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runStatus(cc, cc.targetDir(args))
		},
	}
	return cmd
}

// workspaceStatus is the JSON output of the status command.
type workspaceStatus struct {
	Base        string    `json:"base"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	Version     uint64    `json:"version"`
	Modified    bool      `json:"modified"`
	Resources   int       `json:"resources"`
	Sources     int       `json:"sources"`
	Steps       int       `json:"steps"`
	Cached      int       `json:"cached"`
}

func buildStatus(w *workspace.Workspace) *workspaceStatus {
	st := &workspaceStatus{
		Base:        w.Base(),
		Description: w.Description(),
		Created:     w.Created(),
		Updated:     w.Updated(),
		Version:     w.Version(),
		Modified:    w.Modified(),
	}
	for _, n := range w.Resources() {
		st.Resources++
		if n.Kind == graph.KindSource {
			st.Sources++
		} else {
			st.Steps++
		}
		if w.Cached(n.Name) {
			st.Cached++
		}
	}
	return st
}

func runStatus(cc *CommandContext, dir string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	st := buildStatus(w)
	r := cc.Renderer

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(st)
	case output.ModeMarkdown:
		return renderStatusMarkdown(r, st)
	default:
		return renderStatusText(r, st)
	}
}

func renderStatusText(r *output.Renderer, st *workspaceStatus) error {
	styles := r.Styles()

	r.Println(styles.Header1.Render("Workspace " + st.Base))
	if st.Description != "" {
		r.Muted(st.Description)
	}
	r.Printf("   Version: %d (%s)\n", st.Version, saveState(st.Modified))
	r.Printf("   Created: %s | Updated: %s\n",
		st.Created.Format(time.RFC3339), st.Updated.Format(time.RFC3339))
	r.Printf("   Resources: %d (%d sources, %d steps) | Cached: %d\n",
		st.Resources, st.Sources, st.Steps, st.Cached)
	return nil
}

func renderStatusMarkdown(r *output.Renderer, st *workspaceStatus) error {
	r.Println(output.FormatHeader(1, "Workspace "+st.Base))
	r.Println("")
	if st.Description != "" {
		r.Println(output.FormatKeyValue("Description", st.Description))
	}
	r.Println(output.FormatKeyValue("Version", fmt.Sprintf("%d (%s)", st.Version, saveState(st.Modified))))
	r.Println(output.FormatKeyValue("Created", st.Created.Format(time.RFC3339)))
	r.Println(output.FormatKeyValue("Updated", st.Updated.Format(time.RFC3339)))
	r.Println(output.FormatKeyValue("Resources",
		fmt.Sprintf("%d (%d sources, %d steps)", st.Resources, st.Sources, st.Steps)))
	r.Println(output.FormatKeyValue("Cached", fmt.Sprintf("%d", st.Cached)))
	return nil
}

func saveState(modified bool) string {
	if modified {
		return "unsaved changes"
	}
	return "saved"
}
