package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewOpenCommand creates the open command.
func NewOpenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open [directory]",
		Short: "Open an existing workspace",
		Long: `Open the workspace in the given directory and load its resource graph.

One-shot commands open workspaces on demand, so open mostly matters inside
the shell, where it selects the workspace later verbs act on.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runOpen(cc, cc.targetDir(args))
		},
	}
	return cmd
}

func runOpen(cc *CommandContext, dir string) error {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return err
	}
	w, err := cc.Manager.Open(base)
	if err != nil {
		if !workspace.IsState(err, workspace.KindAlreadyOpen) {
			return err
		}
		w, err = cc.Manager.Get(base)
		if err != nil {
			return err
		}
	}

	r := cc.Renderer
	r.Success(fmt.Sprintf("opened %s (%d resources)", w.Base(), len(w.Resources())))
	if desc := w.Description(); desc != "" {
		r.Muted(desc)
	}
	return nil
}
