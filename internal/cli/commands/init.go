package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var description string
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new workspace",
		Long: `Initialize a workspace in the given directory (default: current directory).

This creates the .tephra/ data directory holding the workspace file and
evaluation history. An existing workspace is left alone unless --force is
given, which resets it to an empty resource graph.`,
		Example: `  # Initialize in the current directory
  tephra init

  # Initialize a named scratch area with a description
  tephra init ./sst-study --description "sea surface temperature study"

  # Reset an existing workspace
  tephra init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runInit(cc, cc.targetDir(args), description, force)
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Free-text workspace description")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing workspace")

	return cmd
}

func runInit(cc *CommandContext, dir, description string, force bool) error {
	w, err := cc.Manager.Init(dir, description, force)
	if err != nil {
		return err
	}

	r := cc.Renderer
	r.Success(fmt.Sprintf("initialized workspace at %s", w.Base()))
	if description != "" {
		r.Muted(description)
	}
	return nil
}
