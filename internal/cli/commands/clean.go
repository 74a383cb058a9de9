package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [directory]",
		Short: "Remove all resources, keeping the workspace",
		Long: `Reset the workspace to an empty resource graph. The workspace itself,
its description, and its history survive; only resources and cached
values are dropped. The cleaned state is persisted immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runClean(cc, cc.targetDir(args))
		},
	}
	return cmd
}

func runClean(cc *CommandContext, dir string) error {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return err
	}
	if err := cc.Manager.Clean(base); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("cleaned %s", base))
	return nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [directory]",
		Short: "Delete the workspace data directory",
		Long: `Delete the workspace state under .tephra/, including the workspace file
and evaluation history. User files in the directory itself are untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runDelete(cc, cc.targetDir(args))
		},
	}
	return cmd
}

func runDelete(cc *CommandContext, dir string) error {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return err
	}
	if err := cc.Manager.Delete(base); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("deleted workspace at %s", base))
	return nil
}
