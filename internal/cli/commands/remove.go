package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRemoveCommand creates the remove command.
func NewRemoveCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a resource from the workspace",
		Long: `Remove a resource. When other steps reference it the removal is rejected
unless --force is given, which removes the whole dependent closure and
reports every name it took with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runRemove(cc, cc.targetDir(nil), args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Also remove dependent resources")

	return cmd
}

func runRemove(cc *CommandContext, dir, name string, force bool) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	removed, err := w.Remove(name, force)
	if err != nil {
		return err
	}
	if err := cc.persist(w); err != nil {
		return err
	}

	r := cc.Renderer
	if len(removed) > 1 {
		var cascade []string
		for _, rn := range removed {
			if rn != name {
				cascade = append(cascade, rn)
			}
		}
		r.Success(fmt.Sprintf("removed %s and %d dependent(s): %s",
			name, len(cascade), strings.Join(cascade, ", ")))
		return nil
	}
	r.Success(fmt.Sprintf("removed %s", name))
	return nil
}

// NewRenameCommand creates the rename command.
func NewRenameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a resource, rewriting references to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runRename(cc, cc.targetDir(nil), args[0], args[1])
		},
	}
	return cmd
}

func runRename(cc *CommandContext, dir, old, newName string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	if err := w.Rename(old, newName); err != nil {
		return err
	}
	if err := cc.persist(w); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("renamed %s to %s", old, newName))
	return nil
}
