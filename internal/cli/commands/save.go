package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewSaveCommand creates the save command.
func NewSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [directory]",
		Short: "Persist the workspace to disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runSave(cc, cc.targetDir(args))
		},
	}
	return cmd
}

func runSave(cc *CommandContext, dir string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	if err := w.Save(); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("saved %s (version %d)", w.Base(), w.Version()))
	return nil
}

// NewCloseCommand creates the close command.
func NewCloseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close [directory]",
		Short: "Close the workspace without saving",
		Long: `Close the workspace and drop its in-memory state. Unsaved changes are
discarded with a warning; save first to keep them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runClose(cc, cc.targetDir(args))
		},
	}
	return cmd
}

func runClose(cc *CommandContext, dir string) error {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return err
	}
	discarded, err := cc.Manager.Close(base)
	if err != nil {
		return err
	}
	r := cc.Renderer
	if discarded {
		r.Warning(fmt.Sprintf("closed %s, unsaved changes discarded", base))
		return nil
	}
	r.Success(fmt.Sprintf("closed %s", base))
	return nil
}

// NewExitCommand creates the exit command.
func NewExitCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "exit",
		Short: "Close all open workspaces and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			_, err = runExit(cc, yes, nil)
			return err
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Discard unsaved changes without asking")
	return cmd
}

// runExit closes every open workspace. With unsaved changes it asks confirm
// (when given) unless yes is set; it reports whether the caller should
// actually terminate.
func runExit(cc *CommandContext, yes bool, confirm func(prompt string) bool) (bool, error) {
	var unsaved []string
	for _, base := range cc.Manager.List() {
		if w, err := cc.Manager.Get(base); err == nil && w.Modified() {
			unsaved = append(unsaved, base)
		}
	}

	if len(unsaved) > 0 && !yes && confirm != nil {
		prompt := fmt.Sprintf("Discard unsaved changes in %d workspace(s)? [y/N] ", len(unsaved))
		if !confirm(prompt) {
			cc.Renderer.Warning("not exiting; save your work or pass --yes to discard")
			return false, nil
		}
	}

	for _, base := range cc.Manager.CloseAll() {
		cc.Renderer.Warning(fmt.Sprintf("discarded unsaved changes in %s", base))
	}
	return true, nil
}
