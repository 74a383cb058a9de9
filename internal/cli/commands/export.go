package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/pkg/dataset"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <name> <file>",
		Short: "Evaluate a resource and write it to a file",
		Long: `Evaluate the named resource and write the result to a file. The format
defaults to the file extension: .csv writes one row per cell, anything
else writes the dataset JSON document.`,
		Example: `  # Long-form CSV for spreadsheets
  tephra export window window.csv

  # Explicit format regardless of extension
  tephra export window window.out --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runExport(cmd.Context(), cc, cc.targetDir(nil), args[0], args[1], format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: csv or json (default: by extension)")

	return cmd
}

func runExport(ctx context.Context, cc *CommandContext, dir, name, file, format string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}

	v, err := w.Evaluate(ctx, name)
	if err != nil {
		return err
	}

	written, err := dataset.WriteFile(file, format, v)
	if err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}

	cc.Renderer.Success(fmt.Sprintf("wrote %s to %s (%s)", name, file, written))
	return nil
}
