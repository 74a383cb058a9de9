package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSourceCommand creates the source command.
func NewSourceCommand() *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "source <name> <ref>",
		Short: "Add a catalog dataset as a source resource",
		Long: `Open a dataset from a catalog store and add it to the workspace under the
given name. The ref may carry an explicit store prefix (store:ref);
without one it resolves against the default local store.`,
		Example: `  # From the default local store
  tephra source sst sst-monthly-2020

  # From a mounted DuckDB store
  tephra source temps duckdb:air_temperature

  # Same, using the flag instead of a prefix
  tephra source temps air_temperature --store duckdb`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runSource(cmd.Context(), cc, cc.targetDir(nil), args[0], args[1], store)
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "Catalog store to resolve the ref against")

	return cmd
}

func runSource(ctx context.Context, cc *CommandContext, dir, name, ref, store string) error {
	if store != "" {
		ref = store + ":" + ref
	}

	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}

	prov, handle, err := cc.Catalog.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := w.AddSource(name, handle, prov); err != nil {
		return err
	}
	if err := cc.persist(w); err != nil {
		return err
	}

	r := cc.Renderer
	label := provLabel(prov)
	if prov.Title != "" {
		label += " (" + prov.Title + ")"
	}
	r.Success(fmt.Sprintf("added source %s from %s", name, label))
	return nil
}
