package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAddCommand creates the add command.
func NewAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> <operation> [param=value|param=@resource ...]",
		Short: "Add a step resource bound to an operation",
		Long: `Add a step resource computing the named operation. Bindings are keyword
only: param=value binds a literal against the declared parameter type,
param=@resource binds the output of another resource.

The new binding set is validated against the operation signature and the
resource graph before anything changes; a rejected add leaves the
workspace exactly as it was.`,
		Example: `  # Subset a source along the time axis
  tephra add window subset input=@sst dim=time lo=10 hi=80

  # Combine two resources
  tephra add blend compute expr="a * 0.5 + b * 0.5" a=@window b=@temps`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runAddStep(cc, cc.targetDir(nil), args[0], args[1], args[2:])
		},
	}
	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name> <operation> [param=value|param=@resource ...]",
		Short: "Add a step, or rebind it when the name exists",
		Long: `Set a step resource: add it when the name is new, replace the operation
and bindings when it already names a step. Rebinding an existing step
marks its dependents for recomputation.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runSetStep(cc, cc.targetDir(nil), args[0], args[1], args[2:])
		},
	}
	return cmd
}

func runAddStep(cc *CommandContext, dir, name, opName string, tokens []string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	bindings, err := parseBindings(cc.Ops, opName, tokens)
	if err != nil {
		return err
	}
	if err := w.AddStep(name, opName, bindings); err != nil {
		return err
	}
	if err := cc.persist(w); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("added step %s = %s", name, stepLabel(opName, tokens)))
	return nil
}

func runSetStep(cc *CommandContext, dir, name, opName string, tokens []string) error {
	w, err := cc.workspaceAt(dir)
	if err != nil {
		return err
	}
	bindings, err := parseBindings(cc.Ops, opName, tokens)
	if err != nil {
		return err
	}
	existed := false
	if _, ok := w.Resource(name); ok {
		existed = true
	}
	if err := w.SetStep(name, opName, bindings); err != nil {
		return err
	}
	if err := cc.persist(w); err != nil {
		return err
	}

	verb := "added"
	if existed {
		verb = "rebound"
	}
	cc.Renderer.Success(fmt.Sprintf("%s step %s = %s", verb, name, stepLabel(opName, tokens)))
	return nil
}

func stepLabel(opName string, tokens []string) string {
	if len(tokens) == 0 {
		return opName
	}
	label := opName
	for _, t := range tokens {
		label += " " + t
	}
	return label
}
