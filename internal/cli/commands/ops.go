package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/op"
)

// NewOpsCommand creates the ops command.
func NewOpsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops [name]",
		Short: "List registered operations",
		Long: `List every registered operation with its signature. With a name, show
that operation's parameters, defaults, and outputs in detail.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if len(args) == 1 {
				return runOpDetail(cc, args[0])
			}
			return runOps(cc)
		},
	}
	return cmd
}

// opParamInfo is one parameter row of the ops command's JSON output.
type opParamInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
	Doc      string `json:"doc,omitempty"`
}

type opInfo struct {
	Name      string        `json:"name"`
	Signature string        `json:"signature"`
	Doc       string        `json:"doc,omitempty"`
	Params    []opParamInfo `json:"params,omitempty"`
}

func buildOpInfo(sig op.Signature) opInfo {
	info := opInfo{
		Name:      sig.Name,
		Signature: sig.String(),
		Doc:       sig.Doc,
	}
	for _, p := range sig.Params {
		pi := opParamInfo{
			Name:     p.Name,
			Type:     p.TypeLabel(),
			Required: p.Required(),
			Doc:      p.Doc,
		}
		if p.Default != nil {
			pi.Default = formatCtyValue(*p.Default)
		}
		info.Params = append(info.Params, pi)
	}
	return info
}

func runOps(cc *CommandContext) error {
	sigs := cc.Ops.List()
	r := cc.Renderer

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]opInfo, 0, len(sigs))
		for _, sig := range sigs {
			infos = append(infos, buildOpInfo(sig))
		}
		return r.JSON(infos)
	}

	markdown := r.EffectiveMode() == output.ModeMarkdown
	r.Header(1, fmt.Sprintf("Operations (%d total)", len(sigs)))
	if markdown {
		r.Println("")
	}
	for _, sig := range sigs {
		if markdown {
			r.Println("- `" + sig.String() + "`")
			if sig.Doc != "" {
				r.Println("  " + firstLine(sig.Doc))
			}
			continue
		}
		r.Println("  " + sig.String())
		if sig.Doc != "" {
			r.Muted("    " + firstLine(sig.Doc))
		}
	}
	return nil
}

func runOpDetail(cc *CommandContext, name string) error {
	sig, ok := cc.Ops.Signature(name)
	if !ok {
		return &graph.Error{Kind: graph.KindUnknownOperation, Op: name}
	}
	info := buildOpInfo(sig)
	r := cc.Renderer

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(info)
	}

	markdown := r.EffectiveMode() == output.ModeMarkdown
	r.Header(1, info.Name)
	if markdown {
		r.Println("")
		r.Println("`" + info.Signature + "`")
	} else {
		r.Println("  " + info.Signature)
	}
	if info.Doc != "" {
		r.Println("")
		r.Println(info.Doc)
	}
	if len(info.Params) > 0 {
		r.Println("")
		cols := []string{"param", "type", "required", "default", "doc"}
		rows := make([][]string, 0, len(info.Params))
		for _, p := range info.Params {
			req := ""
			if p.Required {
				req = "yes"
			}
			def := p.Default
			if def == "" {
				def = "-"
			}
			rows = append(rows, []string{p.Name, p.Type, req, def, p.Doc})
		}
		renderRows(r.Writer(), markdown, cols, rows)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
