// parsebind.go - Textual binding syntax shared by the CLI and the HTTP API
package graph

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
)

// BindingSyntaxError reports a binding token that could not be parsed.
type BindingSyntaxError struct {
	Token  string
	Reason string
}

func (e *BindingSyntaxError) Error() string {
	return fmt.Sprintf("invalid binding %q: %s", e.Token, e.Reason)
}

// ParseBindings turns param=value and param=@resource tokens into bindings.
// Literal tokens are typed against the operation signature when the registry
// knows it; otherwise they pass through as strings so graph validation
// reports the authoritative error for the unknown operation or parameter.
func ParseBindings(ops SignatureSource, opName string, tokens []string) ([]Binding, error) {
	params := map[string]op.Param{}
	if sig, known := ops.Signature(opName); known {
		for _, p := range sig.Params {
			params[p.Name] = p
		}
	}

	bindings := make([]Binding, 0, len(tokens))
	for _, tok := range tokens {
		name, raw, found := strings.Cut(tok, "=")
		if !found || name == "" {
			return nil, &BindingSyntaxError{Token: tok, Reason: "want param=value or param=@resource"}
		}
		if strings.HasPrefix(raw, "@") {
			ref := strings.TrimPrefix(raw, "@")
			if ref == "" {
				return nil, &BindingSyntaxError{Token: tok, Reason: "reference is missing a resource name"}
			}
			bindings = append(bindings, RefTo(name, ref))
			continue
		}
		p, ok := params[name]
		if !ok || p.Resource {
			bindings = append(bindings, Lit(name, cty.StringVal(raw)))
			continue
		}
		v, err := op.ParseLiteral(p.Type, raw)
		if err != nil {
			return nil, &BindingSyntaxError{Token: tok, Reason: err.Error()}
		}
		bindings = append(bindings, Lit(name, v))
	}
	return bindings, nil
}
