package stdops

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
)

// Coordinate names found in the wild, mapped back to the canonical axes the
// other operators expect.
var dimAliases = map[string][]string{
	"lat":  {"latitude"},
	"lon":  {"longitude", "long"},
	"time": {"t", "date"},
}

func registerHarmonize(r *op.Registry) error {
	return r.Register(&op.Operation{
		Signature: op.Signature{
			Name: "harmonize",
			Doc:  "Rename coordinate axes to the canonical lat/lon/time names.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to harmonize"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType, Doc: "harmonized dataset"}},
		},
		Handler: harmonize,
	})
}

func harmonize(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}

	out := ds.Copy()
	for canonical, aliases := range dimAliases {
		if _, ok := out.Coords[canonical]; ok {
			continue
		}
		for _, alias := range aliases {
			if _, ok := out.Coords[alias]; ok {
				out.RenameDim(alias, canonical)
				break
			}
		}
	}
	return out, nil
}
