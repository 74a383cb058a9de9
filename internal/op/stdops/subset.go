package stdops

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

func registerSubset(r *op.Registry) error {
	spatial := &op.Operation{
		Signature: op.Signature{
			Name: "subset_spatial",
			Doc:  "Select the grid cells inside a lat/lon bounding box.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to subset"},
				{Name: "lat_min", Type: cty.Number, Doc: "southern bound, degrees"},
				{Name: "lat_max", Type: cty.Number, Doc: "northern bound, degrees"},
				{Name: "lon_min", Type: cty.Number, Doc: "western bound, degrees"},
				{Name: "lon_max", Type: cty.Number, Doc: "eastern bound, degrees"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType}},
		},
		Handler: subsetSpatial,
	}
	temporal := &op.Operation{
		Signature: op.Signature{
			Name: "subset_temporal",
			Doc:  "Select the time steps inside [start, end].",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to subset"},
				{Name: "start", Type: cty.String, Doc: "inclusive start, RFC 3339 or YYYY-MM-DD"},
				{Name: "end", Type: cty.String, Doc: "inclusive end, RFC 3339 or YYYY-MM-DD"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType}},
		},
		Handler: subsetTemporal,
	}
	sel := &op.Operation{
		Signature: op.Signature{
			Name: "select_var",
			Doc:  "Keep only the named variables.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to project"},
				{Name: "names", Type: cty.List(cty.String), Doc: "variable names to keep"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType}},
		},
		Handler: selectVar,
	}

	for _, operation := range []*op.Operation{spatial, temporal, sel} {
		if err := r.Register(operation); err != nil {
			return err
		}
	}
	return nil
}

func subsetSpatial(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	latMin, err := call.Float("lat_min")
	if err != nil {
		return nil, err
	}
	latMax, err := call.Float("lat_max")
	if err != nil {
		return nil, err
	}
	lonMin, err := call.Float("lon_min")
	if err != nil {
		return nil, err
	}
	lonMax, err := call.Float("lon_max")
	if err != nil {
		return nil, err
	}
	if latMin > latMax || lonMin > lonMax {
		return nil, fmt.Errorf("empty bounding box: lat [%g, %g], lon [%g, %g]", latMin, latMax, lonMin, lonMax)
	}

	out, err := ds.SelectRange("lat", latMin, latMax)
	if err != nil {
		return nil, err
	}
	return out.SelectRange("lon", lonMin, lonMax)
}

func subsetTemporal(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	startStr, err := call.String("start")
	if err != nil {
		return nil, err
	}
	endStr, err := call.String("end")
	if err != nil {
		return nil, err
	}

	start, err := dataset.ParseTime(startStr)
	if err != nil {
		return nil, err
	}
	end, err := dataset.ParseTime(endStr)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("empty time range: %s is before %s", endStr, startStr)
	}
	return ds.SelectRange("time", dataset.DaysSinceEpoch(start), dataset.DaysSinceEpoch(end))
}

func selectVar(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	names, err := call.Strings("names")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("select_var needs at least one variable name")
	}

	out := ds.Copy()
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := ds.Vars[name]; !ok {
			return nil, fmt.Errorf("dataset %q has no variable %q", ds.Name, name)
		}
		keep[name] = struct{}{}
	}
	for name := range out.Vars {
		if _, ok := keep[name]; !ok {
			delete(out.Vars, name)
		}
	}
	return out, nil
}
