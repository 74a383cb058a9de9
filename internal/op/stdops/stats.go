package stdops

import (
	"context"
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

func registerStats(r *op.Registry) error {
	empty := cty.StringVal("")

	temporalMean := &op.Operation{
		Signature: op.Signature{
			Name: "temporal_mean",
			Doc:  "Average every variable over the time axis.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to average"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType}},
		},
		Handler: temporalMeanOp,
	}
	spatialMean := &op.Operation{
		Signature: op.Signature{
			Name: "spatial_mean",
			Doc:  "Average every variable over the lat and lon axes.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset to average"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType}},
		},
		Handler: spatialMeanOp,
	}
	correlation := &op.Operation{
		Signature: op.Signature{
			Name: "correlation",
			Doc:  "Pearson correlation between one variable of each input.",
			Params: []op.Param{
				{Name: "x", Resource: true, Doc: "first dataset"},
				{Name: "y", Resource: true, Doc: "second dataset"},
				{Name: "var_x", Type: cty.String, Default: &empty, Doc: "variable in x, defaults to its only one"},
				{Name: "var_y", Type: cty.String, Default: &empty, Doc: "variable in y, defaults to its only one"},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType, Doc: "scalar dataset"}},
		},
		Handler: correlationOp,
	}

	for _, operation := range []*op.Operation{temporalMean, spatialMean, correlation} {
		if err := r.Register(operation); err != nil {
			return err
		}
	}
	return nil
}

func temporalMeanOp(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	return ds.ReduceMean("time")
}

func spatialMeanOp(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	out, err := ds.ReduceMean("lat")
	if err != nil {
		return nil, err
	}
	return out.ReduceMean("lon")
}

func correlationOp(ctx context.Context, call op.Call) (any, error) {
	x, err := datasetArg(call, "x")
	if err != nil {
		return nil, err
	}
	y, err := datasetArg(call, "y")
	if err != nil {
		return nil, err
	}
	varX, err := call.String("var_x")
	if err != nil {
		return nil, err
	}
	varY, err := call.String("var_y")
	if err != nil {
		return nil, err
	}

	vx, nameX, err := pickVar(x, varX)
	if err != nil {
		return nil, err
	}
	vy, nameY, err := pickVar(y, varY)
	if err != nil {
		return nil, err
	}
	if len(vx.Values) != len(vy.Values) {
		return nil, fmt.Errorf("variables %q and %q differ in length: %d vs %d",
			nameX, nameY, len(vx.Values), len(vy.Values))
	}

	r, err := pearson(vx.Values, vy.Values)
	if err != nil {
		return nil, err
	}
	return dataset.Scalar("correlation", r), nil
}

// pearson computes the correlation over pairs where both sides are finite.
func pearson(xs, ys []float64) (float64, error) {
	var n int
	var sumX, sumY float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		sumX += xs[i]
		sumY += ys[i]
		n++
	}
	if n < 2 {
		return 0, fmt.Errorf("correlation needs at least 2 paired values, have %d", n)
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, fmt.Errorf("correlation is undefined for constant input")
	}
	return cov / math.Sqrt(varX*varY), nil
}
