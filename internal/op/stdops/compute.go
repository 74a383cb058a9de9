package stdops

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

func registerCompute(r *op.Registry) error {
	return r.Register(&op.Operation{
		Signature: op.Signature{
			Name: "compute",
			Doc:  "Evaluate a Starlark expression over the dataset's variables.",
			Params: []op.Param{
				{Name: "ds", Resource: true, Doc: "dataset whose variables the expression sees"},
				{Name: "expr", Type: cty.String, Doc: "expression, e.g. \"sst * 1.8 + 32\""},
			},
			Outputs: []op.Output{{Name: "out", Type: cty.DynamicPseudoType, Doc: "dataset with a single 'result' variable"}},
		},
		Handler: compute,
	})
}

func compute(ctx context.Context, call op.Call) (any, error) {
	ds, err := datasetArg(call, "ds")
	if err != nil {
		return nil, err
	}
	expr, err := call.String("expr")
	if err != nil {
		return nil, err
	}

	env := starlark.StringDict{
		"mean": reduceBuiltin("mean", func(s dataset.Stats) float64 { return s.Mean }),
		"min":  reduceBuiltin("min", func(s dataset.Stats) float64 { return s.Min }),
		"max":  reduceBuiltin("max", func(s dataset.Stats) float64 { return s.Max }),
		"sum":  reduceBuiltin("sum", func(s dataset.Stats) float64 { return s.Mean * float64(s.Count) }),
		"abs":  starlark.NewBuiltin("abs", absBuiltin),
	}
	for name, v := range ds.Vars {
		env[name] = &gridVal{name: name, dims: v.Dims, values: v.Values}
	}

	thread := computeThreads.Get(call.Resource)
	defer computeThreads.Put(thread)

	value, err := starlark.Eval(thread, call.Resource, expr, env)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", expr, err)
	}
	return resultDataset(ds, value)
}

// resultDataset converts the expression value into a dataset: grids keep
// their axes, plain numbers become scalar datasets.
func resultDataset(src *dataset.Dataset, value starlark.Value) (*dataset.Dataset, error) {
	switch v := value.(type) {
	case *gridVal:
		out := dataset.New(src.Name)
		for _, dim := range v.dims {
			out.Coords[dim] = append([]float64(nil), src.Coords[dim]...)
		}
		out.Vars["result"] = &dataset.Variable{
			Dims:   append([]string(nil), v.dims...),
			Values: append([]float64(nil), v.values...),
		}
		if err := out.Validate(); err != nil {
			return nil, err
		}
		return out, nil
	case starlark.Float:
		return dataset.Scalar("result", float64(v)), nil
	case starlark.Int:
		f, _ := starlark.AsFloat(v)
		return dataset.Scalar("result", f), nil
	}
	return nil, fmt.Errorf("expression must produce a grid or a number, got %s", value.Type())
}

// threadPool recycles Starlark threads across compute invocations.
type threadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

var computeThreads = &threadPool{maxSize: 8}

func (p *threadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

func (p *threadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}

// gridVal exposes one variable's array to Starlark with elementwise
// arithmetic. Values are never mutated in place.
type gridVal struct {
	name   string
	dims   []string
	values []float64
}

var (
	_ starlark.Value     = (*gridVal)(nil)
	_ starlark.HasBinary = (*gridVal)(nil)
	_ starlark.HasUnary  = (*gridVal)(nil)
)

func (g *gridVal) String() string {
	return fmt.Sprintf("grid(%s, dims=%v, n=%d)", g.name, g.dims, len(g.values))
}

func (g *gridVal) Type() string          { return "grid" }
func (g *gridVal) Freeze()               {}
func (g *gridVal) Truth() starlark.Bool  { return starlark.Bool(len(g.values) > 0) }
func (g *gridVal) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: grid") }

func (g *gridVal) Unary(token syntax.Token) (starlark.Value, error) {
	switch token {
	case syntax.MINUS:
		return g.mapEach(func(v float64) float64 { return -v }), nil
	case syntax.PLUS:
		return g, nil
	}
	return nil, nil
}

func (g *gridVal) Binary(token syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	apply := func(fn func(a, b float64) float64) (starlark.Value, error) {
		switch other := y.(type) {
		case *gridVal:
			if !sameGrid(g, other) {
				return nil, fmt.Errorf("grid mismatch: %s vs %s", g, other)
			}
			a, b := g, other
			if side == starlark.Right {
				a, b = other, a
			}
			return a.zipEach(b, fn), nil
		case starlark.Float, starlark.Int:
			f, _ := starlark.AsFloat(other)
			if side == starlark.Left {
				return g.mapEach(func(v float64) float64 { return fn(v, f) }), nil
			}
			return g.mapEach(func(v float64) float64 { return fn(f, v) }), nil
		}
		return nil, nil
	}

	switch token {
	case syntax.PLUS:
		return apply(func(a, b float64) float64 { return a + b })
	case syntax.MINUS:
		return apply(func(a, b float64) float64 { return a - b })
	case syntax.STAR:
		return apply(func(a, b float64) float64 { return a * b })
	case syntax.SLASH:
		return apply(func(a, b float64) float64 {
			if b == 0 {
				return math.NaN()
			}
			return a / b
		})
	}
	return nil, nil
}

func (g *gridVal) mapEach(fn func(float64) float64) *gridVal {
	out := make([]float64, len(g.values))
	for i, v := range g.values {
		out[i] = fn(v)
	}
	return &gridVal{name: g.name, dims: g.dims, values: out}
}

func (g *gridVal) zipEach(other *gridVal, fn func(a, b float64) float64) *gridVal {
	out := make([]float64, len(g.values))
	for i := range g.values {
		out[i] = fn(g.values[i], other.values[i])
	}
	return &gridVal{name: g.name, dims: g.dims, values: out}
}

func sameGrid(a, b *gridVal) bool {
	if len(a.dims) != len(b.dims) || len(a.values) != len(b.values) {
		return false
	}
	for i := range a.dims {
		if a.dims[i] != b.dims[i] {
			return false
		}
	}
	return true
}

func reduceBuiltin(name string, pick func(dataset.Stats) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var val starlark.Value
		if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &val); err != nil {
			return nil, err
		}
		switch v := val.(type) {
		case *gridVal:
			stats := dataset.ValueStats(v.values)
			if stats.Count == 0 {
				return nil, fmt.Errorf("%s: grid %s has no finite values", name, v.name)
			}
			return starlark.Float(pick(stats)), nil
		case starlark.Float, starlark.Int:
			f, _ := starlark.AsFloat(v)
			return starlark.Float(pick(dataset.Stats{Count: 1, Min: f, Max: f, Mean: f})), nil
		}
		return nil, fmt.Errorf("%s: want grid or number, got %s", name, val.Type())
	})
}

func absBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var val starlark.Value
	if err := starlark.UnpackPositionalArgs("abs", args, kwargs, 1, &val); err != nil {
		return nil, err
	}
	switch v := val.(type) {
	case *gridVal:
		return v.mapEach(math.Abs), nil
	case starlark.Float, starlark.Int:
		f, _ := starlark.AsFloat(v)
		return starlark.Float(math.Abs(f)), nil
	}
	return nil, fmt.Errorf("abs: want grid or number, got %s", val.Type())
}
