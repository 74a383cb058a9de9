// Package stdops contributes the builtin scientific operators. Handlers
// treat their inputs as immutable, since upstream values may be cached and
// shared, and always return fresh datasets.
package stdops

import (
	"fmt"

	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

type module struct {
	name  string
	build func(r *op.Registry) error
}

func (m module) Register(r *op.Registry) error { return m.build(r) }

// Modules returns the builtin operator modules in registration order.
func Modules() []op.Module {
	return []op.Module{
		module{"harmonize", registerHarmonize},
		module{"subset", registerSubset},
		module{"stats", registerStats},
		module{"compute", registerCompute},
	}
}

// datasetArg fetches a resolved resource argument as a dataset.
func datasetArg(call op.Call, name string) (*dataset.Dataset, error) {
	v, ok := call.Args[name]
	if !ok {
		return nil, fmt.Errorf("operation %q: parameter %q is not bound", call.Op, name)
	}
	ds, ok := v.(*dataset.Dataset)
	if !ok {
		return nil, fmt.Errorf("operation %q: parameter %q: want dataset, got %T", call.Op, name, v)
	}
	return ds, nil
}

// pickVar resolves a variable name argument, defaulting to the dataset's
// sole variable when the name is empty.
func pickVar(ds *dataset.Dataset, name string) (*dataset.Variable, string, error) {
	if name == "" {
		if len(ds.Vars) != 1 {
			return nil, "", fmt.Errorf("dataset %q has %d variables, name one explicitly", ds.Name, len(ds.Vars))
		}
		for n, v := range ds.Vars {
			return v, n, nil
		}
	}
	v, ok := ds.Vars[name]
	if !ok {
		return nil, "", fmt.Errorf("dataset %q has no variable %q", ds.Name, name)
	}
	return v, name, nil
}
