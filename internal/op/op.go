// Package op provides the operation registry consulted when workspace
// resources are bound to computation steps. Operations are contributed by
// collaborator modules at startup; the registry hands out signatures for
// binding validation and handlers for evaluation, and is read-only afterwards.
package op

import (
	"context"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Param describes one named parameter of an operation signature.
type Param struct {
	// Name is the keyword the parameter is bound by. Positional binding is
	// not supported anywhere in the system.
	Name string

	// Type is the declared value type for literal bindings. Ignored when
	// Resource is set.
	Type cty.Type

	// Resource marks a parameter that must be bound to another resource by
	// reference. Literal bindings against it are rejected.
	Resource bool

	// Default, when non-nil, makes the parameter optional. A nil Default
	// means the parameter must be bound before the step is accepted.
	Default *cty.Value

	// Doc is a one-line description shown by signature listings.
	Doc string
}

// Required reports whether the parameter must be bound explicitly.
func (p Param) Required() bool {
	return p.Default == nil && !p.Resource
}

// TypeLabel returns the human-readable type tag used in listings.
func (p Param) TypeLabel() string {
	if p.Resource {
		return "resource"
	}
	return p.Type.FriendlyName()
}

// Output describes a named, typed output of an operation. Output types are
// documentation for front-ends; they are not enforced at evaluation time.
type Output struct {
	Name string
	Type cty.Type
	Doc  string
}

// Signature is the callable contract of a registered operation.
type Signature struct {
	Name    string
	Doc     string
	Params  []Param
	Outputs []Output
}

// Param returns the named parameter, if declared.
func (s Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// String renders the signature in the form shown by the ops listing,
// e.g. "subset_spatial(ds resource, lat_min number, ...) -> dataset".
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.TypeLabel())
		if p.Default != nil {
			fmt.Fprintf(&b, "=%s", literalLabel(*p.Default))
		}
	}
	b.WriteByte(')')
	for i, out := range s.Outputs {
		if i == 0 {
			b.WriteString(" -> ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(out.Type.FriendlyName())
	}
	return b.String()
}

func literalLabel(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	switch v.Type() {
	case cty.String:
		return fmt.Sprintf("%q", v.AsString())
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return fmt.Sprintf("%g", f)
	}
	return v.Type().FriendlyName()
}

// Call carries the resolved arguments of a single operation invocation.
// Literal bindings arrive converted to native Go values, reference bindings
// as whatever value the referenced resource evaluated to.
type Call struct {
	// Op is the operation name, carried for error context.
	Op string

	// Resource is the name of the resource being computed.
	Resource string

	// Args maps parameter names to resolved values. Defaults for unbound
	// optional parameters are filled in before the handler runs.
	Args map[string]any
}

// Handler executes an operation. Handlers run outside the workspace lock and
// should honor ctx for long computations.
type Handler func(ctx context.Context, call Call) (any, error)

// Operation pairs a signature with its handler.
type Operation struct {
	Signature Signature
	Handler   Handler
}

// ArgError reports a handler-side argument problem: a value of the wrong
// dynamic type, or a missing argument the signature should have guaranteed.
type ArgError struct {
	Op     string
	Param  string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("operation %q: argument %q: %s", e.Op, e.Param, e.Reason)
}

func (c Call) argErr(param, reason string) error {
	return &ArgError{Op: c.Op, Param: param, Reason: reason}
}

// Float returns a numeric argument as float64.
func (c Call) Float(name string) (float64, error) {
	v, ok := c.Args[name]
	if !ok {
		return 0, c.argErr(name, "not bound")
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, c.argErr(name, fmt.Sprintf("want number, got %T", v))
}

// Int returns a numeric argument truncated to int.
func (c Call) Int(name string) (int, error) {
	f, err := c.Float(name)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// String returns a string argument.
func (c Call) String(name string) (string, error) {
	v, ok := c.Args[name]
	if !ok {
		return "", c.argErr(name, "not bound")
	}
	s, ok := v.(string)
	if !ok {
		return "", c.argErr(name, fmt.Sprintf("want string, got %T", v))
	}
	return s, nil
}

// Bool returns a boolean argument.
func (c Call) Bool(name string) (bool, error) {
	v, ok := c.Args[name]
	if !ok {
		return false, c.argErr(name, "not bound")
	}
	b, ok := v.(bool)
	if !ok {
		return false, c.argErr(name, fmt.Sprintf("want bool, got %T", v))
	}
	return b, nil
}

// Floats returns a list argument as a float64 slice.
func (c Call) Floats(name string) ([]float64, error) {
	v, ok := c.Args[name]
	if !ok {
		return nil, c.argErr(name, "not bound")
	}
	switch list := v.(type) {
	case []float64:
		return list, nil
	case []any:
		out := make([]float64, len(list))
		for i, item := range list {
			f, ok := item.(float64)
			if !ok {
				return nil, c.argErr(name, fmt.Sprintf("element %d: want number, got %T", i, item))
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, c.argErr(name, fmt.Sprintf("want list of number, got %T", v))
}

// Strings returns a list argument as a string slice.
func (c Call) Strings(name string) ([]string, error) {
	v, ok := c.Args[name]
	if !ok {
		return nil, c.argErr(name, "not bound")
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, c.argErr(name, fmt.Sprintf("element %d: want string, got %T", i, item))
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, c.argErr(name, fmt.Sprintf("want list of string, got %T", v))
}
