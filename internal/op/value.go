package op

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Coerce converts a literal to the parameter's declared type. This is the
// bind-time type check: failures here are reported before the graph changes.
func Coerce(v cty.Value, p Param) (cty.Value, error) {
	if p.Resource {
		return cty.NilVal, fmt.Errorf("parameter %q accepts resource references only", p.Name)
	}
	converted, err := convert.Convert(v, p.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("parameter %q: cannot convert %s to %s", p.Name, v.Type().FriendlyName(), p.Type.FriendlyName())
	}
	return converted, nil
}

// Native lowers a cty literal to the plain Go value handlers receive:
// string, float64, bool, []any, or map[string]any. Null lowers to nil.
func Native(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			n, err := Native(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case t.IsMapType() || t.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			n, err := Native(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
}

// ParseLiteral interprets a command-line token against a declared type.
// Numbers and booleans are parsed, lists split on commas, and strings pass
// through verbatim (quotes stripped when present).
func ParseLiteral(t cty.Type, token string) (cty.Value, error) {
	switch {
	case t == cty.String:
		return cty.StringVal(unquote(token)), nil
	case t == cty.Number:
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("not a number: %q", token)
		}
		return cty.NumberFloatVal(f), nil
	case t == cty.Bool:
		b, err := strconv.ParseBool(token)
		if err != nil {
			return cty.NilVal, fmt.Errorf("not a boolean: %q", token)
		}
		return cty.BoolVal(b), nil
	case t.IsListType():
		elemType := t.ElementType()
		if token == "" {
			return cty.ListValEmpty(elemType), nil
		}
		parts := strings.Split(token, ",")
		elems := make([]cty.Value, 0, len(parts))
		for _, part := range parts {
			ev, err := ParseLiteral(elemType, strings.TrimSpace(part))
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, ev)
		}
		return cty.ListVal(elems), nil
	}
	return cty.NilVal, fmt.Errorf("cannot parse literals of type %s", t.FriendlyName())
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
