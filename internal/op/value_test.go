package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name  string
		typ   cty.Type
		token string
		want  cty.Value
	}{
		{"string", cty.String, "mean_sst", cty.StringVal("mean_sst")},
		{"quoted string", cty.String, `"two words"`, cty.StringVal("two words")},
		{"number", cty.Number, "-12.5", cty.NumberFloatVal(-12.5)},
		{"bool", cty.Bool, "true", cty.True},
		{"number list", cty.List(cty.Number), "-30, 30", cty.ListVal([]cty.Value{cty.NumberFloatVal(-30), cty.NumberFloatVal(30)})},
		{"string list", cty.List(cty.String), "sst,ice", cty.ListVal([]cty.Value{cty.StringVal("sst"), cty.StringVal("ice")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLiteral(tt.typ, tt.token)
			require.NoError(t, err, "unexpected error")
			assert.True(t, tt.want.RawEquals(got), "want %#v, got %#v", tt.want, got)
		})
	}
}

func TestParseLiteral_Errors(t *testing.T) {
	_, err := ParseLiteral(cty.Number, "abc")
	assert.Error(t, err, "expected error for non-number")

	_, err = ParseLiteral(cty.Bool, "yep")
	assert.Error(t, err, "expected error for non-boolean")

	_, err = ParseLiteral(cty.List(cty.Number), "1,two,3")
	assert.Error(t, err, "expected error for bad list element")
}

func TestCoerce(t *testing.T) {
	p := Param{Name: "factor", Type: cty.Number}

	got, err := Coerce(cty.StringVal("2.5"), p)
	require.NoError(t, err, "string-to-number conversion should succeed")
	f, _ := got.AsBigFloat().Float64()
	assert.Equal(t, 2.5, f)

	_, err = Coerce(cty.StringVal("not a number"), p)
	assert.Error(t, err, "expected conversion failure")

	_, err = Coerce(cty.NumberIntVal(1), Param{Name: "ds", Resource: true})
	assert.Error(t, err, "resource parameters must reject literals")
}

func TestNative(t *testing.T) {
	v := cty.ObjectVal(map[string]cty.Value{
		"name":   cty.StringVal("sst"),
		"factor": cty.NumberFloatVal(1.5),
		"flags":  cty.ListVal([]cty.Value{cty.True, cty.False}),
	})

	got, err := Native(v)
	require.NoError(t, err, "unexpected error")

	m, ok := got.(map[string]any)
	require.True(t, ok, "expected map, got %T", got)
	assert.Equal(t, "sst", m["name"])
	assert.Equal(t, 1.5, m["factor"])
	assert.Equal(t, []any{true, false}, m["flags"])
}
