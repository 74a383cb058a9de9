package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

func TestParseBindingsRefsAndLiterals(t *testing.T) {
	bindings, err := ParseBindings(testSigs(), "scale", []string{"ds=@sst", "factor=2"})
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}

	if !bindings[0].IsRef || bindings[0].Ref != "sst" || bindings[0].Param != "ds" {
		t.Errorf("expected ds=@sst reference, got %+v", bindings[0])
	}
	if bindings[1].IsRef {
		t.Fatalf("expected factor to be a literal, got reference %+v", bindings[1])
	}
	if !bindings[1].Value.RawEquals(cty.NumberFloatVal(2)) {
		t.Errorf("expected factor=2 as number, got %v", bindings[1].Value)
	}
}

func TestParseBindingsKeepsTokenOrder(t *testing.T) {
	bindings, err := ParseBindings(testSigs(), "merge", []string{"right=@b", "left=@a"})
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if bindings[0].Param != "right" || bindings[1].Param != "left" {
		t.Errorf("expected token order preserved, got %+v", bindings)
	}
}

func TestParseBindingsUnknownOperationPassesStrings(t *testing.T) {
	// Literals stay untyped strings; graph validation owns the unknown
	// operation error.
	bindings, err := ParseBindings(testSigs(), "mystery", []string{"x=1"})
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if !bindings[0].Value.RawEquals(cty.StringVal("1")) {
		t.Errorf("expected x to stay a string, got %v", bindings[0].Value)
	}
}

func TestParseBindingsUnknownParameterPassesString(t *testing.T) {
	bindings, err := ParseBindings(testSigs(), "scale", []string{"extra=hello"})
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if !bindings[0].Value.RawEquals(cty.StringVal("hello")) {
		t.Errorf("expected extra to stay a string, got %v", bindings[0].Value)
	}
}

func TestParseBindingsResourceParamWithoutRef(t *testing.T) {
	// A resource parameter given a bare literal parses as a string; the
	// graph rejects it with the authoritative type error.
	bindings, err := ParseBindings(testSigs(), "scale", []string{"ds=sst"})
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if bindings[0].IsRef {
		t.Fatalf("expected literal, got reference %+v", bindings[0])
	}
	if !bindings[0].Value.RawEquals(cty.StringVal("sst")) {
		t.Errorf("expected string literal, got %v", bindings[0].Value)
	}
}

func TestParseBindingsSyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		token  string
		reason string
	}{
		{"no equals", "scale", "nonsense", "want param=value"},
		{"empty param", "scale", "=x", "want param=value"},
		{"empty reference", "scale", "ds=@", "missing a resource name"},
		{"bad number", "scale", "factor=abc", "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBindings(testSigs(), tt.op, []string{tt.token})
			var se *BindingSyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected BindingSyntaxError, got %v", err)
			}
			if se.Token != tt.token {
				t.Errorf("expected token %q, got %q", tt.token, se.Token)
			}
			if !strings.Contains(se.Reason, tt.reason) {
				t.Errorf("expected reason containing %q, got %q", tt.reason, se.Reason)
			}
		})
	}
}

func TestParseBindingsNoTokens(t *testing.T) {
	bindings, err := ParseBindings(testSigs(), "constant", nil)
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if len(bindings) != 0 {
		t.Errorf("expected no bindings, got %+v", bindings)
	}
}
