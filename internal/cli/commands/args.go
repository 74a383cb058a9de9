package commands

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/op"
)

// parseBindings turns param=value and param=@resource tokens into graph
// bindings, typing literals against the operation signature.
func parseBindings(ops *op.Registry, opName string, tokens []string) ([]graph.Binding, error) {
	return graph.ParseBindings(ops, opName, tokens)
}

// popFlag removes --name from tokens, reporting whether it was present.
func popFlag(tokens []string, name string) ([]string, bool) {
	flag := "--" + name
	out := tokens[:0:0]
	found := false
	for _, t := range tokens {
		if t == flag {
			found = true
			continue
		}
		out = append(out, t)
	}
	return out, found
}

// popFlagValue removes --name <value> or --name=<value> from tokens and
// returns the value.
func popFlagValue(tokens []string, name string) ([]string, string, error) {
	flag := "--" + name
	out := tokens[:0:0]
	value := ""
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t == flag {
			if i+1 >= len(tokens) {
				return nil, "", fmt.Errorf("%s needs a value", flag)
			}
			value = tokens[i+1]
			i++
			continue
		}
		if v, ok := strings.CutPrefix(t, flag+"="); ok {
			value = v
			continue
		}
		out = append(out, t)
	}
	return out, value, nil
}

// splitLine tokenizes a shell input line, honoring single and double quotes.
// Quotes may open mid-token, so expr="a + b" stays one field.
func splitLine(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		quote   rune
		pending bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			pending = true
		case unicode.IsSpace(r):
			if cur.Len() > 0 || pending {
				fields = append(fields, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if cur.Len() > 0 || pending {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
