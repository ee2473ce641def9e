package rules

import (
	"bytes"
	"encoding/json"
	"strings"
)

type rawNode struct {
	Combinator string             `json:"combinator"`
	Not        bool               `json:"not"`
	Rules      *[]json.RawMessage `json:"rules"`
	Field      string             `json:"field"`
	Operator   string             `json:"operator"`
	Value      json.RawMessage    `json:"value"`
}

// Parse decodes a rule tree and validates it. An object carrying a "rules"
// key is a group; anything else is a condition.
func Parse(data []byte) (Node, error) {
	n, err := parseNode(data, "$", 0)
	if err != nil {
		return nil, err
	}
	if err := Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

func parseNode(data []byte, path string, depth int) (Node, error) {
	if depth > maxDepth {
		return nil, newError(path, ErrInvalidNode, "nesting deeper than %d", maxDepth)
	}
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newError(path, ErrInvalidNode, "%v", err)
	}

	if raw.Rules != nil {
		g := Group{
			Combinator: Combinator(strings.ToLower(strings.TrimSpace(raw.Combinator))),
			Not:        raw.Not,
			Rules:      make([]Node, 0, len(*raw.Rules)),
		}
		for i, child := range *raw.Rules {
			n, err := parseNode(child, childPath(path, i), depth+1)
			if err != nil {
				return nil, err
			}
			g.Rules = append(g.Rules, n)
		}
		return g, nil
	}

	c := Condition{
		Field:    Field(strings.TrimSpace(raw.Field)),
		Operator: Operator(strings.TrimSpace(raw.Operator)),
	}
	if len(raw.Value) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw.Value))
		dec.UseNumber()
		if err := dec.Decode(&c.Value); err != nil {
			return nil, newError(path, ErrInvalidValue, "%v", err)
		}
	}
	return c, nil
}
