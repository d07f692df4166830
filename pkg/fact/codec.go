package fact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Leaves are encoded as strings: "?X" is the variable X, anything else is a
// literal. A literal that starts with '?' or '\' is escaped with a leading
// '\'. Nodes are encoded as sequences of their children.

func (l Leaf) text() string {
	if l.Kind == KindVar {
		return "?" + l.Name
	}
	if strings.HasPrefix(l.Name, "?") || strings.HasPrefix(l.Name, `\`) {
		return `\` + l.Name
	}
	return l.Name
}

// ParseLeaf is the inverse of the leaf text encoding.
func ParseLeaf(s string) Leaf {
	switch {
	case strings.HasPrefix(s, `\`):
		return Lit(s[1:])
	case strings.HasPrefix(s, "?"):
		return Var(s[1:])
	default:
		return Lit(s)
	}
}

// MarshalJSON implements json.Marshaler.
func (l Leaf) MarshalJSON() ([]byte, error) { return json.Marshal(l.text()) }

// UnmarshalJSON implements json.Unmarshaler.
func (l *Leaf) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("leaf: %w", err)
	}
	*l = ParseLeaf(s)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l Leaf) MarshalYAML() (interface{}, error) { return l.text(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Leaf) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("leaf: line %d: expected scalar, got kind %d", n.Line, n.Kind)
	}
	*l = ParseLeaf(n.Value)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Tree[L]) MarshalJSON() ([]byte, error) {
	if t.isLeaf {
		return json.Marshal(t.leaf)
	}
	if t.children == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.children)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tree[L]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var children []Tree[L]
		if err := json.Unmarshal(trimmed, &children); err != nil {
			return err
		}
		*t = NewNode(children...)
		return nil
	}
	var l L
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return err
	}
	*t = NewLeaf(l)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Tree[L]) MarshalYAML() (interface{}, error) {
	if t.isLeaf {
		return t.leaf, nil
	}
	if t.children == nil {
		return []Tree[L]{}, nil
	}
	return t.children, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Tree[L]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		children := make([]Tree[L], len(n.Content))
		for i, c := range n.Content {
			if err := c.Decode(&children[i]); err != nil {
				return err
			}
		}
		*t = NewNode(children...)
		return nil
	}
	var l L
	if err := n.Decode(&l); err != nil {
		return err
	}
	*t = NewLeaf(l)
	return nil
}
