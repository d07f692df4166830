package policy

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/justact/pkg/fact"
)

// ruleDoc is the wire form of a rule:
//
//	head: [reads, Alice, "?D"]
//	body:
//	  - [authorises, Bob, Alice, "?T"]
type ruleDoc struct {
	Head fact.Atom   `json:"head" yaml:"head"`
	Body []fact.Atom `json:"body,omitempty" yaml:"body,omitempty"`
}

func (r Rule) doc() ruleDoc { return ruleDoc{Head: r.head, Body: r.body} }

func (d ruleDoc) rule() (Rule, error) {
	r, err := NewRule(d.Head, d.Body...)
	if err != nil {
		return Rule{}, fmt.Errorf("decode rule: %w", err)
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) { return json.Marshal(r.doc()) }

// UnmarshalJSON decodes a rule and enforces safety.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var d ruleDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	decoded, err := d.rule()
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Rule) MarshalYAML() (interface{}, error) { return r.doc(), nil }

// UnmarshalYAML decodes a rule and enforces safety.
func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	var d ruleDoc
	if err := n.Decode(&d); err != nil {
		return err
	}
	decoded, err := d.rule()
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*r = decoded
	return nil
}
