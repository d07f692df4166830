// Package message defines the claims agents exchange and how they turn into
// policy.
//
// A Message is a set of rules claimed by an author. An Action is taken by an
// actor on the basis of a message (normally an agreement) and carries extra
// messages the actor chose as justification. Extract is the one sanctioned
// path from messages to evaluable policy: every rule appears twice, once
// bare and once attributed to its author via says-rewriting.
package message

import (
	"sort"
	"strings"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/policy"
)

// Agent identifies an agent. The ontology attaches no structure to it.
type Agent string

// Message is an author's claim of a (possibly empty) set of rules.
// Messages are values and must not be modified once created.
type Message struct {
	Author  Agent         `json:"author" yaml:"author"`
	Content policy.Policy `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// New returns a message authored by author with the given rules.
func New(author Agent, rules ...policy.Rule) Message {
	var content policy.Policy
	if len(rules) > 0 {
		content = make(policy.Policy, len(rules))
		copy(content, rules)
	}
	return Message{Author: author, Content: content}
}

// Key returns a canonical structural key: equal messages share a key.
func (m Message) Key() string {
	var b strings.Builder
	b.WriteString(fact.Lit(string(m.Author)).GoString())
	b.WriteByte('{')
	for i, r := range m.Content {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(r.Key())
	}
	b.WriteByte('}')
	return b.String()
}

// Equal reports structural equality.
func (m Message) Equal(other Message) bool {
	return m.Author == other.Author && m.Content.Equal(other.Content)
}

// String renders the message as its author followed by its rules.
func (m Message) String() string {
	if len(m.Content) == 0 {
		return string(m.Author) + ": {}"
	}
	return string(m.Author) + ": {" + strings.ReplaceAll(m.Content.String(), "\n", " ") + "}"
}

// NewSet returns the messages deduplicated and ordered by key, which makes
// extraction over a set deterministic.
func NewSet(msgs ...Message) []Message {
	seen := make(map[string]Message, len(msgs))
	for _, m := range msgs {
		seen[m.Key()] = m
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Message, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// Contains reports whether msgs holds a message equal to m.
func Contains(msgs []Message, m Message) bool {
	k := m.Key()
	for _, x := range msgs {
		if x.Key() == k {
			return true
		}
	}
	return false
}
