// Package policy defines rules, their safety invariant, the says-rewriting
// that attributes a rule to its author, and Policy, the rule collection
// handed to an evaluator.
//
// A Rule can only be obtained through NewRule (or a decoder that calls it),
// so every Rule value is safe: each variable of its head occurs somewhere in
// its body. Transformations in this package preserve that property and do
// not re-check it.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/justact/pkg/fact"
)

// ErrUnsafe is matched by every *SafetyError.
var ErrUnsafe = errors.New("unsafe rule")

// SafetyError reports head variables that do not occur in the body.
type SafetyError struct {
	Head    fact.Atom
	Unbound []string // sorted
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("unsafe rule: head %s has variables not bound by the body: %s",
		Format(e.Head), strings.Join(e.Unbound, ", "))
}

// Is makes errors.Is(err, ErrUnsafe) hold.
func (e *SafetyError) Is(target error) bool { return target == ErrUnsafe }

// Rule is a safe Horn clause: head holds if every body atom holds.
// A rule with an empty body is an unconditional fact.
type Rule struct {
	head fact.Atom
	body []fact.Atom
}

// NewRule checks vars(head) ⊆ vars(body) and returns the rule, or a
// *SafetyError naming the unbound variables.
func NewRule(head fact.Atom, body ...fact.Atom) (Rule, error) {
	unbound := fact.Vars(head).Minus(fact.Vars(body...))
	if len(unbound) > 0 {
		return Rule{}, &SafetyError{Head: head, Unbound: unbound.Sorted()}
	}
	return newRule(head, body), nil
}

// MustRule is NewRule for rules known to be safe. It panics otherwise.
func MustRule(head fact.Atom, body ...fact.Atom) Rule {
	r, err := NewRule(head, body...)
	if err != nil {
		panic(err)
	}
	return r
}

// newRule builds a rule without the safety check. Callers must guarantee
// safety themselves.
func newRule(head fact.Atom, body []fact.Atom) Rule {
	var cp []fact.Atom
	if len(body) > 0 {
		cp = make([]fact.Atom, len(body))
		copy(cp, body)
	}
	return Rule{head: head, body: cp}
}

// Head returns the head atom.
func (r Rule) Head() fact.Atom { return r.head }

// Body returns a copy of the body atoms.
func (r Rule) Body() []fact.Atom {
	if len(r.body) == 0 {
		return nil
	}
	cp := make([]fact.Atom, len(r.body))
	copy(cp, r.body)
	return cp
}

// IsFact reports whether the rule has an empty body.
func (r Rule) IsFact() bool { return len(r.body) == 0 }

// Safe re-checks the safety invariant. It always holds for rules built by
// this package and exists for tests and external auditors.
func (r Rule) Safe() bool {
	return len(fact.Vars(r.head).Minus(fact.Vars(r.body...))) == 0
}

// Equal reports structural equality of head and body, in order.
func (r Rule) Equal(other Rule) bool {
	if !r.head.Equal(other.head) || len(r.body) != len(other.body) {
		return false
	}
	for i := range r.body {
		if !r.body[i].Equal(other.body[i]) {
			return false
		}
	}
	return true
}

// Key returns a canonical structural key for the rule.
func (r Rule) Key() string {
	var b strings.Builder
	b.WriteString(r.head.Key())
	b.WriteString(":-")
	for i, a := range r.body {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(a.Key())
	}
	return b.String()
}

// String renders the rule as "head :- b1, b2." or "head." for facts.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(Format(r.head))
	if len(r.body) > 0 {
		b.WriteString(" :- ")
		for i, a := range r.body {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Format(a))
		}
	}
	b.WriteByte('.')
	return b.String()
}
