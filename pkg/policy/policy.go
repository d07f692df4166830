package policy

import (
	"context"
	"strings"

	"github.com/daviddao/justact/pkg/fact"
)

// Policy is a collection of rules. Order carries no meaning and duplicates
// are harmless: derivation is monotone and idempotent.
type Policy []Rule

// Len returns the number of rules, duplicates included.
func (p Policy) Len() int { return len(p) }

// Concat returns a new policy with the rules of p followed by those of
// others. None of the inputs is modified.
func (p Policy) Concat(others ...Policy) Policy {
	n := len(p)
	for _, o := range others {
		n += len(o)
	}
	out := make(Policy, 0, n)
	out = append(out, p...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// Dedup returns p without repeated rules, keeping first occurrences.
// Extraction never calls this; it is offered to evaluators and renderers.
func (p Policy) Dedup() Policy {
	seen := make(map[string]struct{}, len(p))
	out := make(Policy, 0, len(p))
	for _, r := range p {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Equal reports element-wise equality in order.
func (p Policy) Equal(other Policy) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if !p[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// String renders one rule per line.
func (p Policy) String() string {
	lines := make([]string, len(p))
	for i, r := range p {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// Verdict is an evaluator's judgment on a policy.
type Verdict struct {
	Valid bool
	// Reasons holds the facts that made the policy invalid, if any.
	Reasons []fact.Atom
}

// Evaluator decides whether a policy is valid. The solver behind it is an
// external collaborator; pkg/datalog provides one based on Mangle.
type Evaluator interface {
	Evaluate(ctx context.Context, p Policy) (Verdict, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, p Policy) (Verdict, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, p Policy) (Verdict, error) { return f(ctx, p) }
