package policy

import "github.com/daviddao/justact/pkg/fact"

// Predicate names of the authorization vocabulary. Authorization claims are
// ordinary rules over these atoms; there is no dedicated authorization type.
const (
	AuthorisesPredicate = "authorises"
	ReadsPredicate      = "reads"
)

// Authorises builds authorises(checker, agent, task): the checker allows the
// agent to read the data associated with task. Data determines its task and
// is written at most once, so writes are not modeled separately.
func Authorises(checker, agent, task fact.Atom) fact.Atom {
	return fact.Pred(AuthorisesPredicate, checker, agent, task)
}

// Reads builds reads(agent, data, task).
func Reads(agent, data, task fact.Atom) fact.Atom {
	return fact.Pred(ReadsPredicate, agent, data, task)
}
