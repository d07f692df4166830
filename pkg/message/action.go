package message

import (
	"strings"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/policy"
)

// ActorPredicate names the fact asserted by ReflectActorship.
const ActorPredicate = "actor"

// Action is an act by Actor, based on Basis and justified further by Extra.
// Extra is chosen freely by the actor and means nothing on its own.
type Action struct {
	Actor Agent     `json:"actor" yaml:"actor"`
	Basis Message   `json:"basis" yaml:"basis"`
	Extra []Message `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Key returns a canonical structural key.
func (a Action) Key() string {
	var b strings.Builder
	b.WriteString(fact.Lit(string(a.Actor)).GoString())
	b.WriteByte('<')
	b.WriteString(a.Basis.Key())
	for _, m := range a.Extra {
		b.WriteByte('|')
		b.WriteString(m.Key())
	}
	b.WriteByte('>')
	return b.String()
}

// Equal reports structural equality, including the order of Extra.
func (a Action) Equal(other Action) bool {
	if a.Actor != other.Actor || !a.Basis.Equal(other.Basis) || len(a.Extra) != len(other.Extra) {
		return false
	}
	for i := range a.Extra {
		if !a.Extra[i].Equal(other.Extra[i]) {
			return false
		}
	}
	return true
}

// ReflectActorship returns the message recording that a.Actor performed the
// action: the unconditional fact actor(<actor>), authored by the actor.
func ReflectActorship(a Action) Message {
	head := fact.Pred(ActorPredicate, fact.L(string(a.Actor)))
	return New(a.Actor, policy.MustRule(head))
}

// Payload returns the justification of a, in this exact order: the basis,
// the reflected actorship, then the extra messages. Its length is always
// 2 + len(a.Extra).
func Payload(a Action) []Message {
	out := make([]Message, 0, 2+len(a.Extra))
	out = append(out, a.Basis, ReflectActorship(a))
	out = append(out, a.Extra...)
	return out
}
