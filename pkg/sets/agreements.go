package sets

import (
	"sync/atomic"

	"github.com/daviddao/justact/pkg/message"
)

// ReplaceAgreements is the only command that changes the agreements: its
// messages become the entire agreed set.
type ReplaceAgreements struct {
	Messages []message.Message `json:"messages" yaml:"messages"`
}

// agreed is an immutable agreement set. A new one is built for every
// replacement and published with a single pointer swap.
type agreed struct {
	msgs []message.Message
	keys map[string]struct{}
}

func newAgreed(msgs []message.Message) *agreed {
	set := message.NewSet(msgs...)
	keys := make(map[string]struct{}, len(set))
	for _, m := range set {
		keys[m.Key()] = struct{}{}
	}
	return &agreed{msgs: set, keys: keys}
}

// Agreements is the shared set of agreed messages. Its content only changes
// through Replace; readers observe either the old or the new set, never a
// mix of the two.
type Agreements struct {
	cur atomic.Pointer[agreed]
}

// NewAgreements returns empty agreements.
func NewAgreements() *Agreements {
	a := &Agreements{}
	a.cur.Store(newAgreed(nil))
	return a
}

func (a *Agreements) load() *agreed {
	if p := a.cur.Load(); p != nil {
		return p
	}
	return newAgreed(nil)
}

// Replace installs msgs, deduplicated, as the whole agreement set.
func (a *Agreements) Replace(msgs ...message.Message) {
	a.cur.Store(newAgreed(msgs))
}

// Apply executes cmd.
func (a *Agreements) Apply(cmd ReplaceAgreements) {
	a.Replace(cmd.Messages...)
}

// Current returns the agreed messages ordered by key.
func (a *Agreements) Current() []message.Message {
	p := a.load()
	out := make([]message.Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}

// Contains reports whether m is currently agreed.
func (a *Agreements) Contains(m message.Message) bool {
	_, ok := a.load().keys[m.Key()]
	return ok
}

// Len returns the number of agreed messages.
func (a *Agreements) Len() int { return len(a.load().msgs) }
