package sets

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/daviddao/justact/pkg/message"
)

// Transport delivers a ReplaceAgreements command to every participant.
// Delivery may be asynchronous, but all participants must eventually apply
// the same command.
type Transport interface {
	Deliver(ctx context.Context, cmd ReplaceAgreements) error
}

// Synchronizer is an in-process Transport. Each participant owns its own
// Agreements; Deliver applies the command to all of them.
type Synchronizer struct {
	mu           sync.RWMutex
	participants map[message.Agent]*Agreements
}

var _ Transport = (*Synchronizer)(nil)

// NewSynchronizer returns a synchronizer without participants.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{participants: make(map[message.Agent]*Agreements)}
}

// Join registers agent and returns its local agreements. Joining twice
// returns the same set. A late joiner starts empty and catches up on the
// next delivery.
func (s *Synchronizer) Join(agent message.Agent) *Agreements {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.participants[agent]; ok {
		return a
	}
	a := NewAgreements()
	s.participants[agent] = a
	return a
}

// Leave removes agent. Its Agreements stop receiving updates.
func (s *Synchronizer) Leave(agent message.Agent) {
	s.mu.Lock()
	delete(s.participants, agent)
	s.mu.Unlock()
}

// Participants returns the joined agents, sorted.
func (s *Synchronizer) Participants() []message.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Agent, 0, len(s.participants))
	for a := range s.participants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deliver applies cmd to every participant concurrently. It returns once
// all participants hold the new set, or with ctx's error if ctx is done
// first; participants not yet reached keep their previous set.
func (s *Synchronizer) Deliver(ctx context.Context, cmd ReplaceAgreements) error {
	s.mu.RLock()
	targets := make([]*Agreements, 0, len(s.participants))
	for _, a := range s.participants {
		targets = append(targets, a)
	}
	s.mu.RUnlock()

	// Build the set once; every participant installs the same value.
	set := newAgreed(cmd.Messages)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range targets {
		a := a // per-iteration copy (go directive < 1.22)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a.cur.Store(set)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("deliver agreements: %w", err)
	}
	return nil
}
