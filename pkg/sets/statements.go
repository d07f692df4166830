// Package sets holds the two collections agents reason over: Statements,
// which every agent keeps for itself, and Agreements, which all agents share.
//
// Statements are partitioned into views. A view is private to its owner and
// grows monotonically; nothing here synchronizes views with each other.
// Agreements are replaced wholesale, never edited, so a reader always sees
// one complete set.
package sets

import (
	"sort"
	"sync"

	"github.com/daviddao/justact/pkg/message"
)

// ViewID names an agent-local view of the statements, normally the id of the
// agent that owns it.
type ViewID string

// Snapshot is a consistent copy of one view.
type Snapshot struct {
	Messages []message.Message
	Actions  []message.Action
}

// Contains reports whether the snapshot holds a message equal to m.
func (s Snapshot) Contains(m message.Message) bool {
	return message.Contains(s.Messages, m)
}

type view struct {
	mu   sync.RWMutex
	msgs map[string]message.Message
	acts map[string]message.Action
}

func newView() *view {
	return &view{
		msgs: make(map[string]message.Message),
		acts: make(map[string]message.Action),
	}
}

// Statements is the set of stated messages and enacted actions, one
// independent view per agent. Each view has its own lock, so work on one
// view never blocks or alters another.
type Statements struct {
	mu    sync.RWMutex
	views map[ViewID]*view
}

// NewStatements returns an empty Statements.
func NewStatements() *Statements {
	return &Statements{views: make(map[ViewID]*view)}
}

func (s *Statements) get(id ViewID, create bool) *view {
	s.mu.RLock()
	v := s.views[id]
	s.mu.RUnlock()
	if v != nil || !create {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v = s.views[id]; v == nil {
		v = newView()
		s.views[id] = v
	}
	return v
}

// State adds m to the view. It reports whether m was new; stating the same
// message twice has no further effect.
func (s *Statements) State(id ViewID, m message.Message) bool {
	v := s.get(id, true)
	k := m.Key()
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.msgs[k]; ok {
		return false
	}
	v.msgs[k] = m
	return true
}

// Enact records a in the view. It reports whether a was new.
func (s *Statements) Enact(id ViewID, a message.Action) bool {
	v := s.get(id, true)
	k := a.Key()
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.acts[k]; ok {
		return false
	}
	v.acts[k] = a
	return true
}

// Stated reports whether the view holds m.
func (s *Statements) Stated(id ViewID, m message.Message) bool {
	v := s.get(id, false)
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.msgs[m.Key()]
	return ok
}

// View returns a snapshot of the view, ordered by key. An unknown view is
// empty.
func (s *Statements) View(id ViewID) Snapshot {
	v := s.get(id, false)
	if v == nil {
		return Snapshot{}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	snap := Snapshot{
		Messages: make([]message.Message, 0, len(v.msgs)),
		Actions:  make([]message.Action, 0, len(v.acts)),
	}
	for _, k := range sortedKeys(v.msgs) {
		snap.Messages = append(snap.Messages, v.msgs[k])
	}
	for _, k := range sortedKeys(v.acts) {
		snap.Actions = append(snap.Actions, v.acts[k])
	}
	return snap
}

// Views returns the ids of all views that have been written to, sorted.
func (s *Statements) Views() []ViewID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ViewID, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
