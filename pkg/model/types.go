// Package model defines the records kept by the justact ledger.
//
// The ledger persists what the core packages keep in memory: messages and
// actions, each agent's view of the statements, and the current agreement
// set. Messages and actions are content-addressed: their ID is a UUIDv5
// over their canonical key, so stating the same message twice yields the
// same record.
//
// Every change to the ledger is also appended to an event log ordered by
// Lamport timestamps. The log is how statements reach other agents' views;
// it never decides which agreements apply.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/justact/pkg/message"
)

// Namespaces for content addressing. Fixed forever: changing them changes
// every stored ID.
var (
	MessageNamespace = uuid.MustParse("6f1c2a4e-8d0b-5e3a-9c71-2b4d6e8f0a13")
	ActionNamespace  = uuid.MustParse("0b7e9d21-4c6a-5f80-8e13-7a5c3b9d1f42")
)

// MessageID returns the content address of m.
func MessageID(m message.Message) uuid.UUID {
	return uuid.NewSHA1(MessageNamespace, []byte(m.Key()))
}

// ActionID returns the content address of a.
func ActionID(a message.Action) uuid.UUID {
	return uuid.NewSHA1(ActionNamespace, []byte(a.Key()))
}

// EventKind enumerates the types of events in the append-only log.
type EventKind string

const (
	EventStated  EventKind = "stated"
	EventEnacted EventKind = "enacted"
	EventAgreed  EventKind = "agreed"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventStated, EventEnacted, EventAgreed:
		return true
	}
	return false
}

// Agent represents a registered agent.
type Agent struct {
	ID         string    `json:"id"`
	Clock      int64     `json:"clock"`
	Registered time.Time `json:"registered_at"`
	LastSeen   time.Time `json:"last_seen_at"`
}

// Event is a single entry in the append-only event log. Ref is the ID of
// the message or action the event is about; agreed events carry no Ref.
// An empty Target addresses every agent.
type Event struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	LamportTS int64     `json:"lamport_ts"`
	Kind      EventKind `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Ref       uuid.UUID `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

// Broadcast reports whether the event addresses every agent.
func (e Event) Broadcast() bool { return e.Target == "" }

// StoredMessage is a message with its content address.
type StoredMessage struct {
	ID uuid.UUID `json:"id"`
	message.Message
}

// StoredAction is an action with its content address.
type StoredAction struct {
	ID uuid.UUID `json:"id"`
	message.Action
}

// View is one agent's persisted statements.
type View struct {
	Agent    string          `json:"agent"`
	Messages []StoredMessage `json:"messages"`
	Actions  []StoredAction  `json:"actions"`
}

// Stats summarizes the ledger.
type Stats struct {
	Agents     int64 `json:"agents"`
	Messages   int64 `json:"messages"`
	Actions    int64 `json:"actions"`
	Agreements int64 `json:"agreements"`
	Events     int64 `json:"events"`
}
