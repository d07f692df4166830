package store

import (
	"github.com/google/uuid"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
)

// StoreInterface is the ledger as seen by the CLI. *Store implements it;
// tests may substitute their own.
type StoreInterface interface {
	Close() error

	// --- Agents ---

	RegisterAgent(id string) (*model.Agent, error)
	GetAgent(id string) (*model.Agent, error)
	UpdateAgentClock(id string, clk int64) error
	ListAgents() ([]model.Agent, error)

	// --- Messages and actions ---

	PutMessage(m message.Message) (uuid.UUID, error)
	GetMessage(id uuid.UUID) (*model.StoredMessage, error)
	GetAction(id uuid.UUID) (*model.StoredAction, error)

	// --- Statements ---

	State(view string, m message.Message) (uuid.UUID, bool, error)
	Enact(view string, a message.Action) (uuid.UUID, bool, error)
	LoadView(view string) (*model.View, error)
	Views() ([]string, error)

	// --- Agreements ---

	ReplaceAgreements(msgs []message.Message) ([]uuid.UUID, error)
	CurrentAgreements() ([]model.StoredMessage, error)

	// --- Cursors ---

	GetCursor(agentID string) int64
	SetCursor(agentID string, sinceID int64) error

	// --- Events ---

	InsertEvent(e *model.Event) (int64, error)
	ListEvents(sinceTS int64, limit int) ([]model.Event, error)
	ListEventsSinceID(sinceID int64, limit int) ([]model.Event, error)
	ListEventsForAgent(agentID string, sinceID int64, limit int) ([]model.Event, error)
	MaxEventID() int64
	CountEvents() int64

	Stats() (model.Stats, error)
}

var _ StoreInterface = (*Store)(nil)
