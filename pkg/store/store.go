// Package store persists the justact ledger in SQLite.
//
// One database in WAL mode is shared by every agent on a machine. It holds
// the content-addressed messages and actions, each agent's view of the
// statements, the current agreement set, and an append-only event log
// through which statements reach other agents.
//
// The agreement set is only ever replaced as a whole, inside a single
// transaction, so a reader sees either the old set or the new one.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a message, action or agent does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite ledger.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (or creates) the database at path and migrates the schema.
// A nil logger disables logging.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, log: logger.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) retryOnContention(op string, fn func() error) error {
	return retryOp(defaultRetryConfig, func(attempt int, err error) {
		s.log.Debug("retrying after contention", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}, fn)
}

// withTx runs fn in a transaction, retrying the whole transaction on
// contention.
func (s *Store) withTx(op string, fn func(tx *sql.Tx) error) error {
	return s.retryOnContention(op, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id         TEXT PRIMARY KEY,
		clock      INTEGER NOT NULL DEFAULT 0,
		registered TEXT NOT NULL,
		last_seen  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id   TEXT NOT NULL REFERENCES agents(id),
		lamport_ts INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		ref        TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_lamport ON events(lamport_ts);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target, kind);

	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		author     TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author);

	CREATE TABLE IF NOT EXISTS actions (
		id         TEXT PRIMARY KEY,
		actor      TEXT NOT NULL,
		basis      TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS view_messages (
		view       TEXT NOT NULL,
		message_id TEXT NOT NULL REFERENCES messages(id),
		stated_at  TEXT NOT NULL,
		PRIMARY KEY (view, message_id)
	);

	CREATE TABLE IF NOT EXISTS view_actions (
		view       TEXT NOT NULL,
		action_id  TEXT NOT NULL REFERENCES actions(id),
		enacted_at TEXT NOT NULL,
		PRIMARY KEY (view, action_id)
	);

	CREATE TABLE IF NOT EXISTS agreements (
		message_id TEXT PRIMARY KEY REFERENCES messages(id),
		position   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cursors (
		agent_id   TEXT PRIMARY KEY REFERENCES agents(id),
		since_id   INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

// RegisterAgent creates an agent or refreshes its last-seen time.
func (s *Store) RegisterAgent(id string) (*model.Agent, error) {
	ts := now()
	err := s.retryOnContention("register agent", func() error {
		_, err := s.db.Exec(
			`INSERT INTO agents (id, clock, registered, last_seen)
			 VALUES (?, 0, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
			id, ts, ts,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetAgent(id)
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(id string) (*model.Agent, error) {
	row := s.db.QueryRow(`SELECT id, clock, registered, last_seen FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %q: %w", id, ErrNotFound)
	}
	return a, err
}

// UpdateAgentClock persists the agent's Lamport clock.
func (s *Store) UpdateAgentClock(id string, clk int64) error {
	return s.retryOnContention("update clock", func() error {
		_, err := s.db.Exec(`UPDATE agents SET clock = ?, last_seen = ? WHERE id = ?`, clk, now(), id)
		return err
	})
}

// ListAgents returns all registered agents ordered by ID.
func (s *Store) ListAgents() ([]model.Agent, error) {
	rows, err := s.db.Query(`SELECT id, clock, registered, last_seen FROM agents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*model.Agent, error) {
	var a model.Agent
	var regStr, lsStr string
	if err := row.Scan(&a.ID, &a.Clock, &regStr, &lsStr); err != nil {
		return nil, err
	}
	var err error
	if a.Registered, err = time.Parse(time.RFC3339Nano, regStr); err != nil {
		return nil, fmt.Errorf("parse registered time for agent %s: %w", a.ID, err)
	}
	if a.LastSeen, err = time.Parse(time.RFC3339Nano, lsStr); err != nil {
		return nil, fmt.Errorf("parse last_seen time for agent %s: %w", a.ID, err)
	}
	return &a, nil
}

// ---------------------------------------------------------------------------
// Messages and actions
// ---------------------------------------------------------------------------

func putMessage(tx *sql.Tx, m message.Message) (uuid.UUID, error) {
	id := model.MessageID(m)
	body, err := json.Marshal(m)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode message: %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO messages (id, author, body, created_at) VALUES (?, ?, ?, ?)`,
		id.String(), string(m.Author), string(body), now(),
	)
	return id, err
}

func putAction(tx *sql.Tx, a message.Action) (uuid.UUID, error) {
	id := model.ActionID(a)
	body, err := json.Marshal(a)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode action: %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO actions (id, actor, basis, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), string(a.Actor), model.MessageID(a.Basis).String(), string(body), now(),
	)
	return id, err
}

// PutMessage stores m and returns its ID. Storing a message twice is a
// no-op.
func (s *Store) PutMessage(m message.Message) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.withTx("put message", func(tx *sql.Tx) error {
		var err error
		id, err = putMessage(tx, m)
		return err
	})
	return id, err
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(id uuid.UUID) (*model.StoredMessage, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM messages WHERE id = ?`, id.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeMessage(id.String(), body)
}

// GetAction retrieves an action by ID.
func (s *Store) GetAction(id uuid.UUID) (*model.StoredAction, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM actions WHERE id = ?`, id.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeAction(id.String(), body)
}

func decodeMessage(idStr, body string) (*model.StoredMessage, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse message id %q: %w", idStr, err)
	}
	sm := &model.StoredMessage{ID: id}
	if err := json.Unmarshal([]byte(body), &sm.Message); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return sm, nil
}

func decodeAction(idStr, body string) (*model.StoredAction, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse action id %q: %w", idStr, err)
	}
	sa := &model.StoredAction{ID: id}
	if err := json.Unmarshal([]byte(body), &sa.Action); err != nil {
		return nil, fmt.Errorf("decode action %s: %w", id, err)
	}
	return sa, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// State adds m to view. added is false when the view already held m.
func (s *Store) State(view string, m message.Message) (id uuid.UUID, added bool, err error) {
	err = s.withTx("state", func(tx *sql.Tx) error {
		if id, err = putMessage(tx, m); err != nil {
			return err
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO view_messages (view, message_id, stated_at) VALUES (?, ?, ?)`,
			view, id.String(), now(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		added = n > 0
		return err
	})
	if err == nil {
		s.log.Debug("stated", zap.String("view", view), zap.Stringer("message", id), zap.Bool("added", added))
	}
	return id, added, err
}

// Enact records a in view. added is false when the view already held a.
func (s *Store) Enact(view string, a message.Action) (id uuid.UUID, added bool, err error) {
	err = s.withTx("enact", func(tx *sql.Tx) error {
		if id, err = putAction(tx, a); err != nil {
			return err
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO view_actions (view, action_id, enacted_at) VALUES (?, ?, ?)`,
			view, id.String(), now(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		added = n > 0
		return err
	})
	if err == nil {
		s.log.Debug("enacted", zap.String("view", view), zap.Stringer("action", id), zap.Bool("added", added))
	}
	return id, added, err
}

// LoadView returns everything stated and enacted in view, read in one
// transaction.
func (s *Store) LoadView(view string) (*model.View, error) {
	v := &model.View{Agent: view}
	err := s.withTx("load view", func(tx *sql.Tx) error {
		v.Messages, v.Actions = nil, nil
		rows, err := tx.Query(
			`SELECT m.id, m.body FROM view_messages v JOIN messages m ON m.id = v.message_id
			 WHERE v.view = ? ORDER BY v.rowid`, view,
		)
		if err != nil {
			return err
		}
		v.Messages, err = scanMessages(rows)
		if err != nil {
			return err
		}

		rows, err = tx.Query(
			`SELECT a.id, a.body FROM view_actions v JOIN actions a ON a.id = v.action_id
			 WHERE v.view = ? ORDER BY v.rowid`, view,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id, body string
			if err := rows.Scan(&id, &body); err != nil {
				return err
			}
			sa, err := decodeAction(id, body)
			if err != nil {
				return err
			}
			v.Actions = append(v.Actions, *sa)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Views returns the names of all views that hold statements, sorted.
func (s *Store) Views() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT view FROM view_messages UNION SELECT view FROM view_actions ORDER BY 1`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]model.StoredMessage, error) {
	defer rows.Close()
	var out []model.StoredMessage
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		sm, err := decodeMessage(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, *sm)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Agreements
// ---------------------------------------------------------------------------

// ReplaceAgreements makes msgs, deduplicated, the entire agreement set.
// The old set is dropped and the new one installed in one transaction.
func (s *Store) ReplaceAgreements(msgs []message.Message) ([]uuid.UUID, error) {
	set := message.NewSet(msgs...)
	ids := make([]uuid.UUID, len(set))
	err := s.withTx("replace agreements", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM agreements`); err != nil {
			return err
		}
		for i, m := range set {
			id, err := putMessage(tx, m)
			if err != nil {
				return err
			}
			ids[i] = id
			if _, err := tx.Exec(
				`INSERT INTO agreements (message_id, position) VALUES (?, ?)`, id.String(), i,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace agreements: %w", err)
	}
	s.log.Info("agreements replaced", zap.Int("count", len(ids)))
	return ids, nil
}

// CurrentAgreements returns the agreement set in installation order.
func (s *Store) CurrentAgreements() ([]model.StoredMessage, error) {
	rows, err := s.db.Query(
		`SELECT m.id, m.body FROM agreements a JOIN messages m ON m.id = a.message_id
		 ORDER BY a.position`,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ---------------------------------------------------------------------------
// Cursors
// ---------------------------------------------------------------------------

// GetCursor returns the ID of the last event delivered to agentID (0 if
// none).
func (s *Store) GetCursor(agentID string) int64 {
	var id int64
	if err := s.db.QueryRow(`SELECT since_id FROM cursors WHERE agent_id = ?`, agentID).Scan(&id); err != nil {
		return 0
	}
	return id
}

// SetCursor records the last event delivered to agentID.
func (s *Store) SetCursor(agentID string, sinceID int64) error {
	return s.retryOnContention("set cursor", func() error {
		_, err := s.db.Exec(
			`INSERT INTO cursors (agent_id, since_id) VALUES (?, ?)
			 ON CONFLICT(agent_id) DO UPDATE SET since_id = excluded.since_id`,
			agentID, sinceID,
		)
		return err
	})
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

const eventColumns = `id, agent_id, lamport_ts, kind, target, ref, created_at`

// InsertEvent appends e to the log and returns its row ID.
func (s *Store) InsertEvent(e *model.Event) (int64, error) {
	if !e.Kind.Valid() {
		return 0, fmt.Errorf("insert event: unknown kind %q", e.Kind)
	}
	var lastID int64
	err := s.retryOnContention("insert event", func() error {
		res, err := s.db.Exec(
			`INSERT INTO events (agent_id, lamport_ts, kind, target, ref, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.AgentID, e.LamportTS, string(e.Kind), e.Target, e.Ref.String(),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		lastID, err = res.LastInsertId()
		return err
	})
	return lastID, err
}

// ListEvents returns events with lamport_ts >= sinceTS in total order.
func (s *Store) ListEvents(sinceTS int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM events WHERE lamport_ts >= ?
		 ORDER BY lamport_ts ASC, agent_id ASC, id ASC LIMIT ?`,
		sinceTS, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListEventsSinceID returns events with row ID > sinceID, ordered by ID.
func (s *Store) ListEventsSinceID(sinceID int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`,
		sinceID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListEventsForAgent returns statements and enactments by other agents
// that address agentID, directly or by broadcast, with row ID > sinceID.
func (s *Store) ListEventsForAgent(agentID string, sinceID int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM events
		 WHERE id > ? AND agent_id != ? AND kind IN (?, ?) AND (target = ? OR target = '')
		 ORDER BY id ASC LIMIT ?`,
		sinceID, agentID, string(model.EventStated), string(model.EventEnacted), agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// MaxEventID returns the highest event row ID, or 0 if the log is empty.
func (s *Store) MaxEventID() int64 {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&id); err != nil {
		return 0
	}
	return id
}

// CountEvents returns the number of events in the log.
func (s *Store) CountEvents() int64 {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var kind, ref, created string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.LamportTS, &kind, &e.Target, &ref, &created); err != nil {
			return nil, err
		}
		e.Kind = model.EventKind(kind)
		var err error
		if e.Ref, err = uuid.Parse(ref); err != nil {
			return nil, fmt.Errorf("parse ref of event %d: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at of event %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats counts the ledger's records.
func (s *Store) Stats() (model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM agents),
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM actions),
		(SELECT COUNT(*) FROM agreements),
		(SELECT COUNT(*) FROM events)`,
	).Scan(&st.Agents, &st.Messages, &st.Actions, &st.Agreements, &st.Events)
	return st, err
}
