package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/justact/pkg/clock"
	"github.com/daviddao/justact/pkg/datalog"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
	"github.com/daviddao/justact/pkg/sets"
	"github.com/daviddao/justact/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	cfg     config
	store   store.StoreInterface
	engine  *datalog.Engine
	log     *zap.Logger
	agentID string // default agent from --agent, JUSTACT_AGENT or the config file
	json    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// open resolves the configuration, then opens the ledger and the
// evaluator. A logger or store set beforehand is kept.
func (a *app) open(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.agentID = cfg.Agent
	a.json = f.json
	a.in, a.out, a.errOut = cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()

	if a.log == nil {
		if a.log, err = cfg.newLogger(); err != nil {
			return err
		}
	}
	if a.store == nil {
		if err := cfg.ensureDir(); err != nil {
			return err
		}
		s, err := store.New(cfg.DB, a.log)
		if err != nil {
			return fmt.Errorf("cannot open database %q: %w", cfg.DB, err)
		}
		a.store = s
	}
	a.engine = datalog.New(datalog.Config{Timeout: cfg.EvalTimeout, FactLimit: cfg.FactLimit}, a.log)
	return nil
}

// Close releases the database connection and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// resolveAgent returns the default agent ID.
func (a *app) resolveAgent() (string, error) {
	if a.agentID != "" {
		return a.agentID, nil
	}
	return "", fmt.Errorf("no agent ID: pass --agent or set JUSTACT_AGENT")
}

// requireAgent resolves the agent and checks that it is registered.
func (a *app) requireAgent() (string, error) {
	id, err := a.resolveAgent()
	if err != nil {
		return "", err
	}
	if _, err := a.store.GetAgent(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("agent %q is not registered: run 'ja register %s'", id, id)
		}
		return "", err
	}
	return id, nil
}

// getClock returns a Lamport clock seeded from the agent's persisted value.
// Each agent owns its clock; two processes must not act as the same agent
// concurrently.
func (a *app) getClock(agentID string) *clock.Clock {
	c := &clock.Clock{}
	if ag, err := a.store.GetAgent(agentID); err == nil {
		c.Set(ag.Clock)
	}
	return c
}

// record ticks the agent's clock and appends one event per target, or a
// single broadcast event when targets is empty.
func (a *app) record(agentID string, c *clock.Clock, kind model.EventKind, ref uuid.UUID, targets []string) (int64, []int64, error) {
	ts := c.Tick()
	if err := a.store.UpdateAgentClock(agentID, ts); err != nil {
		return 0, nil, fmt.Errorf("update clock: %w", err)
	}
	if len(targets) == 0 {
		targets = []string{""}
	}
	ids := make([]int64, 0, len(targets))
	for _, t := range targets {
		id, err := a.store.InsertEvent(&model.Event{
			AgentID:   agentID,
			LamportTS: ts,
			Kind:      kind,
			Target:    t,
			Ref:       ref,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return 0, nil, err
		}
		ids = append(ids, id)
	}
	return ts, ids, nil
}

// pending returns undelivered events addressed to agentID without
// advancing its cursor.
func (a *app) pending(agentID string, limit int) ([]model.Event, error) {
	return a.store.ListEventsForAgent(agentID, a.store.GetCursor(agentID), limit)
}

// deliver copies pending statements and enactments into the agent's view
// in Lamport order, applies IR2 for each one, and advances the cursor.
func (a *app) deliver(agentID string, c *clock.Clock, limit int) ([]model.Event, error) {
	events, err := a.pending(agentID, limit)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return clock.Stamp{TS: events[i].LamportTS, Agent: events[i].AgentID}.
			Less(clock.Stamp{TS: events[j].LamportTS, Agent: events[j].AgentID})
	})

	var maxID int64
	for _, e := range events {
		c.Receive(e.LamportTS)
		switch e.Kind {
		case model.EventStated:
			sm, err := a.store.GetMessage(e.Ref)
			if err != nil {
				return nil, fmt.Errorf("deliver event %d: %w", e.ID, err)
			}
			if _, _, err := a.store.State(agentID, sm.Message); err != nil {
				return nil, err
			}
		case model.EventEnacted:
			sa, err := a.store.GetAction(e.Ref)
			if err != nil {
				return nil, fmt.Errorf("deliver event %d: %w", e.ID, err)
			}
			if _, _, err := a.store.Enact(agentID, sa.Action); err != nil {
				return nil, err
			}
		}
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	if err := a.store.UpdateAgentClock(agentID, c.Value()); err != nil {
		return nil, err
	}
	if err := a.store.SetCursor(agentID, maxID); err != nil {
		return nil, err
	}
	a.log.Debug("delivered", zap.String("agent", agentID), zap.Int("events", len(events)), zap.Int64("clock", c.Value()))
	return events, nil
}

// loadStatements reads the agent's view from the ledger into memory.
func (a *app) loadStatements(agentID string) (*sets.Statements, error) {
	v, err := a.store.LoadView(agentID)
	if err != nil {
		return nil, fmt.Errorf("load view %s: %w", agentID, err)
	}
	st := sets.NewStatements()
	id := sets.ViewID(agentID)
	for _, m := range v.Messages {
		st.State(id, m.Message)
	}
	for _, act := range v.Actions {
		st.Enact(id, act.Action)
	}
	return st, nil
}

// loadAgreements reads the current agreement set from the ledger.
func (a *app) loadAgreements() (*sets.Agreements, error) {
	stored, err := a.store.CurrentAgreements()
	if err != nil {
		return nil, fmt.Errorf("load agreements: %w", err)
	}
	cmd := sets.ReplaceAgreements{Messages: make([]message.Message, len(stored))}
	for i, sm := range stored {
		cmd.Messages[i] = sm.Message
	}
	ag := sets.NewAgreements()
	ag.Apply(cmd)
	return ag, nil
}

// openDoc opens path for reading; "-" is standard input.
func (a *app) openDoc(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(a.in), nil
	}
	return os.Open(path)
}

// readMessages decodes every YAML document in path as a message. A message
// without an author is attributed to author.
func (a *app) readMessages(path string, author string) ([]message.Message, error) {
	r, err := a.openDoc(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var msgs []message.Message
	dec := yaml.NewDecoder(r)
	for {
		var m message.Message
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if m.Author == "" {
			m.Author = message.Agent(author)
		}
		if m.Author == "" {
			return nil, fmt.Errorf("%s: message %d has no author", path, len(msgs)+1)
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s: no messages", path)
	}
	return msgs, nil
}

// readAction decodes the single YAML action in path. Extra messages without
// an author are attributed to the actor.
func (a *app) readAction(path string, actor string) (message.Action, error) {
	r, err := a.openDoc(path)
	if err != nil {
		return message.Action{}, err
	}
	defer r.Close()

	var act message.Action
	if err := yaml.NewDecoder(r).Decode(&act); err != nil {
		return message.Action{}, fmt.Errorf("%s: %w", path, err)
	}
	if act.Actor == "" {
		act.Actor = message.Agent(actor)
	}
	if act.Basis.Author == "" {
		return message.Action{}, fmt.Errorf("%s: basis has no author", path)
	}
	for i := range act.Extra {
		if act.Extra[i].Author == "" {
			act.Extra[i].Author = act.Actor
		}
	}
	return act, nil
}

// printJSON writes v to stdout as indented JSON.
func (a *app) printJSON(v interface{}) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printInbox prints delivered events to stderr so they don't interfere
// with the command's primary output.
func (a *app) printInbox(events []model.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(a.errOut, "\n=== %d delivered ===\n", len(events))
	for _, e := range events {
		fmt.Fprintf(a.errOut, "  [ts=%d] %s %s %s\n", e.LamportTS, e.AgentID, e.Kind, e.Ref)
	}
	fmt.Fprintf(a.errOut, "===================\n\n")
}
