package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
)

// TestStoreImplementsInterface drives a real store through StoreInterface
// the way the CLI does: register, state, agree, enact, deliver.
func TestStoreImplementsInterface(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var iface StoreInterface = s
	defer iface.Close()

	for _, id := range []string{"alice", "bob"} {
		if _, err := iface.RegisterAgent(id); err != nil {
			t.Fatalf("RegisterAgent(%s): %v", id, err)
		}
	}

	m := testMessage("alice", "p")
	id, added, err := iface.State("alice", m)
	if err != nil || !added {
		t.Fatalf("State: added=%v err=%v", added, err)
	}
	if _, err := iface.InsertEvent(&model.Event{
		AgentID: "alice", LamportTS: 1, Kind: model.EventStated, Ref: id, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := iface.UpdateAgentClock("alice", 1); err != nil {
		t.Fatalf("UpdateAgentClock: %v", err)
	}

	if _, err := iface.ReplaceAgreements([]message.Message{m}); err != nil {
		t.Fatalf("ReplaceAgreements: %v", err)
	}
	if _, _, err := iface.Enact("alice", message.Action{Actor: "alice", Basis: m}); err != nil {
		t.Fatalf("Enact: %v", err)
	}

	// bob picks up alice's broadcast statement.
	events, err := iface.ListEventsForAgent("bob", iface.GetCursor("bob"), 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("ListEventsForAgent: %d events, err=%v", len(events), err)
	}
	got, err := iface.GetMessage(events[0].Ref)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if _, _, err := iface.State("bob", got.Message); err != nil {
		t.Fatalf("State(bob): %v", err)
	}
	if err := iface.SetCursor("bob", events[0].ID); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if rest, _ := iface.ListEventsForAgent("bob", iface.GetCursor("bob"), 10); len(rest) != 0 {
		t.Fatalf("cursor did not advance: %d events left", len(rest))
	}

	bob, err := iface.LoadView("bob")
	if err != nil || len(bob.Messages) != 1 {
		t.Fatalf("LoadView(bob): %+v err=%v", bob, err)
	}
	if cur, err := iface.CurrentAgreements(); err != nil || len(cur) != 1 {
		t.Fatalf("CurrentAgreements: %d err=%v", len(cur), err)
	}
	if st, err := iface.Stats(); err != nil || st.Agents != 2 {
		t.Fatalf("Stats: %+v err=%v", st, err)
	}
}
