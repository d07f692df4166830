// Package clock orders ledger events with Lamport logical clocks.
//
// Each agent advances its own clock before it writes an event (IR1) and
// merges the timestamp of every event it delivers into its view (IR2):
//
//	IR1: ts = ts + 1
//	IR2: ts = max(ts, received) + 1
//
// Stamps from different agents are compared with the Lamport total order,
// which breaks ties by agent ID. The order only sequences the event log;
// it plays no part in deciding which agreements hold.
//
// A Clock is not goroutine-safe. The CLI seeds one per invocation from the
// agent's persisted value.
package clock

// Clock is a Lamport logical clock.
type Clock struct {
	ts int64
}

// Tick advances the clock for a local event and returns the new value.
func (c *Clock) Tick() int64 {
	c.ts++
	return c.ts
}

// Receive merges a delivered timestamp and returns the new value.
func (c *Clock) Receive(received int64) int64 {
	if received > c.ts {
		c.ts = received
	}
	c.ts++
	return c.ts
}

// Value returns the current value without advancing.
func (c *Clock) Value() int64 { return c.ts }

// Set seeds the clock, normally from the ledger.
func (c *Clock) Set(v int64) { c.ts = v }

// Stamp is a position in the total order of ledger events.
type Stamp struct {
	TS    int64  `json:"lamport_ts"`
	Agent string `json:"agent_id"`
}

// Less reports whether s precedes other.
func (s Stamp) Less(other Stamp) bool {
	return TotalOrderLess(s.TS, s.Agent, other.TS, other.Agent)
}

// TotalOrderLess orders (tsA, agentA) before (tsB, agentB) when tsA < tsB,
// or when the timestamps are equal and agentA sorts before agentB.
func TotalOrderLess(tsA int64, agentA string, tsB int64, agentB string) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return agentA < agentB
}
