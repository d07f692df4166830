package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/model"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agents, ledger counts and your pending events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Status works without an agent.
			agentID, _ := a.resolveAgent()

			agents, err := a.store.ListAgents()
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			stats, err := a.store.Stats()
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			pending := -1
			if agentID != "" {
				if events, err := a.pending(agentID, 1000); err == nil {
					pending = len(events)
				}
			}

			type agentInfo struct {
				model.Agent
				Presence string `json:"presence"`
			}
			infos := make([]agentInfo, len(agents))
			for i, ag := range agents {
				infos[i] = agentInfo{Agent: ag, Presence: agentPresence(ag)}
			}

			if a.json {
				res := map[string]interface{}{"agents": infos, "stats": stats}
				if pending >= 0 {
					res["pending"] = pending
				}
				a.printJSON(res)
				return nil
			}
			fmt.Fprintln(a.out, "agents:")
			for _, ai := range infos {
				marker := ""
				if ai.ID == agentID {
					marker = " <-- you"
				}
				fmt.Fprintf(a.out, "  %s %-20s clock=%-4d last_seen=%s%s\n",
					presenceIndicator(ai.Presence), ai.ID, ai.Clock, ai.LastSeen.Format("15:04:05"), marker)
			}
			fmt.Fprintf(a.out, "ledger: %d message(s), %d action(s), %d agreement(s), %d event(s)\n",
				stats.Messages, stats.Actions, stats.Agreements, stats.Events)
			if pending >= 0 {
				fmt.Fprintf(a.out, "you (%s): %d pending\n", agentID, pending)
			}
			return nil
		},
	}
}

// agentPresence returns a presence string based on last_seen time.
//   - "online"  seen within 2 minutes
//   - "idle"    seen within 10 minutes
//   - "offline" not seen for 10+ minutes
func agentPresence(ag model.Agent) string {
	since := time.Since(ag.LastSeen)
	switch {
	case since < 2*time.Minute:
		return "online"
	case since < 10*time.Minute:
		return "idle"
	default:
		return "offline"
	}
}

// presenceIndicator returns a short text indicator for display.
func presenceIndicator(presence string) string {
	switch presence {
	case "online":
		return "[+]"
	case "idle":
		return "[~]"
	default:
		return "[-]"
	}
}
