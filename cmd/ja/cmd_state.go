package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
)

func (a *app) stateCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "state <file|->",
		Short: "State the messages in a YAML file",
		Long: `State adds each message in the file to your view and publishes it.

Messages without an author are attributed to you; messages authored by
another agent are refused. With --to the statement
reaches only the listed agents; otherwise every agent receives it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := a.requireAgent()
			if err != nil {
				return err
			}
			msgs, err := a.readMessages(args[0], agentID)
			if err != nil {
				return fmt.Errorf("state: %w", err)
			}
			for i, m := range msgs {
				if m.Author != message.Agent(agentID) {
					return fmt.Errorf("state: message %d is authored by %q, not %q", i+1, m.Author, agentID)
				}
			}
			targets := splitTargets(to)

			type stated struct {
				ID        uuid.UUID `json:"id"`
				Added     bool      `json:"added"`
				LamportTS int64     `json:"lamport_ts"`
				EventIDs  []int64   `json:"event_ids"`
			}
			var results []stated
			c := a.getClock(agentID)
			for _, m := range msgs {
				id, added, err := a.store.State(agentID, m)
				if err != nil {
					return fmt.Errorf("state: %w", err)
				}
				ts, eventIDs, err := a.record(agentID, c, model.EventStated, id, targets)
				if err != nil {
					return fmt.Errorf("state: %w", err)
				}
				results = append(results, stated{ID: id, Added: added, LamportTS: ts, EventIDs: eventIDs})
			}

			if a.json {
				a.printJSON(map[string]interface{}{"stated": results, "count": len(results)})
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(a.out, "stated %s at ts=%d: %s\n", r.ID, r.LamportTS, msgs[i])
			}
			if len(targets) > 0 {
				fmt.Fprintf(a.errOut, "(to %s)\n", strings.Join(targets, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "comma-separated recipients (default: everyone)")
	return cmd
}

// splitTargets parses a comma-separated recipient list.
func splitTargets(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
