package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
)

func (a *app) enactCmd() *cobra.Command {
	var (
		to    string
		check bool
	)
	cmd := &cobra.Command{
		Use:   "enact <file|->",
		Short: "Enact the action in a YAML file",
		Long: `Enact records an action in your view and publishes it.

Pending statements are delivered first. With --check the action is audited
against your view before it is recorded, and a rejected action is not
enacted (exit code 2).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := a.requireAgent()
			if err != nil {
				return err
			}
			act, err := a.readAction(args[0], agentID)
			if err != nil {
				return fmt.Errorf("enact: %w", err)
			}
			if act.Actor != message.Agent(agentID) {
				return fmt.Errorf("enact: action is by %q, not %q", act.Actor, agentID)
			}

			c := a.getClock(agentID)
			delivered, err := a.deliver(agentID, c, 100)
			if err != nil {
				return fmt.Errorf("enact: %w", err)
			}
			a.printInbox(delivered)

			if check {
				if err := a.auditAction(cmd.Context(), agentID, act); err != nil {
					return fmt.Errorf("enact: %w", err)
				}
			}

			id, added, err := a.store.Enact(agentID, act)
			if err != nil {
				return fmt.Errorf("enact: %w", err)
			}
			ts, eventIDs, err := a.record(agentID, c, model.EventEnacted, id, splitTargets(to))
			if err != nil {
				return fmt.Errorf("enact: %w", err)
			}

			if a.json {
				a.printJSON(map[string]interface{}{
					"id": id, "added": added, "lamport_ts": ts, "event_ids": eventIDs, "checked": check,
				})
				return nil
			}
			fmt.Fprintf(a.out, "enacted %s at ts=%d\n", id, ts)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "comma-separated recipients (default: everyone)")
	cmd.Flags().BoolVar(&check, "check", false, "audit the action before enacting it")
	return cmd
}
