package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) recvCmd() *cobra.Command {
	var (
		limit int
		peek  bool
	)
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Receive statements and actions into your view",
		Long: `Recv delivers statements and enactments addressed to you into your
view, in Lamport order, and advances your clock past each one (IR2).
With --peek the pending events are listed without being delivered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := a.requireAgent()
			if err != nil {
				return err
			}

			if peek {
				events, err := a.pending(agentID, limit)
				if err != nil {
					return fmt.Errorf("recv: %w", err)
				}
				if a.json {
					a.printJSON(map[string]interface{}{"pending": events, "count": len(events)})
					return nil
				}
				fmt.Fprintf(a.out, "%d pending\n", len(events))
				return nil
			}

			c := a.getClock(agentID)
			events, err := a.deliver(agentID, c, limit)
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}

			if a.json {
				a.printJSON(map[string]interface{}{
					"delivered": events, "count": len(events), "new_lamport_ts": c.Value(),
				})
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(a.out, "nothing new")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(a.out, "[ts=%d] %s %s %s\n", e.LamportTS, e.AgentID, e.Kind, e.Ref)
			}
			fmt.Fprintf(a.errOut, "(%d delivered, clock now %d)\n", len(events), c.Value())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max events to deliver")
	cmd.Flags().BoolVar(&peek, "peek", false, "list pending events without delivering them")
	return cmd
}
