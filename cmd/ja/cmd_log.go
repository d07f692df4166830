package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/model"
)

func (a *app) logCmd() *cobra.Command {
	var (
		sinceTS int64
		limit   int
		kind    string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Query the append-only event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" && !model.EventKind(kind).Valid() {
				return fmt.Errorf("log: unknown kind %q", kind)
			}
			events, err := a.store.ListEvents(sinceTS, limit)
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}
			if kind != "" {
				filtered := events[:0]
				for _, e := range events {
					if string(e.Kind) == kind {
						filtered = append(filtered, e)
					}
				}
				events = filtered
			}

			if a.json {
				a.printJSON(map[string]interface{}{"events": events, "count": len(events)})
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(a.out, "no events")
				return nil
			}
			for _, e := range events {
				switch {
				case e.Kind == model.EventAgreed:
					fmt.Fprintf(a.out, "[ts=%d] %s agreed\n", e.LamportTS, e.AgentID)
				case e.Broadcast():
					fmt.Fprintf(a.out, "[ts=%d] %s %s %s\n", e.LamportTS, e.AgentID, e.Kind, e.Ref)
				default:
					fmt.Fprintf(a.out, "[ts=%d] %s -> %s: %s %s\n", e.LamportTS, e.AgentID, e.Target, e.Kind, e.Ref)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&sinceTS, "since", 0, "events with lamport_ts >= this")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to return")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (stated, enacted, agreed)")
	return cmd
}
