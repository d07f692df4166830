package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/model"
)

func (a *app) agreeCmd() *cobra.Command {
	var empty bool
	cmd := &cobra.Command{
		Use:   "agree [file|-]...",
		Short: "Replace the agreement set",
		Long: `Agree makes the messages in the given files the entire agreement set.
The previous set is dropped in the same transaction, so no reader ever
sees a mix of the two. Use --clear to install the empty set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !empty {
				return fmt.Errorf("agree: no messages given (use --clear for an empty set)")
			}
			if len(args) > 0 && empty {
				return fmt.Errorf("agree: --clear takes no files")
			}
			agentID, err := a.requireAgent()
			if err != nil {
				return err
			}

			var msgs []message.Message
			for _, path := range args {
				ms, err := a.readMessages(path, agentID)
				if err != nil {
					return fmt.Errorf("agree: %w", err)
				}
				msgs = append(msgs, ms...)
			}

			ids, err := a.store.ReplaceAgreements(msgs)
			if err != nil {
				return fmt.Errorf("agree: %w", err)
			}
			ts, _, err := a.record(agentID, a.getClock(agentID), model.EventAgreed, uuid.Nil, nil)
			if err != nil {
				return fmt.Errorf("agree: %w", err)
			}

			if a.json {
				a.printJSON(map[string]interface{}{"agreements": ids, "count": len(ids), "lamport_ts": ts})
				return nil
			}
			fmt.Fprintf(a.out, "installed %d agreement(s) at ts=%d\n", len(ids), ts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&empty, "clear", false, "install the empty agreement set")
	return cmd
}
