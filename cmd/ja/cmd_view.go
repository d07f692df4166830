package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) viewCmd() *cobra.Command {
	var agreements bool
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show your view of the statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if agreements {
				cur, err := a.store.CurrentAgreements()
				if err != nil {
					return fmt.Errorf("view: %w", err)
				}
				if a.json {
					a.printJSON(map[string]interface{}{"agreements": cur, "count": len(cur)})
					return nil
				}
				if len(cur) == 0 {
					fmt.Fprintln(a.out, "no agreements")
				}
				for _, sm := range cur {
					fmt.Fprintf(a.out, "%s %s\n", sm.ID, sm.Message)
				}
				return nil
			}

			agentID, err := a.resolveAgent()
			if err != nil {
				return err
			}
			v, err := a.store.LoadView(agentID)
			if err != nil {
				return fmt.Errorf("view: %w", err)
			}
			if a.json {
				a.printJSON(v)
				return nil
			}
			fmt.Fprintf(a.out, "view of %s: %d message(s), %d action(s)\n", agentID, len(v.Messages), len(v.Actions))
			for _, sm := range v.Messages {
				fmt.Fprintf(a.out, "  stated  %s %s\n", sm.ID, sm.Message)
			}
			for _, sa := range v.Actions {
				fmt.Fprintf(a.out, "  enacted %s %s on %s (+%d)\n", sa.ID, sa.Actor, sa.Basis, len(sa.Extra))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&agreements, "agreements", false, "show the agreement set instead")
	return cmd
}
