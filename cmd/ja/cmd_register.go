package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <agent_id>",
		Short: "Register an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := a.store.RegisterAgent(args[0])
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if a.json {
				a.printJSON(agent)
				return nil
			}
			fmt.Fprintf(a.out, "registered agent %q (clock=%d)\n", agent.ID, agent.Clock)
			fmt.Fprintf(a.errOut, "hint: export JUSTACT_AGENT=%s\n", agent.ID)
			return nil
		},
	}
}
