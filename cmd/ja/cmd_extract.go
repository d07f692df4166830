package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/sets"
)

// policySource selects the messages a policy is extracted from: the payload
// of the action in actionPath, the messages in files, or else everything
// the agent knows (its view plus the agreements).
func (a *app) policySource(files []string, actionPath string) ([]message.Message, error) {
	agentID, _ := a.resolveAgent()

	if actionPath != "" {
		act, err := a.readAction(actionPath, agentID)
		if err != nil {
			return nil, err
		}
		return message.Payload(act), nil
	}

	if len(files) > 0 {
		var msgs []message.Message
		for _, path := range files {
			ms, err := a.readMessages(path, agentID)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, ms...)
		}
		return msgs, nil
	}

	if agentID == "" {
		return nil, fmt.Errorf("no input: pass files, --action, or --agent")
	}
	st, err := a.loadStatements(agentID)
	if err != nil {
		return nil, err
	}
	ag, err := a.loadAgreements()
	if err != nil {
		return nil, err
	}
	known := append(ag.Current(), st.View(sets.ViewID(agentID)).Messages...)
	return message.NewSet(known...), nil
}

func (a *app) extractCmd() *cobra.Command {
	var (
		actionPath string
		dedup      bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file|-]...",
		Short: "Print the policy extracted from messages",
		Long: `Extract prints every rule of the given messages twice: once as written
and once attributed to its author. Without files it extracts what you know:
your view plus the agreements. With --action it extracts the action's
justification. --dedup prints each distinct rule once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := a.policySource(args, actionPath)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			p := message.Extract(msgs...)
			if dedup {
				p = p.Dedup()
			}

			if a.json {
				a.printJSON(map[string]interface{}{"rules": p, "count": p.Len(), "messages": len(msgs)})
				return nil
			}
			if p.Len() == 0 {
				fmt.Fprintln(a.out, "(empty policy)")
				return nil
			}
			fmt.Fprintln(a.out, p.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&actionPath, "action", "", "extract the justification of this action file")
	cmd.Flags().BoolVar(&dedup, "dedup", false, "print each distinct rule once")
	return cmd
}
