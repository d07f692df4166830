package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/audit"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/sets"
)

// auditAction audits act against agentID's view and the current
// agreements.
func (a *app) auditAction(ctx context.Context, agentID string, act message.Action) error {
	st, err := a.loadStatements(agentID)
	if err != nil {
		return err
	}
	ag, err := a.loadAgreements()
	if err != nil {
		return err
	}
	return audit.Audit(ctx, act, st.View(sets.ViewID(agentID)), ag.Current(), a.engine)
}

// loadAction reads an action from a file, or from the ledger when ref is
// the ID of a stored action.
func (a *app) loadAction(ref, actor string) (message.Action, error) {
	if id, err := uuid.Parse(ref); err == nil {
		sa, err := a.store.GetAction(id)
		if err != nil {
			return message.Action{}, err
		}
		return sa.Action, nil
	}
	return a.readAction(ref, actor)
}

func (a *app) auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <file|-|action-id>",
		Short: "Check whether an action is justified",
		Long: `Audit checks an action against your view and the current agreements.
The action is justified when every message in its payload was stated or
agreed, its basis is a current agreement, and its justification derives
no error. A rejected action exits with code 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := a.resolveAgent()
			if err != nil {
				return err
			}
			act, err := a.loadAction(args[0], agentID)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}

			err = a.auditAction(cmd.Context(), agentID, act)
			rejected := errors.Is(err, audit.ErrRejected)
			if err != nil && !rejected {
				return fmt.Errorf("audit: %w", err)
			}

			if a.json {
				res := map[string]interface{}{"actor": act.Actor, "justified": err == nil}
				if rejected {
					res["reason"] = err.Error()
				}
				a.printJSON(res)
			} else if err == nil {
				fmt.Fprintf(a.out, "justified: %s on %s\n", act.Actor, act.Basis)
			}
			if rejected {
				return fmt.Errorf("audit: %w", err)
			}
			return nil
		},
	}
}
