package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/policy"
)

func (a *app) deriveCmd() *cobra.Command {
	var (
		actionPath string
		holds      string
		authorised string
	)
	cmd := &cobra.Command{
		Use:   "derive [file|-]...",
		Short: "Evaluate an extracted policy",
		Long: `Derive evaluates the policy extracted from the given messages (or from
what you know) and prints every derived fact and whether the policy is
valid.

  --holds '[reads, Alice, D]'     check a single ground atom
  --authorised Bob,Alice,T        check authorises(Bob, Alice, T)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := a.policySource(args, actionPath)
			if err != nil {
				return fmt.Errorf("derive: %w", err)
			}
			p := message.Extract(msgs...)
			ctx := cmd.Context()

			switch {
			case holds != "":
				var atom fact.Atom
				if err := yaml.Unmarshal([]byte(holds), &atom); err != nil {
					return fmt.Errorf("derive: --holds: %w", err)
				}
				ok, err := a.engine.Holds(ctx, p, atom)
				if err != nil {
					return fmt.Errorf("derive: %w", err)
				}
				return a.printHolds(policy.Format(atom), ok)

			case authorised != "":
				parts := strings.Split(authorised, ",")
				if len(parts) != 3 {
					return fmt.Errorf("derive: --authorised wants checker,agent,task")
				}
				for i := range parts {
					parts[i] = strings.TrimSpace(parts[i])
				}
				checker, agent, task := fact.L(parts[0]), fact.L(parts[1]), fact.L(parts[2])
				ok, err := a.engine.Authorised(ctx, p, checker, agent, task)
				if err != nil {
					return fmt.Errorf("derive: %w", err)
				}
				return a.printHolds(policy.Format(policy.Authorises(checker, agent, task)), ok)
			}

			facts, err := a.engine.Derive(ctx, p)
			if err != nil {
				return fmt.Errorf("derive: %w", err)
			}
			verdict, err := a.engine.Evaluate(ctx, p)
			if err != nil {
				return fmt.Errorf("derive: %w", err)
			}

			formatted := make([]string, len(facts))
			for i, f := range facts {
				formatted[i] = policy.Format(f)
			}
			reasons := make([]string, len(verdict.Reasons))
			for i, r := range verdict.Reasons {
				reasons[i] = policy.Format(r)
			}

			if a.json {
				a.printJSON(map[string]interface{}{
					"facts": formatted, "count": len(formatted), "valid": verdict.Valid, "reasons": reasons,
				})
				return nil
			}
			for _, f := range formatted {
				fmt.Fprintln(a.out, f)
			}
			if verdict.Valid {
				fmt.Fprintln(a.out, "valid")
			} else {
				fmt.Fprintf(a.out, "invalid: %s\n", strings.Join(reasons, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actionPath, "action", "", "evaluate the justification of this action file")
	cmd.Flags().StringVar(&holds, "holds", "", "ground atom to check, as a YAML sequence")
	cmd.Flags().StringVar(&authorised, "authorised", "", "checker,agent,task to check")
	return cmd
}

func (a *app) printHolds(atom string, ok bool) error {
	if a.json {
		a.printJSON(map[string]interface{}{"atom": atom, "holds": ok})
		return nil
	}
	fmt.Fprintf(a.out, "%s: %v\n", atom, ok)
	return nil
}
