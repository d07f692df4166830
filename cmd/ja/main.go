// Command ja is the justact CLI: agents state messages, agree on a shared
// set of them, enact actions and audit whether those actions are justified.
//
// All agents on a machine share one SQLite ledger. Statements reach other
// agents through the ledger's event log, ordered by Lamport clocks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/daviddao/justact/pkg/audit"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitRejected = 2
)

// rootFlags are the flags every subcommand accepts.
type rootFlags struct {
	db      string
	agent   string
	config  string
	json    bool
	verbose bool
}

func newRootCmd(a *app) *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "ja",
		Short: "justified actions for cooperating agents",
		Long: `ja records what agents state, what they agree on and what they do.

Every action is justified by a payload of messages. An auditor accepts it
when each message was stated or agreed, its basis is a current agreement,
and the policy extracted from the payload derives no error.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.db, "db", "", "SQLite database path (env JUSTACT_DB)")
	pf.StringVar(&f.agent, "agent", "", "agent ID (env JUSTACT_AGENT)")
	pf.StringVar(&f.config, "config", "", "config file (env JUSTACT_CONFIG, default "+defaultConfig+")")
	pf.BoolVar(&f.json, "json", false, "JSON output")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.registerCmd(),
		a.stateCmd(),
		a.enactCmd(),
		a.recvCmd(),
		a.agreeCmd(),
		a.viewCmd(),
		a.extractCmd(),
		a.auditCmd(),
		a.deriveCmd(),
		a.logCmd(),
		a.statusCmd(),
	)
	return root
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	a := &app{}
	defer a.Close()
	root := newRootCmd(a)
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ja: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit status: 2 when an audit
// rejected the action, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, audit.ErrRejected):
		return exitRejected
	default:
		return exitError
	}
}
