package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

type syncCmd struct {
	app *App
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "run one sync of every mapped account" }
func (*syncCmd) Usage() string {
	return `actual-sync sync

  Imports new bank and card transactions into the ledger, then reconciles
  every mapped account balance. Exits 1 if the run aborted or any account
  failed.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	svc, _, err := e.syncService(ctx)
	if err != nil {
		return c.app.fail(err)
	}

	result, err := svc.Sync(ctx)
	if err != nil {
		return c.app.fail(err)
	}

	printSummary(c.app.Stdout, *result)
	if len(result.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printSummary writes the human readable run summary
func printSummary(w io.Writer, result sync.RunResult) {
	n := sync.BuildNotification(result)
	fmt.Fprintln(w, n.Title)
	fmt.Fprintln(w, n.Body)
	if !result.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}
}
