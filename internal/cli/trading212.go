package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/pkg/money"
)

// trading212Cmd is a container for Trading212 commands
type trading212Cmd struct {
	app *App
}

func (*trading212Cmd) Name() string     { return "trading212" }
func (*trading212Cmd) Synopsis() string { return "inspect Trading212 accounts" }
func (*trading212Cmd) Usage() string {
	return `trading212 <subcommand> [args]

Commands:
  list-accounts - List the Trading212 accounts in the sync file.
  get-balance   - Print the total value of an account.
`
}

func (c *trading212Cmd) SetFlags(f *flag.FlagSet) {}
func (c *trading212Cmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	commander := subcommands.NewCommander(f, "trading212")
	commander.Register(&trading212ListAccountsCmd{app: c.app}, "")
	commander.Register(&trading212GetBalanceCmd{app: c.app}, "")
	return commander.Execute(ctx, args...)
}

type trading212ListAccountsCmd struct {
	app *App
}

func (*trading212ListAccountsCmd) Name() string     { return "list-accounts" }
func (*trading212ListAccountsCmd) Synopsis() string { return "list the configured Trading212 accounts" }
func (*trading212ListAccountsCmd) Usage() string {
	return `trading212 list-accounts

  Prints id, name and currency of the accounts in the sync file. No request is made.
`
}

func (c *trading212ListAccountsCmd) SetFlags(f *flag.FlagSet) {}

func (c *trading212ListAccountsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	file, err := e.syncFile()
	if err != nil {
		return c.app.fail(err)
	}

	w := tabwriter.NewWriter(c.app.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCURRENCY")
	for _, acc := range file.Trading212.Accounts {
		currency := acc.Currency
		if currency == "" {
			currency = money.DefaultCurrency
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.ID, acc.Name, currency)
	}
	if err := w.Flush(); err != nil {
		return c.app.fail(err)
	}
	return subcommands.ExitSuccess
}

type trading212GetBalanceCmd struct {
	app *App
}

func (*trading212GetBalanceCmd) Name() string     { return "get-balance" }
func (*trading212GetBalanceCmd) Synopsis() string { return "print the total value of an account" }
func (*trading212GetBalanceCmd) Usage() string {
	return `trading212 get-balance <account-id>
`
}

func (c *trading212GetBalanceCmd) SetFlags(f *flag.FlagSet) {}

func (c *trading212GetBalanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	file, err := e.syncFile()
	if err != nil {
		return c.app.fail(err)
	}
	client, err := e.trading212(file)
	if err != nil {
		return c.app.fail(err)
	}
	account, err := client.GetAccount(f.Arg(0))
	if err != nil {
		return c.app.fail(err)
	}

	balance, err := client.GetBalance(ctx, account)
	if err != nil {
		return c.app.fail(err)
	}

	fmt.Fprintf(c.app.Stdout, "%s: %s\n", account.Name, money.FormatMajor(balance.Total, balance.Currency))
	return subcommands.ExitSuccess
}
