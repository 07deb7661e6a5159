package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/pkg/money"
)

// ledgerCmd is a container for ledger commands
type ledgerCmd struct {
	app *App
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "inspect and set up ledger accounts" }
func (*ledgerCmd) Usage() string {
	return `ledger <subcommand> [args]

Commands:
  list-accounts - List the open ledger accounts with their balance.
  add-account   - Create a ledger account.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {}
func (c *ledgerCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	commander := subcommands.NewCommander(f, "ledger")
	commander.Register(&ledgerListAccountsCmd{app: c.app}, "")
	commander.Register(&ledgerAddAccountCmd{app: c.app}, "")
	return commander.Execute(ctx, args...)
}

type ledgerListAccountsCmd struct {
	app *App
}

func (*ledgerListAccountsCmd) Name() string     { return "list-accounts" }
func (*ledgerListAccountsCmd) Synopsis() string { return "list the open ledger accounts" }
func (*ledgerListAccountsCmd) Usage() string {
	return `ledger list-accounts

  Prints id, name and balance of every open account. Use the id as
  actualAccountId in the sync map.
`
}

func (c *ledgerListAccountsCmd) SetFlags(f *flag.FlagSet) {}

func (c *ledgerListAccountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	ledger, err := e.ledger(ctx)
	if err != nil {
		return c.app.fail(err)
	}

	accounts, err := ledger.ListAccounts(ctx)
	if err != nil {
		return c.app.fail(err)
	}

	w := tabwriter.NewWriter(c.app.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBALANCE")
	for _, acc := range accounts {
		balance, err := ledger.GetBalance(ctx, acc.ID)
		if err != nil {
			return c.app.fail(fmt.Errorf("balance of %s: %w", acc.Name, err))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.ID, acc.Name, money.Format(balance, money.DefaultCurrency))
	}
	if err := w.Flush(); err != nil {
		return c.app.fail(err)
	}
	return subcommands.ExitSuccess
}

type ledgerAddAccountCmd struct {
	app  *App
	name string
}

func (*ledgerAddAccountCmd) Name() string     { return "add-account" }
func (*ledgerAddAccountCmd) Synopsis() string { return "create a ledger account" }
func (*ledgerAddAccountCmd) Usage() string {
	return `ledger add-account -name <name>

  Creates an on-budget account and prints its id.
`
}

func (c *ledgerAddAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Name of the new account.")
}

func (c *ledgerAddAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprint(c.app.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	ledger, err := e.ledger(ctx)
	if err != nil {
		return c.app.fail(err)
	}

	id, err := ledger.CreateAccount(ctx, c.name)
	if err != nil {
		return c.app.fail(err)
	}

	fmt.Fprintln(c.app.Stdout, id)
	return subcommands.ExitSuccess
}
