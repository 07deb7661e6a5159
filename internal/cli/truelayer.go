package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/andrewinci/actual-sync/pkg/config"
	"github.com/andrewinci/actual-sync/pkg/money"
)

// truelayerCmd is a container for TrueLayer commands
type truelayerCmd struct {
	app *App
}

func (*truelayerCmd) Name() string     { return "truelayer" }
func (*truelayerCmd) Synopsis() string { return "connect and inspect TrueLayer accounts" }
func (*truelayerCmd) Usage() string {
	return `truelayer <subcommand> [args]

Commands:
  add-account       - Connect a bank or card through the TrueLayer consent page.
  list-accounts     - List the TrueLayer accounts in the sync file.
  list-transactions - Print the transactions of an account.
  get-balance       - Print the current balance of an account.
`
}

func (c *truelayerCmd) SetFlags(f *flag.FlagSet) {}
func (c *truelayerCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	commander := subcommands.NewCommander(f, "truelayer")
	commander.Register(&truelayerAddAccountCmd{app: c.app}, "")
	commander.Register(&truelayerListAccountsCmd{app: c.app}, "")
	commander.Register(&truelayerListTransactionsCmd{app: c.app}, "")
	commander.Register(&truelayerGetBalanceCmd{app: c.app}, "")
	return commander.Execute(ctx, args...)
}

type truelayerAddAccountCmd struct {
	app  *App
	save bool
}

func (*truelayerAddAccountCmd) Name() string     { return "add-account" }
func (*truelayerAddAccountCmd) Synopsis() string { return "connect a bank or card" }
func (*truelayerAddAccountCmd) Usage() string {
	return `truelayer add-account [-save]

  Prints the TrueLayer consent URL, reads the authorization code from stdin
  and prints the discovered accounts as YAML for the truelayer.accounts
  section of the sync file. With -save the accounts are appended to the
  sync file directly.
`
}

func (c *truelayerAddAccountCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.save, "save", false, "Append the discovered accounts to the sync file.")
}

func (c *truelayerAddAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	client, err := e.trueLayer(ctx, nil)
	if err != nil {
		return c.app.fail(err)
	}

	fmt.Fprintf(c.app.Stderr, "Open this URL and grant access:\n\n  %s\n\nThen paste the authorization code: ", client.AuthCodeURL(uuid.NewString()))
	code, err := bufio.NewReader(c.app.Stdin).ReadString('\n')
	code = strings.TrimSpace(code)
	if code == "" {
		if err == nil {
			err = fmt.Errorf("no authorization code given")
		}
		return c.app.fail(err)
	}

	token, err := client.Exchange(ctx, code)
	if err != nil {
		return c.app.fail(err)
	}

	discovered, err := client.DiscoverAccounts(ctx, token)
	if err != nil {
		return c.app.fail(err)
	}

	accounts := make([]config.TrueLayerAccount, 0, len(discovered))
	for _, acc := range discovered {
		accounts = append(accounts, config.TrueLayerAccount{
			ID:           acc.ID,
			Name:         acc.Name,
			Type:         acc.Type,
			RefreshToken: acc.RefreshToken,
		})
	}

	if c.save {
		file, err := e.syncFile()
		if err != nil {
			return c.app.fail(err)
		}
		for _, acc := range accounts {
			if _, exists := file.GetTrueLayerAccount(acc.ID); exists {
				return c.app.fail(fmt.Errorf("truelayer account %s is already in %s", acc.ID, e.cfg.SyncConfigPath))
			}
		}
		file.TrueLayer.Accounts = append(file.TrueLayer.Accounts, accounts...)
		if err := config.WriteSyncFile(e.cfg.SyncConfigPath, file, true); err != nil {
			return c.app.fail(err)
		}
		fmt.Fprintf(c.app.Stdout, "Added %d account(s) to %s\n", len(accounts), e.cfg.SyncConfigPath)
		return subcommands.ExitSuccess
	}

	out, err := yaml.Marshal(accounts)
	if err != nil {
		return c.app.fail(err)
	}
	fmt.Fprint(c.app.Stdout, string(out))
	return subcommands.ExitSuccess
}

type truelayerListAccountsCmd struct {
	app *App
}

func (*truelayerListAccountsCmd) Name() string     { return "list-accounts" }
func (*truelayerListAccountsCmd) Synopsis() string { return "list the configured TrueLayer accounts" }
func (*truelayerListAccountsCmd) Usage() string {
	return `truelayer list-accounts

  Prints id, name and type of the accounts in the sync file. No request is made.
`
}

func (c *truelayerListAccountsCmd) SetFlags(f *flag.FlagSet) {}

func (c *truelayerListAccountsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	fmt.Fprintln(w, "ID\tNAME\tTYPE")
	for _, acc := range file.TrueLayer.Accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.ID, acc.Name, acc.Type)
	}
	if err := w.Flush(); err != nil {
		return c.app.fail(err)
	}
	return subcommands.ExitSuccess
}

type truelayerListTransactionsCmd struct {
	app *App
}

func (*truelayerListTransactionsCmd) Name() string     { return "list-transactions" }
func (*truelayerListTransactionsCmd) Synopsis() string { return "print the transactions of an account" }
func (*truelayerListTransactionsCmd) Usage() string {
	return `truelayer list-transactions <account-id>
`
}

func (c *truelayerListTransactionsCmd) SetFlags(f *flag.FlagSet) {}

func (c *truelayerListTransactionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	client, err := e.trueLayer(ctx, file)
	if err != nil {
		return c.app.fail(err)
	}
	account, err := client.GetAccount(f.Arg(0))
	if err != nil {
		return c.app.fail(err)
	}

	txs, err := client.GetTransactions(ctx, account)
	if err != nil {
		return c.app.fail(err)
	}

	w := tabwriter.NewWriter(c.app.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tAMOUNT\tDESCRIPTION\tID")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			tx.Timestamp.UTC().Format("2006-01-02"),
			money.FormatMajor(tx.Amount, tx.Currency),
			tx.Description,
			tx.TransactionID)
	}
	if err := w.Flush(); err != nil {
		return c.app.fail(err)
	}
	return subcommands.ExitSuccess
}

type truelayerGetBalanceCmd struct {
	app *App
}

func (*truelayerGetBalanceCmd) Name() string     { return "get-balance" }
func (*truelayerGetBalanceCmd) Synopsis() string { return "print the current balance of an account" }
func (*truelayerGetBalanceCmd) Usage() string {
	return `truelayer get-balance <account-id>
`
}

func (c *truelayerGetBalanceCmd) SetFlags(f *flag.FlagSet) {}

func (c *truelayerGetBalanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	client, err := e.trueLayer(ctx, file)
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

	fmt.Fprintf(c.app.Stdout, "%s (%s): current %s, available %s\n",
		account.Name, account.Type,
		money.FormatMajor(balance.Current, balance.Currency),
		money.FormatMajor(balance.Available, balance.Currency))
	return subcommands.ExitSuccess
}
