// Package cli holds the actual-sync subcommands and the wiring of the sync
// service to its concrete collaborators.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/internal/infra/gateway/actual"
	"github.com/andrewinci/actual-sync/internal/infra/gateway/ntfy"
	"github.com/andrewinci/actual-sync/internal/infra/gateway/trading212"
	"github.com/andrewinci/actual-sync/internal/infra/gateway/truelayer"
	"github.com/andrewinci/actual-sync/internal/infra/postgres"
	infraRedis "github.com/andrewinci/actual-sync/internal/infra/redis"
	"github.com/andrewinci/actual-sync/internal/platform/sync"
	"github.com/andrewinci/actual-sync/pkg/config"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

// App carries what every command needs: output streams and configuration loading
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// LoadConfig reads the environment configuration
	LoadConfig func() (*config.Config, error)
}

// NewApp returns an App bound to the process streams and environment
func NewApp() *App {
	return &App{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
		LoadConfig: config.Load,
	}
}

// Register adds every command to the commander
func Register(c *subcommands.Commander, app *App) {
	c.Register(&syncCmd{app: app}, "sync")
	c.Register(&serveCmd{app: app}, "sync")

	c.Register(&configCmd{app: app}, "setup")
	c.Register(&ledgerCmd{app: app}, "setup")
	c.Register(&truelayerCmd{app: app}, "setup")
	c.Register(&trading212Cmd{app: app}, "setup")

	c.Register(&tokenCmd{app: app}, "serve")
}

// fail prints err and returns the failure exit status
func (a *App) fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(a.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// ledgerBackend is a ledger the CLI can sync into and create accounts in
type ledgerBackend interface {
	sync.LedgerStore
	CreateAccount(ctx context.Context, name string) (string, error)
}

// env is the per-command runtime: configuration, logger and opened resources
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	closers []func()
}

// setup loads the configuration and builds the logger. Logs go to stderr so
// that command output on stdout stays machine readable.
func (a *App) setup() (*env, error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &env{
		cfg: cfg,
		log: logger.NewWithFormat(cfg.Env, cfg.LogFormat, a.Stderr),
	}, nil
}

// Close releases everything opened through e, most recent first
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// syncFile loads the YAML sync file
func (e *env) syncFile() (*config.SyncFile, error) {
	return config.LoadSyncFile(e.cfg.SyncConfigPath)
}

// ledger opens the configured ledger backend
func (e *env) ledger(ctx context.Context) (ledgerBackend, error) {
	if err := e.cfg.ValidateLedger(); err != nil {
		return nil, err
	}

	switch e.cfg.LedgerBackend {
	case config.LedgerBackendPostgres:
		db, err := postgres.NewPool(ctx, postgres.Config{URL: e.cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, db.Close)
		e.log.Debug("postgres ledger connected")
		return postgres.NewLedgerStore(db.Pool), nil
	default:
		client := actual.NewClient(actual.Config{
			URL:            e.cfg.ActualURL,
			APIKey:         e.cfg.ActualAPIKey,
			SyncID:         e.cfg.ActualSyncID,
			BudgetPassword: e.cfg.ActualBudgetPassword,
		}, e.log)
		return actual.NewLedgerAdapter(client), nil
	}
}

// tokenStore connects to Redis when REDIS_URL is set. A nil store keeps
// rotated TrueLayer tokens in memory for the life of the process.
func (e *env) tokenStore(ctx context.Context) (truelayer.TokenStore, error) {
	if e.cfg.RedisURL == "" {
		return nil, nil
	}

	client, err := infraRedis.NewClient(ctx, e.cfg.RedisURL, e.cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { client.Close() })
	e.log.Debug("redis token store connected")
	return infraRedis.NewTokenStore(client, e.log), nil
}

// trueLayer builds the TrueLayer client over the accounts of file (file may be nil)
func (e *env) trueLayer(ctx context.Context, file *config.SyncFile) (*truelayer.Client, error) {
	if !e.cfg.TrueLayerEnabled() {
		return nil, fmt.Errorf("TRUELAYER_CLIENT_ID and TRUELAYER_CLIENT_SECRET are required")
	}

	store, err := e.tokenStore(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []truelayer.Account
	if file != nil {
		for _, acc := range file.TrueLayer.Accounts {
			accounts = append(accounts, truelayer.Account{
				ID:           acc.ID,
				Name:         acc.Name,
				Type:         acc.Type,
				RefreshToken: acc.RefreshToken,
			})
		}
	}

	return truelayer.NewClient(truelayer.Config{
		ClientID:     e.cfg.TrueLayerClientID,
		ClientSecret: e.cfg.TrueLayerClientSecret,
		RedirectURI:  e.cfg.TrueLayerRedirectURI,
		Accounts:     accounts,
	}, store, e.log), nil
}

// trading212 builds the Trading212 client over the accounts of file
func (e *env) trading212(file *config.SyncFile) (*trading212.Client, error) {
	if !e.cfg.Trading212Enabled() {
		return nil, fmt.Errorf("TRADING212_API_KEY is required")
	}

	var accounts []trading212.Account
	for _, acc := range file.Trading212.Accounts {
		accounts = append(accounts, trading212.Account{
			ID:       acc.ID,
			Name:     acc.Name,
			Currency: acc.Currency,
		})
	}

	return trading212.NewClient(trading212.Config{
		APIKey:   e.cfg.Trading212APIKey,
		Accounts: accounts,
	}, e.log), nil
}

// notifier returns the ntfy notifier, or nil when notifications are off
func (e *env) notifier() (sync.Notifier, error) {
	if !e.cfg.NotifyEnabled {
		return nil, nil
	}

	client, err := ntfy.NewClient(ntfy.Config{
		URL:   e.cfg.NtfyURL,
		Topic: e.cfg.NtfyTopic,
		Token: e.cfg.NtfyToken,
	}, e.log)
	if err != nil {
		return nil, err
	}
	return ntfy.NewNotifierAdapter(client), nil
}

// syncConfig maps the environment settings onto the sync service config
func (e *env) syncConfig() (*sync.Config, error) {
	policy, err := sync.ParseFailurePolicy(e.cfg.SyncFailurePolicy)
	if err != nil {
		return nil, err
	}
	return &sync.Config{
		FailurePolicy: policy,
		CallTimeout:   e.cfg.SyncCallTimeout,
		PollInterval:  e.cfg.SyncPollInterval,
		Enabled:       true,
	}, nil
}

// syncService wires the sync service. Providers without credentials are left
// out; a map entry that needs one then fails the run as a configuration error.
func (e *env) syncService(ctx context.Context) (*sync.Service, ledgerBackend, error) {
	file, err := e.syncFile()
	if err != nil {
		return nil, nil, err
	}

	specs, err := BuildSpecs(file)
	if err != nil {
		return nil, nil, err
	}

	syncCfg, err := e.syncConfig()
	if err != nil {
		return nil, nil, err
	}

	ledger, err := e.ledger(ctx)
	if err != nil {
		return nil, nil, err
	}

	deps := sync.Dependencies{Ledger: ledger}
	if e.cfg.TrueLayerEnabled() {
		client, err := e.trueLayer(ctx, file)
		if err != nil {
			return nil, nil, err
		}
		deps.Bank = truelayer.NewSyncAdapter(client)
	}
	if e.cfg.Trading212Enabled() {
		client, err := e.trading212(file)
		if err != nil {
			return nil, nil, err
		}
		deps.Investment = trading212.NewSyncAdapter(client)
	}
	if deps.Notifier, err = e.notifier(); err != nil {
		return nil, nil, err
	}

	return sync.NewService(syncCfg, specs, deps, e.log), ledger, nil
}

// BuildSpecs turns the sync map of file into account sync specs, in file order
func BuildSpecs(file *config.SyncFile) ([]sync.AccountSyncSpec, error) {
	specs := make([]sync.AccountSyncSpec, 0, len(file.Sync.Map))
	for _, entry := range file.Sync.Map {
		spec, err := sync.NewAccountSyncSpec(
			entry.Name,
			entry.TrueLayerAccountID,
			entry.Trading212AccountID,
			entry.ActualAccountID,
			sync.MapConfig{InvertAmount: entry.MapConfig.InvertAmount},
		)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
