package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

// entryState is logged as each spec moves through a run
type entryState string

const (
	stateResolving  entryState = "resolving"
	stateProcessing entryState = "processing"
	stateDone       entryState = "done"
	stateFailed     entryState = "failed"
)

// Dependencies are the collaborators of a sync run. Bank, Investment and
// Notifier may be nil when the corresponding integration is not configured.
type Dependencies struct {
	Ledger     LedgerStore
	Bank       BankProvider
	Investment InvestmentProvider
	Notifier   Notifier
}

// Service walks the configured account map and reconciles each entry into the ledger
type Service struct {
	config     *Config
	specs      []AccountSyncSpec
	ledger     LedgerStore
	bank       BankProvider
	investment InvestmentProvider
	reconciler *Reconciler
	decider    *NotificationDecider
	logger     *logger.Logger
	now        func() time.Time

	runMu   sync.Mutex // held for the duration of one run
	mu      sync.RWMutex
	last    *RunResult
	running bool
	stopCh  chan struct{}
}

// NewService creates a new sync service
func NewService(config *Config, specs []AccountSyncSpec, deps Dependencies, log *logger.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		log.Warn("invalid sync config, falling back to abort on failure", "error", err)
	}

	return &Service{
		config:     config,
		specs:      append([]AccountSyncSpec(nil), specs...),
		ledger:     deps.Ledger,
		bank:       deps.Bank,
		investment: deps.Investment,
		reconciler: NewReconciler(deps.Ledger, deps.Bank, deps.Investment, config.CallTimeout, log),
		decider:    NewNotificationDecider(deps.Notifier, log),
		logger:     log.WithField("service", "sync"),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// SetClock overrides the wall clock used to date adjustments
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Specs returns the configured account map in processing order
func (s *Service) Specs() []AccountSyncSpec {
	return append([]AccountSyncSpec(nil), s.specs...)
}

// LastResult returns the summary of the most recent completed run
func (s *Service) LastResult() (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunResult{}, false
	}
	return *s.last, true
}

// runState is what a run learns before processing entries
type runState struct {
	resolver      *AccountResolver
	bankErr       error
	investmentErr error
}

// Sync performs one full run over the account map, in configuration order.
// Configuration errors abort the run before any provider is called. Provider
// errors abort under FailurePolicyAbort and are collected in RunResult.Failed
// under FailurePolicyContinue. A notification is sent only for completed runs.
func (s *Service) Sync(ctx context.Context) (*RunResult, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	// One "today" per run: every adjustment id in this run derives from it.
	today := s.now()
	runID := uuid.New()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID.String())
	log := s.logger.WithContext(ctx)

	log.Info("starting sync run",
		"entries", len(s.specs),
		"failure_policy", s.config.FailurePolicy)

	state, err := s.prepare(ctx)
	if err != nil {
		log.Error("sync run aborted", "error", err)
		return nil, err
	}

	result := RunResult{RunID: runID, StartedAt: today}
	for _, spec := range s.specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := s.syncEntry(ctx, state, spec, today)
		if outcome.Err != nil {
			if IsConfigurationError(outcome.Err) || s.config.FailurePolicy == FailurePolicyAbort {
				log.Error("sync run aborted", "account", spec.Name, "error", outcome.Err)
				return nil, outcome.Err
			}
		}
		result = result.With(outcome)
	}
	result.FinishedAt = s.now()

	log.Info("sync run completed",
		"account_syncs", result.AccountSyncs,
		"new_transactions", result.NewTransactions,
		"balance_mismatches", result.BalanceMismatches,
		"failed", len(result.Failed),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds())

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	s.decider.Dispatch(ctx, result)

	return &result, nil
}

// prepare validates every spec and resolves every destination against the
// ledger before any provider is contacted, then lists the provider accounts
// the map actually needs.
func (s *Service) prepare(ctx context.Context) (*runState, error) {
	for _, spec := range s.specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}

	var ledgerAccounts []LedgerAccount
	err := bounded(ctx, s.config.CallTimeout, func(ctx context.Context) error {
		var err error
		ledgerAccounts, err = s.ledger.ListAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, &ProviderRequestError{Op: "list ledger accounts", Err: err}
	}

	state := &runState{resolver: NewAccountResolver(ledgerAccounts)}

	var needBank, needInvestment bool
	for _, spec := range s.specs {
		if _, err := state.resolver.ResolveDestination(spec); err != nil {
			return nil, err
		}
		switch ref := spec.Source.(type) {
		case BankAccountRef:
			if s.bank == nil {
				return nil, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "truelayer provider is not configured"}
			}
			needBank = true
		case InvestmentAccountRef:
			if s.investment == nil {
				return nil, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "trading212 provider is not configured"}
			}
			needInvestment = true
		}
	}

	if needBank {
		var accounts []BankAccount
		err := bounded(ctx, s.config.CallTimeout, func(ctx context.Context) error {
			var err error
			accounts, err = s.bank.ListAccounts(ctx)
			return err
		})
		if err != nil {
			state.bankErr = err
		} else {
			state.resolver.WithBankAccounts(accounts)
		}
	}

	if needInvestment {
		var accounts []InvestmentAccount
		err := bounded(ctx, s.config.CallTimeout, func(ctx context.Context) error {
			var err error
			accounts, err = s.investment.ListAccounts(ctx)
			return err
		})
		if err != nil {
			state.investmentErr = err
		} else {
			state.resolver.WithInvestmentAccounts(accounts)
		}
	}

	return state, nil
}

// syncEntry processes one spec and reports its contribution to the run
func (s *Service) syncEntry(ctx context.Context, state *runState, spec AccountSyncSpec, today time.Time) EntryOutcome {
	ctx = context.WithValue(ctx, logger.AccountKey, spec.Name)
	log := s.logger.WithContext(ctx).WithField("provider", spec.Source.Provider())

	fail := func(err error) EntryOutcome {
		log.Error("account sync failed", "state", stateFailed, "error", err)
		return EntryOutcome{Name: spec.Name, Err: err}
	}

	log.Info("sync transactions for account", "state", stateResolving)

	switch spec.Source.(type) {
	case BankAccountRef:
		if state.bankErr != nil {
			return fail(&ProviderRequestError{Spec: spec.Name, Op: "list truelayer accounts", Err: state.bankErr})
		}
	case InvestmentAccountRef:
		if state.investmentErr != nil {
			return fail(&ProviderRequestError{Spec: spec.Name, Op: "list trading212 accounts", Err: state.investmentErr})
		}
	}

	resolved, err := state.resolver.Resolve(spec)
	if err != nil {
		return fail(err)
	}

	log.Debug("accounts resolved", "state", stateProcessing, "destination", resolved.Destination.Name)

	var outcome EntryOutcome
	switch src := resolved.Source.(type) {
	case ResolvedBank:
		outcome = s.syncBank(ctx, spec, src.Account, resolved.Destination)
	case ResolvedInvestment:
		outcome = s.syncInvestment(ctx, spec, src.Account, resolved.Destination, today)
	default:
		return fail(&ConfigurationError{Spec: spec.Name, Reason: "unsupported source reference"})
	}
	if outcome.Err != nil {
		return fail(outcome.Err)
	}

	log.Info("account sync done",
		"state", stateDone,
		"added", outcome.Added,
		"balance_matched", !outcome.Mismatch)
	return outcome
}

// syncBank imports the provider's transactions and verifies the balance
func (s *Service) syncBank(ctx context.Context, spec AccountSyncSpec, account BankAccount, destination LedgerAccount) EntryOutcome {
	log := s.logger.WithContext(ctx)

	var raw []RawTransaction
	err := bounded(ctx, s.config.CallTimeout, func(ctx context.Context) error {
		var err error
		raw, err = s.bank.GetTransactions(ctx, account)
		return err
	})
	if err != nil {
		return EntryOutcome{Name: spec.Name, Err: &ProviderRequestError{Spec: spec.Name, Op: "get transactions", Err: err}}
	}

	txs := NormalizeAll(raw, destination.ID, spec.MapConfig)

	var report ImportResult
	if len(txs) > 0 {
		report, err = s.reconciler.importBatch(ctx, spec, destination.ID, txs)
		if err != nil {
			return EntryOutcome{Name: spec.Name, Err: err}
		}
	}

	log.Info("import report",
		"fetched", len(raw),
		"added", report.Added,
		"updated", report.Updated,
		"updated_preview", report.UpdatedPreview,
		"errors", report.Errors)
	if report.Errors > 0 {
		log.Warn("ledger reported import errors", "errors", report.Errors)
	}

	rec, err := s.reconciler.ReconcileBank(ctx, spec, account, destination)
	if err != nil {
		return EntryOutcome{Name: spec.Name, Err: err}
	}

	return EntryOutcome{Name: spec.Name, Added: report.Added, Mismatch: !rec.Matched}
}

// syncInvestment has no transaction stream: it reconciles the balance directly
func (s *Service) syncInvestment(ctx context.Context, spec AccountSyncSpec, account InvestmentAccount, destination LedgerAccount, today time.Time) EntryOutcome {
	rec, err := s.reconciler.ReconcileInvestment(ctx, spec, account, destination, today)
	if err != nil {
		return EntryOutcome{Name: spec.Name, Err: err}
	}
	return EntryOutcome{Name: spec.Name, Added: rec.Added, Mismatch: !rec.Matched}
}

// Run starts the periodic sync loop used by serve mode
func (s *Service) Run(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("sync service is disabled")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting sync service", "poll_interval", s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Do an initial sync immediately
	s.runScheduled(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopping (context done)")
			s.markStopped()
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopping (stop signal)")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

// Stop stops the sync loop
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
	s.running = false
}

func (s *Service) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Service) runScheduled(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
	}
}
