package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pkgsync "github.com/andrewinci/actual-sync/internal/platform/sync"
)

// =============================================================================
// Helper to create a Service with mocks
// =============================================================================

var (
	checkingAccount = pkgsync.BankAccount{ID: "TL1", Name: "Monzo", Kind: pkgsync.KindAccount}
	cardAccount     = pkgsync.BankAccount{ID: "TL2", Name: "Amex", Kind: pkgsync.KindCard}
	isaAccount      = pkgsync.InvestmentAccount{ID: "T212", Name: "Invest", Currency: "GBP"}
)

func newTestService(
	policy pkgsync.FailurePolicy,
	specs []pkgsync.AccountSyncSpec,
	deps pkgsync.Dependencies,
) *pkgsync.Service {
	config := pkgsync.DefaultConfig()
	config.FailurePolicy = policy
	config.CallTimeout = time.Second

	svc := pkgsync.NewService(config, specs, deps, testLogger())
	svc.SetClock(func() time.Time { return reconcileDay })
	return svc
}

func coffee() pkgsync.RawTransaction {
	return pkgsync.RawTransaction{
		Timestamp:   time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Description: "Coffee",
		Amount:      decimal.RequireFromString("10.00"),
		ExternalID:  "tl-tx-1",
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestSync_EndToEnd_SingleBankAccount(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1", Name: "Current"})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).Return([]pkgsync.RawTransaction{coffee()}, nil)
	bank.On("GetBalance", mock.Anything, checkingAccount).Return(decimal.RequireFromString("10.00"), nil)

	specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Bank: bank})

	result, err := svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountSyncs)
	assert.Equal(t, 1, result.NewTransactions)
	assert.Equal(t, 0, result.BalanceMismatches)
	assert.False(t, result.HasIssues())

	require.Len(t, ledger.imports, 1)
	imported := ledger.imports[0][0]
	assert.Equal(t, "2025-01-05", imported.Date)
	assert.Equal(t, int64(1000), imported.Amount)
	assert.Equal(t, "Coffee", imported.Note)
	assert.Equal(t, "A1", imported.DestinationAccountID)

	bank.AssertExpectations(t)
}

func TestSync_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).Return([]pkgsync.RawTransaction{coffee()}, nil)
	bank.On("GetBalance", mock.Anything, checkingAccount).Return(decimal.RequireFromString("10.00"), nil)

	specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Bank: bank})

	first, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewTransactions)

	second, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewTransactions)
	assert.Equal(t, 0, second.BalanceMismatches)
	assert.Len(t, ledger.transactions("A1"), 1)
}

func TestSync_UnknownDestination_AbortsBeforeProviderCalls(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})
	bank := new(MockBankProvider)
	investment := new(MockInvestmentProvider)
	notifier := new(MockNotifier)

	specs := []pkgsync.AccountSyncSpec{
		mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{}),
		mustSpec("ISA", "", "T212", "missing", pkgsync.MapConfig{}),
	}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{
		Ledger: ledger, Bank: bank, Investment: investment, Notifier: notifier,
	})

	result, err := svc.Sync(ctx)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pkgsync.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "ISA")
	assert.Contains(t, err.Error(), "missing")

	bank.AssertNotCalled(t, "ListAccounts", mock.Anything)
	bank.AssertNotCalled(t, "GetTransactions", mock.Anything, mock.Anything)
	investment.AssertNotCalled(t, "ListAccounts", mock.Anything)
	notifier.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
	assert.Empty(t, ledger.imports)

	_, ok := svc.LastResult()
	assert.False(t, ok)
}

func TestSync_ProviderNotConfigured(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})
	specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger})

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, pkgsync.IsConfigurationError(err))
}

func TestSync_UnknownSourceIsFatalUnderContinue(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})
	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)

	specs := []pkgsync.AccountSyncSpec{mustSpec("Ghost", "TL9", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Bank: bank})

	result, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pkgsync.IsConfigurationError(err))
}

func TestSync_MixedAccounts_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(
		pkgsync.LedgerAccount{ID: "A1", Name: "Current"},
		pkgsync.LedgerAccount{ID: "A2", Name: "Amex"},
		pkgsync.LedgerAccount{ID: "A3", Name: "ISA"},
	)

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount, cardAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).Return([]pkgsync.RawTransaction{coffee()}, nil)
	// Checking is off by one pound
	bank.On("GetBalance", mock.Anything, checkingAccount).Return(decimal.RequireFromString("11.00"), nil)

	card := pkgsync.RawTransaction{
		Timestamp:   time.Date(2025, 1, 4, 18, 0, 0, 0, time.UTC),
		Description: "Groceries",
		Amount:      decimal.RequireFromString("42.00"),
		ExternalID:  "tl-card-1",
	}
	bank.On("GetTransactions", mock.Anything, cardAccount).Return([]pkgsync.RawTransaction{card}, nil)
	bank.On("GetBalance", mock.Anything, cardAccount).Return(decimal.RequireFromString("42.00"), nil)

	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)
	investment.On("GetBalance", mock.Anything, isaAccount).
		Return(pkgsync.InvestmentBalance{Total: decimal.RequireFromString("250.00"), Currency: "GBP"}, nil)

	notifier := new(MockNotifier)
	notifier.On("Post", mock.Anything, mock.Anything).Return(nil)

	specs := []pkgsync.AccountSyncSpec{
		mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{}),
		mustSpec("Amex", "TL2", "", "A2", pkgsync.MapConfig{InvertAmount: true}),
		mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{}),
	}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{
		Ledger: ledger, Bank: bank, Investment: investment, Notifier: notifier,
	})

	result, err := svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.AccountSyncs)
	assert.Equal(t, 3, result.NewTransactions) // two bank imports + one adjustment
	assert.Equal(t, 1, result.BalanceMismatches)
	assert.Equal(t, []string{"Checking"}, result.MismatchedBanks)

	// Card amounts are inverted: spending lowers the ledger balance
	amex := ledger.transactions("A2")
	require.Len(t, amex, 1)
	assert.Equal(t, int64(-4200), amex[0].Amount)

	isa := ledger.transactions("A3")
	require.Len(t, isa, 1)
	assert.Equal(t, int64(25000), isa[0].Amount)
	assert.Equal(t, "trading212-reconcile-T212-20250105", isa[0].ExternalID)

	notifier.AssertCalled(t, "Post", mock.Anything, mock.MatchedBy(func(n pkgsync.Notification) bool {
		return n.Title == "Actual sync completed with issues" && n.Priority == pkgsync.PriorityHigh
	}))
}

func TestSync_ContinuePolicy_CollectsFailures(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"}, pkgsync.LedgerAccount{ID: "A3"})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).
		Return([]pkgsync.RawTransaction(nil), errors.New("truelayer: 503"))

	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)
	investment.On("GetBalance", mock.Anything, isaAccount).
		Return(pkgsync.InvestmentBalance{Total: decimal.Zero, Currency: "GBP"}, nil)

	notifier := new(MockNotifier)
	notifier.On("Post", mock.Anything, mock.Anything).Return(nil)

	specs := []pkgsync.AccountSyncSpec{
		mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{}),
		mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{}),
	}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{
		Ledger: ledger, Bank: bank, Investment: investment, Notifier: notifier,
	})

	result, err := svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountSyncs)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "Checking", result.Failed[0].Name)
	assert.True(t, pkgsync.IsProviderRequestError(result.Failed[0].Err))
	assert.True(t, result.HasIssues())

	investment.AssertCalled(t, "GetBalance", mock.Anything, isaAccount)
	notifier.AssertNumberOfCalls(t, "Post", 1)

	last, ok := svc.LastResult()
	require.True(t, ok)
	assert.Equal(t, result.RunID, last.RunID)
}

func TestSync_AbortPolicy_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"}, pkgsync.LedgerAccount{ID: "A3"})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).
		Return([]pkgsync.RawTransaction(nil), errors.New("truelayer: 503"))

	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)

	notifier := new(MockNotifier)

	specs := []pkgsync.AccountSyncSpec{
		mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{}),
		mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{}),
	}
	svc := newTestService(pkgsync.FailurePolicyAbort, specs, pkgsync.Dependencies{
		Ledger: ledger, Bank: bank, Investment: investment, Notifier: notifier,
	})

	result, err := svc.Sync(ctx)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pkgsync.IsProviderRequestError(err))
	assert.Contains(t, err.Error(), "Checking")

	investment.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestNewService_DefaultsToAbort(t *testing.T) {
	for name, config := range map[string]*pkgsync.Config{
		"Nil_Config":     nil,
		"Unknown_Policy": {FailurePolicy: "ABORT", CallTimeout: time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})

			bank := new(MockBankProvider)
			bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
			bank.On("GetTransactions", mock.Anything, checkingAccount).
				Return([]pkgsync.RawTransaction(nil), errors.New("truelayer: 503"))

			specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
			svc := pkgsync.NewService(config, specs, pkgsync.Dependencies{Ledger: ledger, Bank: bank}, testLogger())

			result, err := svc.Sync(context.Background())

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, pkgsync.IsProviderRequestError(err))
		})
	}
}

func TestSync_ProviderListingFailure(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"}, pkgsync.LedgerAccount{ID: "A3"})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount(nil), errors.New("token expired"))

	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)
	investment.On("GetBalance", mock.Anything, isaAccount).
		Return(pkgsync.InvestmentBalance{Total: decimal.Zero, Currency: "GBP"}, nil)

	specs := []pkgsync.AccountSyncSpec{
		mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{}),
		mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{}),
	}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{
		Ledger: ledger, Bank: bank, Investment: investment,
	})

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, "Checking", result.Failed[0].Name)
	assert.Contains(t, result.Failed[0].Err.Error(), "token expired")
	assert.Equal(t, 1, result.AccountSyncs)
}

func TestSync_LedgerUnavailable(t *testing.T) {
	ledger := newFakeLedger()
	ledger.listErr = errors.New("connection refused")

	specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Bank: new(MockBankProvider)})

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, pkgsync.IsProviderRequestError(err))
}

func TestSync_NotifierFailureDoesNotFailRun(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A3"})

	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)
	investment.On("GetBalance", mock.Anything, isaAccount).
		Return(pkgsync.InvestmentBalance{Total: decimal.Zero, Currency: "GBP"}, nil)

	notifier := new(MockNotifier)
	notifier.On("Post", mock.Anything, mock.Anything).Return(errors.New("ntfy: 500"))

	specs := []pkgsync.AccountSyncSpec{mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{
		Ledger: ledger, Investment: investment, Notifier: notifier,
	})

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountSyncs)
	notifier.AssertExpectations(t)
}

func TestSync_RejectsConcurrentRun(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A1"})

	started := make(chan struct{})
	release := make(chan struct{})

	bank := new(MockBankProvider)
	bank.On("ListAccounts", mock.Anything).Return([]pkgsync.BankAccount{checkingAccount}, nil)
	bank.On("GetTransactions", mock.Anything, checkingAccount).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]pkgsync.RawTransaction(nil), nil)
	bank.On("GetBalance", mock.Anything, checkingAccount).Return(decimal.Zero, nil)

	specs := []pkgsync.AccountSyncSpec{mustSpec("Checking", "TL1", "", "A1", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Bank: bank})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Sync(context.Background())
		done <- err
	}()

	<-started
	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, pkgsync.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestSync_CancelledContext(t *testing.T) {
	ledger := newFakeLedger(pkgsync.LedgerAccount{ID: "A3"})
	investment := new(MockInvestmentProvider)
	investment.On("ListAccounts", mock.Anything).Return([]pkgsync.InvestmentAccount{isaAccount}, nil)

	specs := []pkgsync.AccountSyncSpec{mustSpec("ISA", "", "T212", "A3", pkgsync.MapConfig{})}
	svc := newTestService(pkgsync.FailurePolicyContinue, specs, pkgsync.Dependencies{Ledger: ledger, Investment: investment})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Sync(ctx)
	require.Error(t, err)
	investment.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestService_RunAndStop(t *testing.T) {
	ledger := newFakeLedger()
	config := pkgsync.DefaultConfig()
	config.PollInterval = time.Hour

	svc := pkgsync.NewService(config, nil, pkgsync.Dependencies{Ledger: ledger}, testLogger())

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := svc.LastResult()
		return ok
	}, time.Second, 10*time.Millisecond)

	svc.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
