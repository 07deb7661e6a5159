package sync_test

import (
	"context"
	"io"
	"sort"
	gosync "sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test", io.Discard)
}

// =============================================================================
// Mock Bank Provider
// =============================================================================

type MockBankProvider struct {
	mock.Mock
}

func (m *MockBankProvider) ListAccounts(ctx context.Context) ([]sync.BankAccount, error) {
	args := m.Called(ctx)
	return args.Get(0).([]sync.BankAccount), args.Error(1)
}

func (m *MockBankProvider) GetTransactions(ctx context.Context, account sync.BankAccount) ([]sync.RawTransaction, error) {
	args := m.Called(ctx, account)
	return args.Get(0).([]sync.RawTransaction), args.Error(1)
}

func (m *MockBankProvider) GetBalance(ctx context.Context, account sync.BankAccount) (decimal.Decimal, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

var _ sync.BankProvider = (*MockBankProvider)(nil)

// =============================================================================
// Mock Investment Provider
// =============================================================================

type MockInvestmentProvider struct {
	mock.Mock
}

func (m *MockInvestmentProvider) ListAccounts(ctx context.Context) ([]sync.InvestmentAccount, error) {
	args := m.Called(ctx)
	return args.Get(0).([]sync.InvestmentAccount), args.Error(1)
}

func (m *MockInvestmentProvider) GetBalance(ctx context.Context, account sync.InvestmentAccount) (sync.InvestmentBalance, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(sync.InvestmentBalance), args.Error(1)
}

var _ sync.InvestmentProvider = (*MockInvestmentProvider)(nil)

// =============================================================================
// Mock Notifier
// =============================================================================

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Post(ctx context.Context, n sync.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

var _ sync.Notifier = (*MockNotifier)(nil)

// =============================================================================
// Fake Ledger
// =============================================================================

// fakeLedger behaves like the real ledger: imports upsert on ExternalID, and the
// balance is the sum of the account's transactions.
type fakeLedger struct {
	mu       gosync.Mutex
	accounts []sync.LedgerAccount
	txs      map[string]map[string]sync.NormalizedTransaction // account -> external id -> tx
	imports  [][]sync.NormalizedTransaction
	calls    int

	listErr   error
	importErr error
}

func newFakeLedger(accounts ...sync.LedgerAccount) *fakeLedger {
	return &fakeLedger{
		accounts: accounts,
		txs:      make(map[string]map[string]sync.NormalizedTransaction),
	}
}

func (f *fakeLedger) ListAccounts(ctx context.Context) ([]sync.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]sync.LedgerAccount(nil), f.accounts...), nil
}

func (f *fakeLedger) ImportTransactions(ctx context.Context, accountID string, txs []sync.NormalizedTransaction) (sync.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.importErr != nil {
		return sync.ImportResult{}, f.importErr
	}

	f.imports = append(f.imports, append([]sync.NormalizedTransaction(nil), txs...))

	byID, ok := f.txs[accountID]
	if !ok {
		byID = make(map[string]sync.NormalizedTransaction)
		f.txs[accountID] = byID
	}

	var result sync.ImportResult
	for _, tx := range txs {
		if _, exists := byID[tx.ExternalID]; exists {
			result.Updated++
		} else {
			result.Added++
		}
		byID[tx.ExternalID] = tx
	}
	return result, nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var total int64
	for _, tx := range f.txs[accountID] {
		total += tx.Amount
	}
	return total, nil
}

// seed stores a transaction directly, bypassing import accounting
func (f *fakeLedger) seed(accountID string, tx sync.NormalizedTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txs[accountID] == nil {
		f.txs[accountID] = make(map[string]sync.NormalizedTransaction)
	}
	f.txs[accountID][tx.ExternalID] = tx
}

// transactions returns the account's stored transactions sorted by external id
func (f *fakeLedger) transactions(accountID string) []sync.NormalizedTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sync.NormalizedTransaction, 0, len(f.txs[accountID]))
	for _, tx := range f.txs[accountID] {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

var _ sync.LedgerStore = (*fakeLedger)(nil)

// =============================================================================
// Helpers
// =============================================================================

func mustSpec(name, tl, t212, dest string, cfg sync.MapConfig) sync.AccountSyncSpec {
	spec, err := sync.NewAccountSyncSpec(name, tl, t212, dest, cfg)
	if err != nil {
		panic(err)
	}
	return spec
}
