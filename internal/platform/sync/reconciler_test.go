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

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

var reconcileDay = time.Date(2025, 1, 5, 9, 30, 0, 0, time.UTC)

// =============================================================================
// Balance comparison
// =============================================================================

func TestBalanceSnapshot_SignConvention(t *testing.T) {
	card := sync.NewBalanceSnapshot(decimal.RequireFromString("-42.00"), 4200, sync.KindCard)
	assert.True(t, card.Matches())
	assert.Equal(t, int64(-1), card.SignMultiplier)

	account := sync.NewBalanceSnapshot(decimal.RequireFromString("42.00"), 4200, sync.KindAccount)
	assert.True(t, account.Matches())

	wrongSign := sync.NewBalanceSnapshot(decimal.RequireFromString("42.00"), 4200, sync.KindCard)
	assert.False(t, wrongSign.Matches())
}

func TestBalanceSnapshot_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		provider string
		want     bool
	}{
		{"42.000", true},
		{"42.004", true},
		{"41.996", true},
		{"42.005", false},
		{"41.995", false},
		{"42.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			s := sync.NewBalanceSnapshot(decimal.RequireFromString(tt.provider), 4200, sync.KindAccount)
			assert.Equal(t, tt.want, s.Matches())
		})
	}
}

func TestInvestmentDifference(t *testing.T) {
	assert.Equal(t, int64(150), sync.InvestmentDifference(decimal.RequireFromString("101.50"), 10000))
	assert.Equal(t, int64(-1), sync.InvestmentDifference(decimal.RequireFromString("99.99"), 10000))
	assert.Equal(t, int64(1), sync.InvestmentDifference(decimal.RequireFromString("100.005"), 10000))
}

func TestAdjustmentExternalID(t *testing.T) {
	late := time.Date(2025, 1, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "trading212-reconcile-T212-20250105", sync.AdjustmentExternalID(sync.ProviderTrading212, "T212", reconcileDay))
	assert.Equal(t,
		sync.AdjustmentExternalID(sync.ProviderTrading212, "T212", reconcileDay),
		sync.AdjustmentExternalID(sync.ProviderTrading212, "T212", late))
	assert.NotEqual(t,
		sync.AdjustmentExternalID(sync.ProviderTrading212, "T212", reconcileDay),
		sync.AdjustmentExternalID(sync.ProviderTrading212, "OTHER", reconcileDay))
}

func TestNewAdjustment(t *testing.T) {
	adj := sync.NewAdjustment("A2", sync.ProviderTrading212, "T212", -320, reconcileDay)

	assert.Equal(t, "A2", adj.DestinationAccountID)
	assert.Equal(t, "2025-01-05", adj.Date)
	assert.Equal(t, int64(-320), adj.Amount)
	assert.Equal(t, sync.AdjustmentPayee, adj.PayeeName)
	assert.True(t, adj.Cleared)
	assert.Equal(t, "trading212-reconcile-T212-20250105", adj.ExternalID)
}

// =============================================================================
// Bank path
// =============================================================================

func TestReconcileBank(t *testing.T) {
	ctx := context.Background()
	account := sync.BankAccount{ID: "TL1", Name: "Amex", Kind: sync.KindCard}
	spec := mustSpec("Amex", "TL1", "", "A1", sync.MapConfig{InvertAmount: true})

	t.Run("match", func(t *testing.T) {
		ledger := newFakeLedger(sync.LedgerAccount{ID: "A1"})
		ledger.seed("A1", sync.NormalizedTransaction{ExternalID: "t1", Amount: 4200})

		bank := new(MockBankProvider)
		bank.On("GetBalance", mock.Anything, account).Return(decimal.RequireFromString("-42.00"), nil)

		r := sync.NewReconciler(ledger, bank, nil, time.Second, testLogger())
		got, err := r.ReconcileBank(ctx, spec, account, sync.LedgerAccount{ID: "A1"})

		require.NoError(t, err)
		assert.True(t, got.Matched)
		bank.AssertExpectations(t)
	})

	t.Run("mismatch is an outcome not an error", func(t *testing.T) {
		ledger := newFakeLedger(sync.LedgerAccount{ID: "A1"})
		ledger.seed("A1", sync.NormalizedTransaction{ExternalID: "t1", Amount: 4000})

		bank := new(MockBankProvider)
		bank.On("GetBalance", mock.Anything, account).Return(decimal.RequireFromString("-42.00"), nil)

		r := sync.NewReconciler(ledger, bank, nil, time.Second, testLogger())
		got, err := r.ReconcileBank(ctx, spec, account, sync.LedgerAccount{ID: "A1"})

		require.NoError(t, err)
		assert.False(t, got.Matched)
		assert.Equal(t, "-2.00", got.Snapshot.Difference().StringFixed(2))
	})

	t.Run("provider error", func(t *testing.T) {
		bank := new(MockBankProvider)
		bank.On("GetBalance", mock.Anything, account).Return(decimal.Zero, errors.New("401 unauthorized"))

		r := sync.NewReconciler(newFakeLedger(), bank, nil, time.Second, testLogger())
		_, err := r.ReconcileBank(ctx, spec, account, sync.LedgerAccount{ID: "A1"})

		require.Error(t, err)
		assert.True(t, sync.IsProviderRequestError(err))
		assert.Contains(t, err.Error(), "Amex")
	})
}

// =============================================================================
// Investment path
// =============================================================================

func TestReconcileInvestment(t *testing.T) {
	ctx := context.Background()
	account := sync.InvestmentAccount{ID: "T212", Name: "Invest", Currency: "GBP"}
	spec := mustSpec("ISA", "", "T212", "A2", sync.MapConfig{})
	dest := sync.LedgerAccount{ID: "A2", Name: "ISA"}

	newInvestment := func(total string) *MockInvestmentProvider {
		inv := new(MockInvestmentProvider)
		inv.On("GetBalance", mock.Anything, account).
			Return(sync.InvestmentBalance{Total: decimal.RequireFromString(total), Currency: "GBP"}, nil)
		return inv
	}

	t.Run("within threshold does not adjust", func(t *testing.T) {
		ledger := newFakeLedger(dest)
		ledger.seed("A2", sync.NormalizedTransaction{ExternalID: "opening", Amount: 10000})

		r := sync.NewReconciler(ledger, nil, newInvestment("100.01"), time.Second, testLogger())
		got, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)

		require.NoError(t, err)
		assert.False(t, got.Adjusted)
		assert.True(t, got.Matched)
		assert.Equal(t, int64(1), got.Difference)
		assert.Empty(t, ledger.imports)
	})

	t.Run("adjusts and verifies", func(t *testing.T) {
		ledger := newFakeLedger(dest)
		ledger.seed("A2", sync.NormalizedTransaction{ExternalID: "opening", Amount: 10000})

		r := sync.NewReconciler(ledger, nil, newInvestment("101.50"), time.Second, testLogger())
		got, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)

		require.NoError(t, err)
		assert.True(t, got.Adjusted)
		assert.True(t, got.Matched)
		assert.Equal(t, int64(150), got.Difference)
		assert.Equal(t, int64(0), got.Remaining)
		assert.Equal(t, 1, got.Added)

		require.Len(t, ledger.imports, 1)
		adj := ledger.imports[0][0]
		assert.Equal(t, int64(150), adj.Amount)
		assert.True(t, adj.Cleared)
		assert.Equal(t, "trading212-reconcile-T212-20250105", adj.ExternalID)
	})

	t.Run("second run on the same day adds nothing", func(t *testing.T) {
		ledger := newFakeLedger(dest)
		ledger.seed("A2", sync.NormalizedTransaction{ExternalID: "opening", Amount: 10000})
		inv := newInvestment("101.50")

		r := sync.NewReconciler(ledger, nil, inv, time.Second, testLogger())
		first, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Added)

		second, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay.Add(10*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, second.Added)
		assert.False(t, second.Adjusted)
		assert.True(t, second.Matched)
		assert.Len(t, ledger.transactions("A2"), 2)
	})

	t.Run("same day drift folds into the existing adjustment", func(t *testing.T) {
		ledger := newFakeLedger(dest)
		ledger.seed("A2", sync.NormalizedTransaction{ExternalID: "opening", Amount: 10000})

		r := sync.NewReconciler(ledger, nil, newInvestment("101.50"), time.Second, testLogger())
		_, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)
		require.NoError(t, err)

		r = sync.NewReconciler(ledger, nil, newInvestment("106.50"), time.Second, testLogger())
		got, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)
		require.NoError(t, err)

		assert.Equal(t, int64(500), got.Difference)
		assert.Equal(t, int64(0), got.Remaining)
		assert.True(t, got.Matched)
		assert.Equal(t, 0, got.Added)

		txs := ledger.transactions("A2")
		require.Len(t, txs, 2)
		assert.Equal(t, int64(650), txs[1].Amount)
	})

	t.Run("ledger import error", func(t *testing.T) {
		ledger := newFakeLedger(dest)
		ledger.importErr = errors.New("budget locked")

		r := sync.NewReconciler(ledger, nil, newInvestment("50.00"), time.Second, testLogger())
		_, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)

		require.Error(t, err)
		assert.True(t, sync.IsProviderRequestError(err))
		assert.Contains(t, err.Error(), "import transactions")
	})

	t.Run("provider error", func(t *testing.T) {
		inv := new(MockInvestmentProvider)
		inv.On("GetBalance", mock.Anything, account).Return(sync.InvestmentBalance{}, errors.New("429"))

		r := sync.NewReconciler(newFakeLedger(dest), nil, inv, time.Second, testLogger())
		_, err := r.ReconcileInvestment(ctx, spec, account, dest, reconcileDay)

		require.Error(t, err)
		assert.True(t, sync.IsProviderRequestError(err))
	})
}

func TestReconciler_CallTimeout(t *testing.T) {
	account := sync.BankAccount{ID: "TL1", Kind: sync.KindAccount}
	spec := mustSpec("Checking", "TL1", "", "A1", sync.MapConfig{})

	bank := new(MockBankProvider)
	bank.On("GetBalance", mock.Anything, account).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(decimal.Zero, context.DeadlineExceeded)

	r := sync.NewReconciler(newFakeLedger(), bank, nil, 20*time.Millisecond, testLogger())
	_, err := r.ReconcileBank(context.Background(), spec, account, sync.LedgerAccount{ID: "A1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
