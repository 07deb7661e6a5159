package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andrewinci/actual-sync/pkg/logger"
	"github.com/andrewinci/actual-sync/pkg/money"
)

// Reconciliation tolerances
var (
	// BalanceTolerance is half a minor unit. Bank balances match when the
	// provider and sign-adjusted ledger balance differ by strictly less than this.
	BalanceTolerance = decimal.New(5, -3)
)

const (
	// AdjustmentThreshold: an investment account gets an adjustment entry when
	// |provider − ledger| exceeds this many minor units.
	AdjustmentThreshold int64 = 1

	// VerifyTolerance: after adjusting, the account matches when the remaining
	// difference is strictly below this many minor units.
	VerifyTolerance int64 = 2

	// AdjustmentPayee is the payee of every synthesized adjustment
	AdjustmentPayee = "Reconciliation balance adjustment"

	adjustmentDateLayout = "20060102"
)

// SignMultiplier returns the factor that puts a ledger balance on the provider's
// sign convention: card providers report debt as a negative balance.
func SignMultiplier(kind AccountKind) int64 {
	if kind == KindCard {
		return -1
	}
	return 1
}

// NewBalanceSnapshot builds a snapshot for a bank account of the given kind
func NewBalanceSnapshot(provider decimal.Decimal, ledger int64, kind AccountKind) BalanceSnapshot {
	return BalanceSnapshot{
		ProviderBalance: provider,
		LedgerBalance:   ledger,
		SignMultiplier:  SignMultiplier(kind),
	}
}

// Difference is provider − (ledger / 100) × sign, in major units
func (b BalanceSnapshot) Difference() decimal.Decimal {
	ledger := money.FromMinorUnits(b.LedgerBalance).Mul(decimal.NewFromInt(b.SignMultiplier))
	return b.ProviderBalance.Sub(ledger)
}

// Matches reports whether the two balances agree within BalanceTolerance
func (b BalanceSnapshot) Matches() bool {
	return b.Difference().Abs().LessThan(BalanceTolerance)
}

// InvestmentDifference returns providerTotal × 100 − ledgerBalance in minor units
func InvestmentDifference(providerTotal decimal.Decimal, ledgerBalance int64) int64 {
	return money.ToMinorUnits(providerTotal) - ledgerBalance
}

// AdjustmentExternalID derives the idempotency key of an adjustment entry.
// It is scoped to the provider account and the run's calendar day, so every run
// on the same day converges on the same ledger transaction.
func AdjustmentExternalID(provider, accountID string, today time.Time) string {
	return fmt.Sprintf("%s-reconcile-%s-%s", provider, accountID, today.UTC().Format(adjustmentDateLayout))
}

// NewAdjustment synthesizes the cleared ledger entry that moves the ledger balance by difference
func NewAdjustment(destinationAccountID, provider, accountID string, difference int64, today time.Time) NormalizedTransaction {
	return NormalizedTransaction{
		DestinationAccountID: destinationAccountID,
		Date:                 today.UTC().Format(ledgerDateLayout),
		Amount:               difference,
		PayeeName:            AdjustmentPayee,
		Note:                 fmt.Sprintf("Balance adjustment to match %s", provider),
		ExternalID:           AdjustmentExternalID(provider, accountID, today),
		Cleared:              true,
	}
}

// BankReconciliation is the outcome of the bank/card balance check
type BankReconciliation struct {
	Snapshot BalanceSnapshot
	Matched  bool
}

// InvestmentReconciliation is the outcome of the adjust-then-verify investment path
type InvestmentReconciliation struct {
	Balance    InvestmentBalance
	Difference int64 // before adjustment, minor units
	Remaining  int64 // after adjustment, minor units
	Adjusted   bool
	Added      int
	Matched    bool
}

// Reconciler compares provider and ledger balances
type Reconciler struct {
	ledger      LedgerStore
	bank        BankProvider
	investment  InvestmentProvider
	callTimeout time.Duration
	logger      *logger.Logger
}

// NewReconciler creates a reconciler. Providers may be nil when not configured.
func NewReconciler(ledger LedgerStore, bank BankProvider, investment InvestmentProvider, callTimeout time.Duration, log *logger.Logger) *Reconciler {
	return &Reconciler{
		ledger:      ledger,
		bank:        bank,
		investment:  investment,
		callTimeout: callTimeout,
		logger:      log.WithField("component", "reconciler"),
	}
}

// ReconcileBank checks a bank/card account after its transactions were imported
func (r *Reconciler) ReconcileBank(ctx context.Context, spec AccountSyncSpec, account BankAccount, destination LedgerAccount) (BankReconciliation, error) {
	var providerBalance decimal.Decimal
	err := bounded(ctx, r.callTimeout, func(ctx context.Context) error {
		var err error
		providerBalance, err = r.bank.GetBalance(ctx, account)
		return err
	})
	if err != nil {
		return BankReconciliation{}, &ProviderRequestError{Spec: spec.Name, Op: "get provider balance", Err: err}
	}

	ledgerBalance, err := r.ledgerBalance(ctx, spec, destination.ID)
	if err != nil {
		return BankReconciliation{}, err
	}

	snapshot := NewBalanceSnapshot(providerBalance, ledgerBalance, account.Kind)
	matched := snapshot.Matches()

	log := r.logger.WithContext(ctx)
	if matched {
		log.Info("balances match",
			"provider_balance", providerBalance.StringFixed(2),
			"ledger_balance", money.Format(ledgerBalance, money.DefaultCurrency),
			"kind", account.Kind)
	} else {
		log.Warn("balance mismatch",
			"provider_balance", providerBalance.StringFixed(2),
			"ledger_balance", money.Format(ledgerBalance, money.DefaultCurrency),
			"difference", snapshot.Difference().StringFixed(3),
			"kind", account.Kind)
	}

	return BankReconciliation{Snapshot: snapshot, Matched: matched}, nil
}

// ReconcileInvestment forces the ledger to track the provider's total: when the
// two differ by more than AdjustmentThreshold it imports a cleared adjustment
// keyed by today's date, then re-reads the ledger and verifies.
func (r *Reconciler) ReconcileInvestment(ctx context.Context, spec AccountSyncSpec, account InvestmentAccount, destination LedgerAccount, today time.Time) (InvestmentReconciliation, error) {
	var balance InvestmentBalance
	err := bounded(ctx, r.callTimeout, func(ctx context.Context) error {
		var err error
		balance, err = r.investment.GetBalance(ctx, account)
		return err
	})
	if err != nil {
		return InvestmentReconciliation{}, &ProviderRequestError{Spec: spec.Name, Op: "get investment balance", Err: err}
	}

	ledgerBalance, err := r.ledgerBalance(ctx, spec, destination.ID)
	if err != nil {
		return InvestmentReconciliation{}, err
	}

	out := InvestmentReconciliation{
		Balance:    balance,
		Difference: InvestmentDifference(balance.Total, ledgerBalance),
	}
	out.Remaining = out.Difference

	log := r.logger.WithContext(ctx).WithField("currency", balance.Currency)

	if money.AbsMinor(out.Difference) <= AdjustmentThreshold {
		out.Matched = money.AbsMinor(out.Remaining) < VerifyTolerance
		log.Info("investment balance already in line",
			"provider_total", money.FormatMajor(balance.Total, balance.Currency),
			"ledger_balance", money.Format(ledgerBalance, balance.Currency))
		return out, nil
	}

	adjustment := NewAdjustment(destination.ID, spec.Source.Provider(), account.ID, out.Difference, today)
	log.Info("importing balance adjustment",
		"external_id", adjustment.ExternalID,
		"amount", money.Format(adjustment.Amount, balance.Currency))

	result, err := r.importBatch(ctx, spec, destination.ID, []NormalizedTransaction{adjustment})
	if err != nil {
		return InvestmentReconciliation{}, err
	}
	out.Adjusted = true
	out.Added = result.Added

	ledgerBalance, err = r.ledgerBalance(ctx, spec, destination.ID)
	if err != nil {
		return InvestmentReconciliation{}, err
	}
	out.Remaining = InvestmentDifference(balance.Total, ledgerBalance)

	// A same-day adjustment already existed and was overwritten rather than
	// stacked: the ledger is now short by the old adjustment amount. Fold it in.
	if money.AbsMinor(out.Remaining) >= VerifyTolerance && result.Updated > 0 {
		adjustment.Amount += out.Remaining
		log.Info("merging with earlier adjustment from today",
			"external_id", adjustment.ExternalID,
			"amount", money.Format(adjustment.Amount, balance.Currency))

		if _, err := r.importBatch(ctx, spec, destination.ID, []NormalizedTransaction{adjustment}); err != nil {
			return InvestmentReconciliation{}, err
		}
		ledgerBalance, err = r.ledgerBalance(ctx, spec, destination.ID)
		if err != nil {
			return InvestmentReconciliation{}, err
		}
		out.Remaining = InvestmentDifference(balance.Total, ledgerBalance)
	}

	out.Matched = money.AbsMinor(out.Remaining) < VerifyTolerance
	if !out.Matched {
		log.Warn("investment balance still mismatched after adjustment",
			"provider_total", money.FormatMajor(balance.Total, balance.Currency),
			"ledger_balance", money.Format(ledgerBalance, balance.Currency))
	}
	return out, nil
}

func (r *Reconciler) ledgerBalance(ctx context.Context, spec AccountSyncSpec, accountID string) (int64, error) {
	var balance int64
	err := bounded(ctx, r.callTimeout, func(ctx context.Context) error {
		var err error
		balance, err = r.ledger.GetBalance(ctx, accountID)
		return err
	})
	if err != nil {
		return 0, &ProviderRequestError{Spec: spec.Name, Op: "get ledger balance", Err: err}
	}
	return balance, nil
}

func (r *Reconciler) importBatch(ctx context.Context, spec AccountSyncSpec, accountID string, txs []NormalizedTransaction) (ImportResult, error) {
	var result ImportResult
	err := bounded(ctx, r.callTimeout, func(ctx context.Context) error {
		var err error
		result, err = r.ledger.ImportTransactions(ctx, accountID, txs)
		return err
	})
	if err != nil {
		return ImportResult{}, &ProviderRequestError{Spec: spec.Name, Op: "import transactions", Err: err}
	}
	return result, nil
}

// bounded runs fn with a per-call deadline derived from ctx
func bounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
