package sync

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerStore is the personal-finance ledger the run reconciles into
type LedgerStore interface {
	ListAccounts(ctx context.Context) ([]LedgerAccount, error)

	// ImportTransactions must be idempotent on ExternalID: re-importing a known
	// transaction updates it instead of adding a duplicate.
	ImportTransactions(ctx context.Context, accountID string, txs []NormalizedTransaction) (ImportResult, error)

	// GetBalance returns the account balance in minor units
	GetBalance(ctx context.Context, accountID string) (int64, error)
}

// BankProvider is a bank/card aggregator with a transaction stream
type BankProvider interface {
	ListAccounts(ctx context.Context) ([]BankAccount, error)
	GetTransactions(ctx context.Context, account BankAccount) ([]RawTransaction, error)

	// GetBalance returns the current balance in major units
	GetBalance(ctx context.Context, account BankAccount) (decimal.Decimal, error)
}

// InvestmentProvider is a balance-only investment platform
type InvestmentProvider interface {
	ListAccounts(ctx context.Context) ([]InvestmentAccount, error)
	GetBalance(ctx context.Context, account InvestmentAccount) (InvestmentBalance, error)
}

// Notifier delivers the run summary to the operator
type Notifier interface {
	Post(ctx context.Context, n Notification) error
}
