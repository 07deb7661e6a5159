package truelayer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

// SyncAdapter adapts the TrueLayer client to the sync.BankProvider interface
type SyncAdapter struct {
	client *Client
}

// Compile-time check that SyncAdapter implements BankProvider
var _ sync.BankProvider = (*SyncAdapter)(nil)

// NewSyncAdapter creates a new TrueLayer sync adapter
func NewSyncAdapter(client *Client) *SyncAdapter {
	return &SyncAdapter{client: client}
}

// ListAccounts returns the configured accounts as provider accounts
func (a *SyncAdapter) ListAccounts(ctx context.Context) ([]sync.BankAccount, error) {
	accounts := a.client.ListAccounts()
	result := make([]sync.BankAccount, 0, len(accounts))
	for _, acc := range accounts {
		result = append(result, sync.BankAccount{
			ID:   acc.ID,
			Name: acc.Name,
			Kind: kindOf(acc),
		})
	}
	return result, nil
}

// GetTransactions fetches and converts the account's transactions
func (a *SyncAdapter) GetTransactions(ctx context.Context, account sync.BankAccount) ([]sync.RawTransaction, error) {
	acc, err := a.client.GetAccount(account.ID)
	if err != nil {
		return nil, err
	}

	txs, err := a.client.GetTransactions(ctx, acc)
	if err != nil {
		return nil, err
	}

	result := make([]sync.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		result = append(result, convertTransaction(tx))
	}
	return result, nil
}

// GetBalance returns the current balance in major units
func (a *SyncAdapter) GetBalance(ctx context.Context, account sync.BankAccount) (decimal.Decimal, error) {
	acc, err := a.client.GetAccount(account.ID)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := a.client.GetBalance(ctx, acc)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Current, nil
}

func kindOf(acc Account) sync.AccountKind {
	if acc.IsCard() {
		return sync.KindCard
	}
	return sync.KindAccount
}

// convertTransaction maps a TrueLayer transaction to a provider-native RawTransaction
func convertTransaction(tx Transaction) sync.RawTransaction {
	return sync.RawTransaction{
		Timestamp:        tx.Timestamp.Time,
		Description:      tx.Description,
		Amount:           tx.Amount,
		ExternalID:       tx.TransactionID,
		MerchantName:     tx.Meta.ProviderMerchantName,
		CounterpartyName: tx.Meta.CounterPartyPreferredName,
	}
}
