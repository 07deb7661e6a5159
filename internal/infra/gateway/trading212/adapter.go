package trading212

import (
	"context"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

// SyncAdapter adapts the Trading212 client to the sync.InvestmentProvider interface
type SyncAdapter struct {
	client *Client
}

// Compile-time check that SyncAdapter implements InvestmentProvider
var _ sync.InvestmentProvider = (*SyncAdapter)(nil)

// NewSyncAdapter creates a new Trading212 sync adapter
func NewSyncAdapter(client *Client) *SyncAdapter {
	return &SyncAdapter{client: client}
}

// ListAccounts returns the configured accounts
func (a *SyncAdapter) ListAccounts(ctx context.Context) ([]sync.InvestmentAccount, error) {
	accounts := a.client.ListAccounts()
	result := make([]sync.InvestmentAccount, 0, len(accounts))
	for _, acc := range accounts {
		currency := acc.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		result = append(result, sync.InvestmentAccount{ID: acc.ID, Name: acc.Name, Currency: currency})
	}
	return result, nil
}

// GetBalance returns the account's total value
func (a *SyncAdapter) GetBalance(ctx context.Context, account sync.InvestmentAccount) (sync.InvestmentBalance, error) {
	acc, err := a.client.GetAccount(account.ID)
	if err != nil {
		return sync.InvestmentBalance{}, err
	}

	balance, err := a.client.GetBalance(ctx, acc)
	if err != nil {
		return sync.InvestmentBalance{}, err
	}
	return sync.InvestmentBalance{Total: balance.Total, Currency: balance.Currency}, nil
}
