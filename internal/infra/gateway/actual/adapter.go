package actual

import (
	"context"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

// LedgerAdapter adapts the Actual client to the sync.LedgerStore interface
type LedgerAdapter struct {
	client *Client
}

// Compile-time check that LedgerAdapter implements LedgerStore
var _ sync.LedgerStore = (*LedgerAdapter)(nil)

// NewLedgerAdapter creates a new Actual ledger adapter
func NewLedgerAdapter(client *Client) *LedgerAdapter {
	return &LedgerAdapter{client: client}
}

// ListAccounts returns the open accounts of the budget
func (a *LedgerAdapter) ListAccounts(ctx context.Context) ([]sync.LedgerAccount, error) {
	accounts, err := a.client.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]sync.LedgerAccount, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Closed {
			continue
		}
		result = append(result, sync.LedgerAccount{ID: acc.ID, Name: acc.Name})
	}
	return result, nil
}

// ImportTransactions converts the batch and imports it, deduplicating on ExternalID
func (a *LedgerAdapter) ImportTransactions(ctx context.Context, accountID string, txs []sync.NormalizedTransaction) (sync.ImportResult, error) {
	payload := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		payload = append(payload, toTransaction(tx))
	}

	res, err := a.client.ImportTransactions(ctx, accountID, payload)
	if err != nil {
		return sync.ImportResult{}, err
	}

	return sync.ImportResult{
		Added:          len(res.Added),
		Updated:        len(res.Updated),
		UpdatedPreview: len(res.UpdatedPreview),
		Errors:         len(res.Errors),
	}, nil
}

// GetBalance returns the account balance in minor units
func (a *LedgerAdapter) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return a.client.GetBalance(ctx, accountID)
}

func toTransaction(tx sync.NormalizedTransaction) Transaction {
	return Transaction{
		Account:    tx.DestinationAccountID,
		Date:       tx.Date,
		Amount:     tx.Amount,
		PayeeName:  tx.PayeeName,
		Notes:      tx.Note,
		ImportedID: tx.ExternalID,
		Cleared:    tx.Cleared,
	}
}

// CreateAccount creates a ledger account and returns its id
func (a *LedgerAdapter) CreateAccount(ctx context.Context, name string) (string, error) {
	return a.client.CreateAccount(ctx, name)
}
