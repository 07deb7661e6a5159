package sync

import (
	"github.com/andrewinci/actual-sync/pkg/money"
)

// ledgerDateLayout is the ledger's calendar-day format
const ledgerDateLayout = "2006-01-02"

// Normalize converts one provider transaction into a ledger transaction.
// The date is the UTC calendar day of the timestamp; the amount is rounded half
// away from zero to minor units and negated when InvertAmount is set.
func Normalize(tx RawTransaction, destinationAccountID string, cfg MapConfig) NormalizedTransaction {
	amount := money.ToMinorUnits(tx.Amount)
	if cfg.InvertAmount {
		amount = -amount
	}

	return NormalizedTransaction{
		DestinationAccountID: destinationAccountID,
		Date:                 tx.Timestamp.UTC().Format(ledgerDateLayout),
		Amount:               amount,
		PayeeName:            payeeName(tx),
		Note:                 tx.Description,
		ExternalID:           tx.ExternalID,
		Cleared:              false,
	}
}

// NormalizeAll maps a provider batch, preserving order
func NormalizeAll(txs []RawTransaction, destinationAccountID string, cfg MapConfig) []NormalizedTransaction {
	out := make([]NormalizedTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, Normalize(tx, destinationAccountID, cfg))
	}
	return out
}

// payeeName picks the first non-empty of merchant, counterparty, description
func payeeName(tx RawTransaction) string {
	for _, candidate := range []string{tx.MerchantName, tx.CounterpartyName, tx.Description} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
