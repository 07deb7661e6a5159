package truelayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account types. TrueLayer serves cards and accounts from different endpoints.
const (
	TypeCard    = "CARD"
	TypeAccount = "ACCOUNT"
)

// ErrAccountNotConfigured is returned for an account id missing from the configured list
var ErrAccountNotConfigured = errors.New("truelayer account not configured")

// Account is a configured TrueLayer account
type Account struct {
	ID           string
	Name         string
	Type         string
	RefreshToken string
}

// IsCard reports whether the account is served by the cards endpoints
func (a Account) IsCard() bool {
	return a.Type == TypeCard
}

// Response is the envelope of every TrueLayer data API answer
type Response[T any] struct {
	Results []T    `json:"results"`
	Status  string `json:"status"`
}

// AccountInfo is an entry of /data/v1/cards or /data/v1/accounts
type AccountInfo struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	CardNetwork string `json:"card_network,omitempty"`
	AccountType string `json:"account_type,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

// Transaction is a TrueLayer card or account transaction
type Transaction struct {
	TransactionID       string          `json:"transaction_id"`
	Timestamp           Timestamp       `json:"timestamp"`
	Description         string          `json:"description"`
	TransactionType     string          `json:"transaction_type"`
	TransactionCategory string          `json:"transaction_category"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Meta                TransactionMeta `json:"meta"`
}

// Timestamp accepts RFC 3339 times and offset-less ISO 8601 times, which
// some providers return. Offset-less times are read as UTC.
type Timestamp struct {
	time.Time
}

const localTimestampLayout = "2006-01-02T15:04:05"

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		parsed, err = time.ParseInLocation(localTimestampLayout, raw, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", raw)
		}
	}
	t.Time = parsed
	return nil
}

// TransactionMeta holds provider specific transaction details
type TransactionMeta struct {
	ProviderMerchantName      string `json:"provider_merchant_name"`
	CounterPartyPreferredName string `json:"counter_party_preferred_name"`
	Address                   string `json:"address"`
	ProviderReference         string `json:"provider_reference,omitempty"`
}

// Balance is the single result of a balance endpoint
type Balance struct {
	Current   decimal.Decimal `json:"current"`
	Available decimal.Decimal `json:"available"`
	Currency  string          `json:"currency"`
}

// APIError is a non-2xx answer from the TrueLayer API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TrueLayer API error: status %d, body: %s", e.StatusCode, e.Body)
}

// RateLimitError represents a rate limit error from the TrueLayer API
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
}

// IsRateLimitError checks if an error is (or wraps) a TrueLayer rate limit error
func IsRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
