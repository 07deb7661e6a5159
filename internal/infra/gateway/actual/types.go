package actual

import (
	"fmt"
	"strings"
)

// Account is an account in an Actual budget
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OffBudget bool   `json:"offbudget"`
	Closed    bool   `json:"closed"`
}

// Transaction is the import payload for one transaction.
// Amount is an integer without decimal places: 120.30 is 12030.
type Transaction struct {
	Account    string `json:"account"`
	Date       string `json:"date"`
	Amount     int64  `json:"amount"`
	PayeeName  string `json:"payee_name,omitempty"`
	Notes      string `json:"notes,omitempty"`
	ImportedID string `json:"imported_id"`
	Cleared    bool   `json:"cleared"`
}

// ImportResult lists the transaction ids the server touched
type ImportResult struct {
	Added          []string      `json:"added"`
	Updated        []string      `json:"updated"`
	UpdatedPreview []interface{} `json:"updatedPreview"`
	Errors         []interface{} `json:"errors"`
}

type accountsResponse struct {
	Data []Account `json:"data"`
}

type balanceResponse struct {
	Data int64 `json:"data"`
}

type importRequest struct {
	Transactions []Transaction `json:"transactions"`
}

type importResponse struct {
	Data ImportResult `json:"data"`
}

type createAccountRequest struct {
	Account struct {
		Name      string `json:"name"`
		OffBudget bool   `json:"offbudget"`
	} `json:"account"`
	InitialBalance int64 `json:"initialBalance"`
}

type createAccountResponse struct {
	Data string `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx answer from the Actual HTTP API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("actual API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("actual API error: status %d: %s", e.StatusCode, msg)
}
