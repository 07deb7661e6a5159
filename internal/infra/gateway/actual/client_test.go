package actual_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewinci/actual-sync/internal/infra/gateway/actual"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("development", io.Discard)
}

func newTestClient(serverURL string) *actual.Client {
	client := actual.NewClient(actual.Config{
		APIKey:         "secret-key",
		SyncID:         "budget-1",
		BudgetPassword: "hunter2",
	}, testLogger())
	client.SetBaseURL(serverURL)
	return client
}

// =============================================================================
// Header Tests
// =============================================================================

func TestClient_AuthHeaders(t *testing.T) {
	var apiKey, password string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")
		password = r.Header.Get("budget-encryption-password")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-key", apiKey)
	assert.Equal(t, "hunter2", password)
}

// =============================================================================
// Endpoint Tests
// =============================================================================

func TestClient_ListAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/budgets/budget-1/accounts", r.URL.Path)
		w.Write([]byte(`{"data": [
			{"id": "A1", "name": "Current", "offbudget": false, "closed": false},
			{"id": "A2", "name": "Old", "offbudget": false, "closed": true}
		]}`))
	}))
	defer server.Close()

	accounts, err := newTestClient(server.URL).ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Current", accounts[0].Name)
	assert.True(t, accounts[1].Closed)
}

func TestClient_ImportTransactions(t *testing.T) {
	var received struct {
		Transactions []actual.Transaction `json:"transactions"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/budgets/budget-1/accounts/A1/transactions/import", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"data": {"added": ["x1"], "updated": ["x2", "x3"], "errors": []}}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).ImportTransactions(context.Background(), "A1", []actual.Transaction{
		{Account: "A1", Date: "2025-01-05", Amount: 1000, Notes: "Coffee", ImportedID: "tx-1"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Updated, 2)

	require.Len(t, received.Transactions, 1)
	assert.Equal(t, "tx-1", received.Transactions[0].ImportedID)
	assert.Equal(t, int64(1000), received.Transactions[0].Amount)
}

func TestClient_GetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/budgets/budget-1/accounts/A1/balance", r.URL.Path)
		w.Write([]byte(`{"data": -4200}`))
	}))
	defer server.Close()

	balance, err := newTestClient(server.URL).GetBalance(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(-4200), balance)
}

func TestClient_CreateAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ISA", body["account"]["name"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": "A9"}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).CreateAccount(context.Background(), "ISA")
	require.NoError(t, err)
	assert.Equal(t, "A9", id)
}

// =============================================================================
// Error Response Tests
// =============================================================================

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListAccounts(context.Background())
	require.Error(t, err)

	var apiErr *actual.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestClient_RateLimitRetry(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requestCount, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data": 100}`))
	}))
	defer server.Close()

	balance, err := newTestClient(server.URL).GetBalance(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
}

func TestClient_RateLimitContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).GetBalance(ctx, "A1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
