package actual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
)

// Config holds the connection settings of an Actual HTTP API server
type Config struct {
	URL            string
	APIKey         string
	SyncID         string
	BudgetPassword string
}

// Client is an HTTP client for the Actual Budget HTTP API
type Client struct {
	apiKey     string
	syncID     string
	password   string
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewClient creates a new Actual API client
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		syncID:   cfg.SyncID,
		password: cfg.BudgetPassword,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: cfg.URL,
		logger:  log.WithField("component", "actual"),
	}
}

// SetBaseURL overrides the server URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) budgetURL(path string) string {
	return fmt.Sprintf("%s/v1/budgets/%s%s", c.baseURL, url.PathEscape(c.syncID), path)
}

// doRequest performs an authenticated JSON request and returns the body of a 2xx response.
// 429 responses are retried up to maxRetries times with exponential backoff (1s, 2s, 4s).
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.logger.Debug("API request", "method", method, "url", reqURL, "attempt", attempt)
		attemptStart := time.Now()

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}
		if c.password != "" {
			req.Header.Set("budget-encryption-password", c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.logger.Debug("API response", "status_code", resp.StatusCode, "duration_ms", time.Since(attemptStart).Milliseconds())
			return respBody, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			c.logger.Warn("rate limited, retrying", "attempt", attempt, "backoff_ms", backoff.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		c.logger.Error("API error", "status_code", resp.StatusCode)
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	return nil, fmt.Errorf("actual API: exhausted retries")
}

func newAPIError(status int, body []byte) *APIError {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return &APIError{StatusCode: status, Message: er.Error}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

// ListAccounts returns the accounts of the configured budget
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.budgetURL("/accounts"), nil)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts failed: %w", err)
	}

	var resp accountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode accounts response: %w", err)
	}
	return resp.Data, nil
}

// ImportTransactions imports txs into accountID, reconciling on imported_id
func (c *Client) ImportTransactions(ctx context.Context, accountID string, txs []Transaction) (*ImportResult, error) {
	start := time.Now()
	reqURL := c.budgetURL("/accounts/" + url.PathEscape(accountID) + "/transactions/import")

	body, err := c.doRequest(ctx, http.MethodPost, reqURL, importRequest{Transactions: txs})
	if err != nil {
		return nil, fmt.Errorf("ImportTransactions failed: %w", err)
	}

	var resp importResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode import response: %w", err)
	}

	c.logger.Info("transactions imported",
		"account_id", accountID,
		"sent", len(txs),
		"added", len(resp.Data.Added),
		"updated", len(resp.Data.Updated),
		"duration_ms", time.Since(start).Milliseconds())
	return &resp.Data, nil
}

// GetBalance returns the account balance as an integer amount
func (c *Client) GetBalance(ctx context.Context, accountID string) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.budgetURL("/accounts/"+url.PathEscape(accountID)+"/balance"), nil)
	if err != nil {
		return 0, fmt.Errorf("GetBalance failed: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}
	return resp.Data, nil
}

// CreateAccount creates an on-budget account and returns its id
func (c *Client) CreateAccount(ctx context.Context, name string) (string, error) {
	var req createAccountRequest
	req.Account.Name = name

	body, err := c.doRequest(ctx, http.MethodPost, c.budgetURL("/accounts"), req)
	if err != nil {
		return "", fmt.Errorf("CreateAccount failed: %w", err)
	}

	var resp createAccountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode create account response: %w", err)
	}
	return resp.Data, nil
}

