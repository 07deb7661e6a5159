package trading212

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

const (
	defaultBaseURL = "https://live.trading212.com/api/v0"
	requestTimeout = 30 * time.Second
	maxRetries     = 3

	// The cash endpoint allows one request every two seconds
	cashInterval = 2 * time.Second

	defaultCurrency = "GBP"
)

// ErrAccountNotConfigured is returned for an account id missing from the configured list
var ErrAccountNotConfigured = errors.New("trading212 account not configured")

// Account is a configured Trading212 account
type Account struct {
	ID       string
	Name     string
	Currency string
}

// Config holds the Trading212 API key and the configured accounts
type Config struct {
	APIKey   string
	Accounts []Account
}

// AccountCash is the answer of /equity/account/cash
type AccountCash struct {
	Free             decimal.Decimal `json:"free"`
	Total            decimal.Decimal `json:"total"`
	PPL              decimal.Decimal `json:"ppl"`
	Result           decimal.Decimal `json:"result"`
	Invested         decimal.Decimal `json:"invested"`
	PieCash          decimal.Decimal `json:"pieCash"`
	BlockedForStocks decimal.Decimal `json:"blockedForStocks"`
}

// Balance is the account value in the account currency
type Balance struct {
	Total    decimal.Decimal
	Currency string
}

// Client is an HTTP client for the Trading212 public API
type Client struct {
	apiKey     string
	accounts   []Account
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new Trading212 API client
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		accounts: cfg.Accounts,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Every(cashInterval), 1),
		logger:  log.WithField("component", "trading212"),
	}
}

// SetBaseURL overrides the default base URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// SetRateLimit overrides the request limiter (useful for testing)
func (c *Client) SetRateLimit(limit rate.Limit, burst int) {
	c.limiter = rate.NewLimiter(limit, burst)
}

// ListAccounts returns the configured accounts. No request is made.
func (c *Client) ListAccounts() []Account {
	return append([]Account(nil), c.accounts...)
}

// GetAccount returns the configured account with id
func (c *Client) GetAccount(id string) (Account, error) {
	for _, acc := range c.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", ErrAccountNotConfigured, id)
}

// doRequest performs an authenticated GET, waiting on the limiter before each attempt.
// 429 responses are retried up to maxRetries times with exponential backoff (1s, 2s, 4s).
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL + path

	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		c.logger.Debug("API request", "url", reqURL, "attempt", attempt)
		attemptStart := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusOK {
			c.logger.Debug("API response", "status_code", resp.StatusCode, "duration_ms", time.Since(attemptStart).Milliseconds())
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt == maxRetries {
				c.logger.Error("rate limit exhausted", "attempts", maxRetries+1)
				return nil, &RateLimitError{
					RetryAfter: backoff,
					Message:    "Trading212 API rate limit exceeded after retries",
				}
			}
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
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return nil, fmt.Errorf("Trading212 API: exhausted retries")
}

// GetAccountCash fetches the cash and investment summary of the key's account
func (c *Client) GetAccountCash(ctx context.Context) (*AccountCash, error) {
	body, err := c.doRequest(ctx, "/equity/account/cash")
	if err != nil {
		return nil, fmt.Errorf("GetAccountCash failed: %w", err)
	}

	var cash AccountCash
	if err := json.Unmarshal(body, &cash); err != nil {
		return nil, fmt.Errorf("failed to decode Trading212 response: %w", err)
	}
	return &cash, nil
}

// GetBalance returns the total account value (invested plus free cash)
func (c *Client) GetBalance(ctx context.Context, account Account) (Balance, error) {
	cash, err := c.GetAccountCash(ctx)
	if err != nil {
		return Balance{}, err
	}

	currency := account.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	c.logger.Info("balance fetched", "account_id", account.ID, "total", cash.Total.StringFixed(2), "currency", currency)
	return Balance{Total: cash.Total, Currency: currency}, nil
}

// APIError is a non-2xx answer from the Trading212 API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Trading212 API error: status %d, body: %s", e.StatusCode, e.Body)
}

// RateLimitError represents a rate limit error from the Trading212 API
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
}

// IsRateLimitError checks if an error is (or wraps) a Trading212 rate limit error
func IsRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
