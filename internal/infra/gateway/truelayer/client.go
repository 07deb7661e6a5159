package truelayer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

const (
	defaultAPIURL  = "https://api.truelayer.com"
	defaultAuthURL = "https://auth.truelayer.com"
	requestTimeout = 30 * time.Second
	maxRetries     = 3
)

// Config holds the TrueLayer application credentials and the connected accounts
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Accounts     []Account
}

// TokenStore persists OAuth2 tokens between runs, keyed by account id.
// Get returns (nil, nil) when nothing is stored.
type TokenStore interface {
	Get(ctx context.Context, accountID string) (*oauth2.Token, error)
	Save(ctx context.Context, accountID string, token *oauth2.Token) error
}

// Client is an HTTP client for the TrueLayer Data API
type Client struct {
	oauth      oauth2.Config
	accounts   []Account
	store      TokenStore
	httpClient *http.Client
	apiURL     string
	logger     *logger.Logger

	mu      gosync.Mutex
	sources map[string]*persistingTokenSource
}

// NewClient creates a new TrueLayer client. store may be nil.
func NewClient(cfg Config, store TokenStore, log *logger.Logger) *Client {
	c := &Client{
		accounts: cfg.Accounts,
		store:    store,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		apiURL:  defaultAPIURL,
		logger:  log.WithField("component", "truelayer"),
		sources: make(map[string]*persistingTokenSource),
	}
	c.oauth = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       authScopes,
		Endpoint:     endpoint(defaultAuthURL),
	}
	return c
}

// SetBaseURLs overrides the API and auth server URLs (useful for testing)
func (c *Client) SetBaseURLs(apiURL, authURL string) {
	c.apiURL = apiURL
	c.oauth.Endpoint = endpoint(authURL)

	c.mu.Lock()
	c.sources = make(map[string]*persistingTokenSource)
	c.mu.Unlock()
}

func endpoint(authURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   authURL + "/",
		TokenURL:  authURL + "/connect/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
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

// accessTokenSource yields a bearer token. A refresh runs under ctx, so the
// caller's deadline bounds it.
type accessTokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// staticToken serves a token that is never refreshed
type staticToken struct {
	token *oauth2.Token
}

func (s staticToken) Token(context.Context) (*oauth2.Token, error) {
	return s.token, nil
}

// tokenSource returns the cached token source of an account. The first token
// comes from the store when present, otherwise from the configured refresh token.
func (c *Client) tokenSource(ctx context.Context, account Account) (accessTokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.sources[account.ID]; ok {
		return ts, nil
	}

	seed := &oauth2.Token{RefreshToken: account.RefreshToken}
	if c.store != nil {
		stored, err := c.store.Get(ctx, account.ID)
		if err != nil {
			c.logger.Warn("failed to load stored token, using configured refresh token", "account_id", account.ID, "error", err)
		} else if stored != nil {
			seed = stored
		}
	}

	ts := &persistingTokenSource{
		accountID:  account.ID,
		oauth:      &c.oauth,
		httpClient: c.httpClient,
		store:      c.store,
		logger:     c.logger,
		current:    seed,
	}
	c.sources[account.ID] = ts
	return ts, nil
}

// doRequest performs a bearer-authenticated GET with rate-limit retry.
// It retries up to maxRetries times with exponential backoff (1s, 2s, 4s) on 429 responses.
func (c *Client) doRequest(ctx context.Context, ts accessTokenSource, path string) ([]byte, error) {
	token, err := ts.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	reqURL := c.apiURL + path
	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.logger.Debug("API request", "url", reqURL, "attempt", attempt)
		attemptStart := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		token.SetAuthHeader(req)

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
					Message:    "TrueLayer API rate limit exceeded after retries",
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

	return nil, fmt.Errorf("TrueLayer API: exhausted retries")
}

func decodeResults[T any](body []byte) ([]T, error) {
	var resp Response[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode TrueLayer response: %w", err)
	}
	return resp.Results, nil
}

// resourcePath picks the cards or accounts endpoint for an account
func resourcePath(account Account, suffix string) string {
	kind := "accounts"
	if account.IsCard() {
		kind = "cards"
	}
	return fmt.Sprintf("/data/v1/%s/%s%s", kind, account.ID, suffix)
}

// GetTransactions fetches the transactions TrueLayer holds for an account
func (c *Client) GetTransactions(ctx context.Context, account Account) ([]Transaction, error) {
	fetchStart := time.Now()

	ts, err := c.tokenSource(ctx, account)
	if err != nil {
		return nil, err
	}
	body, err := c.doRequest(ctx, ts, resourcePath(account, "/transactions"))
	if err != nil {
		return nil, fmt.Errorf("GetTransactions failed: %w", err)
	}

	txs, err := decodeResults[Transaction](body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("transactions fetched", "account_id", account.ID, "count", len(txs), "duration_ms", time.Since(fetchStart).Milliseconds())
	return txs, nil
}

// GetBalance fetches the account balance. TrueLayer must report exactly one.
func (c *Client) GetBalance(ctx context.Context, account Account) (Balance, error) {
	ts, err := c.tokenSource(ctx, account)
	if err != nil {
		return Balance{}, err
	}
	body, err := c.doRequest(ctx, ts, resourcePath(account, "/balance"))
	if err != nil {
		return Balance{}, fmt.Errorf("GetBalance failed: %w", err)
	}

	balances, err := decodeResults[Balance](body)
	if err != nil {
		return Balance{}, err
	}
	if len(balances) != 1 {
		return Balance{}, fmt.Errorf("account %s returned %d balances: %w", account.ID, len(balances), sync.ErrUnexpectedBalanceCount)
	}
	return balances[0], nil
}

// persistingTokenSource refreshes an account's token when it expires and
// writes every newly minted token to the store, so that a rotated refresh
// token survives a restart. Refreshes are serialized per account.
type persistingTokenSource struct {
	accountID  string
	oauth      *oauth2.Config
	httpClient *http.Client
	store      TokenStore
	logger     *logger.Logger

	mu      gosync.Mutex
	current *oauth2.Token
}

func (s *persistingTokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Valid() {
		return s.current, nil
	}

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.TokenSource(refreshCtx, s.current).Token()
	if err != nil {
		return nil, err
	}
	s.current = tok

	if s.store == nil {
		return tok, nil
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Save(saveCtx, s.accountID, tok); err != nil {
		s.logger.Warn("failed to persist refreshed token", "account_id", s.accountID, "error", err)
	}
	return tok, nil
}
