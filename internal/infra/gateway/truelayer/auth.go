package truelayer

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

var authScopes = []string{
	"info", "accounts", "balance", "cards", "transactions",
	"direct_debits", "standing_orders", "offline_access",
}

// providers selects every UK open banking and oauth provider on the auth dialog
const providers = "uk-ob-all uk-oauth-all"

// AuthCodeURL returns the consent page the operator opens to connect a bank
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("providers", providers))
}

// Exchange swaps the authorization code pasted by the operator for tokens
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// DiscoverAccounts lists what a freshly granted token can read. Cards are tried
// first; a provider without cards (e.g. a current account bank) falls back to accounts.
// Every returned account carries the token's refresh token.
func (c *Client) DiscoverAccounts(ctx context.Context, token *oauth2.Token) ([]Account, error) {
	ts := staticToken{token: token}

	accType := TypeCard
	body, err := c.doRequest(ctx, ts, "/data/v1/cards")
	if err != nil {
		return nil, fmt.Errorf("DiscoverAccounts failed: %w", err)
	}
	infos, err := decodeResults[AccountInfo](body)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		accType = TypeAccount
		body, err = c.doRequest(ctx, ts, "/data/v1/accounts")
		if err != nil {
			return nil, fmt.Errorf("DiscoverAccounts failed: %w", err)
		}
		if infos, err = decodeResults[AccountInfo](body); err != nil {
			return nil, err
		}
	}

	if len(infos) == 0 {
		return nil, fmt.Errorf("unable to retrieve the account info")
	}

	accounts := make([]Account, 0, len(infos))
	for _, info := range infos {
		accounts = append(accounts, Account{
			ID:           info.AccountID,
			Name:         info.DisplayName,
			Type:         accType,
			RefreshToken: token.RefreshToken,
		})
	}
	return accounts, nil
}
