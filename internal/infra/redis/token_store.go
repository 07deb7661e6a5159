package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/andrewinci/actual-sync/internal/infra/gateway/truelayer"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

// KeyPrefix is the prefix for TrueLayer token keys
const KeyPrefix = "truelayer:token:"

// TokenStore is a Redis-backed truelayer.TokenStore. Entries have no TTL: a
// refresh token stays usable long after its access token expired.
type TokenStore struct {
	client *redis.Client
	logger *logger.Logger
}

var _ truelayer.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new token store
func NewTokenStore(client *redis.Client, log *logger.Logger) *TokenStore {
	return &TokenStore{
		client: client,
		logger: log.WithField("component", "token_store"),
	}
}

// StoredToken represents a persisted OAuth2 token with metadata
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func key(accountID string) string {
	return KeyPrefix + accountID
}

// Get retrieves the stored token of an account; (nil, nil) when absent
func (s *TokenStore) Get(ctx context.Context, accountID string) (*oauth2.Token, error) {
	val, err := s.client.Get(ctx, key(accountID)).Result()
	if err == redis.Nil {
		s.logger.Debug("token miss", "account_id", accountID)
		return nil, nil
	}
	if err != nil {
		s.logger.Error("token store error", "operation", "get", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to get stored token: %w", err)
	}

	var stored StoredToken
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored token: %w", err)
	}

	s.logger.Debug("token hit", "account_id", accountID, "updated_at", stored.UpdatedAt)
	return &oauth2.Token{
		AccessToken:  stored.AccessToken,
		TokenType:    stored.TokenType,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}, nil
}

// Save stores the token of an account, replacing any previous one
func (s *TokenStore) Save(ctx context.Context, accountID string, token *oauth2.Token) error {
	stored := StoredToken{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		UpdatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.client.Set(ctx, key(accountID), data, 0).Err(); err != nil {
		s.logger.Error("token store error", "operation", "set", "account_id", accountID, "error", err)
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

// Delete removes the stored token of an account
func (s *TokenStore) Delete(ctx context.Context, accountID string) error {
	return s.client.Del(ctx, key(accountID)).Err()
}

// Clear removes every stored token
func (s *TokenStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 0).Iterator()

	pipe := s.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear tokens: %w", err)
			}
			pipe = s.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
	}

	return iter.Err()
}
