package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSyncFileName is the sync file looked up in the working directory
const DefaultSyncFileName = ".config.yml"

// TrueLayer account types
const (
	TrueLayerTypeCard    = "CARD"
	TrueLayerTypeAccount = "ACCOUNT"
)

// TrueLayerAccount is a bank or card account connected through TrueLayer
type TrueLayerAccount struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	RefreshToken string `yaml:"refreshToken"`
}

// Trading212Account is a Trading212 investment account
type Trading212Account struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency,omitempty"`
}

// MapConfig holds per-entry mapping options
type MapConfig struct {
	InvertAmount bool `yaml:"invertAmount"`
}

// SyncEntry maps one provider account to one ledger account
type SyncEntry struct {
	Name                string    `yaml:"name"`
	TrueLayerAccountID  string    `yaml:"truelayerAccountId,omitempty"`
	Trading212AccountID string    `yaml:"trading212AccountId,omitempty"`
	ActualAccountID     string    `yaml:"actualAccountId"`
	MapConfig           MapConfig `yaml:"mapConfig"`
}

// SyncFile is the YAML document holding provider accounts and the sync map
type SyncFile struct {
	TrueLayer struct {
		Accounts []TrueLayerAccount `yaml:"accounts"`
	} `yaml:"truelayer"`
	Trading212 struct {
		Accounts []Trading212Account `yaml:"accounts"`
	} `yaml:"trading212"`
	Sync struct {
		Map []SyncEntry `yaml:"map"`
	} `yaml:"sync"`
}

// LoadSyncFile loads the sync file from path
func LoadSyncFile(path string) (*SyncFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sync config %s not found, run `actual-sync config create` first: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read sync config file: %w", err)
	}

	var file SyncFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sync config: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Validate checks provider account lists. Sync map entries are validated when
// they are turned into account sync specs.
func (f *SyncFile) Validate() error {
	seen := make(map[string]bool)
	for _, acc := range f.TrueLayer.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("truelayer account %q has no id", acc.Name)
		}
		if acc.Type != TrueLayerTypeCard && acc.Type != TrueLayerTypeAccount {
			return fmt.Errorf("truelayer account %s: type must be %s or %s, got %q", acc.ID, TrueLayerTypeCard, TrueLayerTypeAccount, acc.Type)
		}
		if acc.RefreshToken == "" {
			return fmt.Errorf("truelayer account %s has no refreshToken", acc.ID)
		}
		if seen[acc.ID] {
			return fmt.Errorf("duplicate truelayer account id %s", acc.ID)
		}
		seen[acc.ID] = true
	}

	seen = make(map[string]bool)
	for _, acc := range f.Trading212.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("trading212 account %q has no id", acc.Name)
		}
		if seen[acc.ID] {
			return fmt.Errorf("duplicate trading212 account id %s", acc.ID)
		}
		seen[acc.ID] = true
	}

	return nil
}

// GetTrueLayerAccount returns the configured TrueLayer account with id
func (f *SyncFile) GetTrueLayerAccount(id string) (TrueLayerAccount, bool) {
	for _, acc := range f.TrueLayer.Accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return TrueLayerAccount{}, false
}

// GetTrading212Account returns the configured Trading212 account with id
func (f *SyncFile) GetTrading212Account(id string) (Trading212Account, bool) {
	for _, acc := range f.Trading212.Accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return Trading212Account{}, false
}

// DefaultSyncFile returns the starter document written by `config create`
func DefaultSyncFile() *SyncFile {
	f := &SyncFile{}
	f.TrueLayer.Accounts = []TrueLayerAccount{}
	f.Trading212.Accounts = []Trading212Account{}
	f.Sync.Map = []SyncEntry{}
	return f
}

// WriteSyncFile marshals f to path. An existing file is only replaced when overwrite is set.
func WriteSyncFile(path string, f *SyncFile, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode sync config: %w", err)
	}

	// Refresh tokens live in this file
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sync config: %w", err)
	}
	return nil
}
