package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerBackendActual   = "actual"
	LedgerBackendPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Env       string
	LogFormat string

	// Path to the YAML file holding provider accounts and the sync map
	SyncConfigPath string

	// Ledger configuration
	LedgerBackend        string
	ActualURL            string
	ActualAPIKey         string
	ActualSyncID         string
	ActualBudgetPassword string
	DatabaseURL          string

	// Redis configuration (optional, persists rotated TrueLayer tokens)
	RedisURL      string
	RedisPassword string

	// Provider credentials
	TrueLayerClientID     string
	TrueLayerClientSecret string
	TrueLayerRedirectURI  string
	Trading212APIKey      string

	// Notifier configuration
	NotifyEnabled bool
	NtfyURL       string
	NtfyTopic     string
	NtfyToken     string

	// Sync behaviour
	SyncFailurePolicy string
	SyncCallTimeout   time.Duration
	SyncPollInterval  time.Duration

	// Serve mode
	Port            string
	ServerJWTSecret string
	AllowedOrigins  []string
}

// Load loads configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	// A missing .env is normal: production sets real environment variables.
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("ENV", "development"),
		LogFormat:             getEnv("LOG_FORMAT", ""),
		SyncConfigPath:        SyncFilePath(),
		LedgerBackend:         strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendActual)),
		ActualURL:             getEnv("ACTUAL_URL", "http://localhost:5007"),
		ActualAPIKey:          getEnv("ACTUAL_API_KEY", ""),
		ActualSyncID:          getEnv("ACTUAL_SYNC_ID", ""),
		ActualBudgetPassword:  getEnv("ACTUAL_BUDGET_PASSWORD", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		TrueLayerClientID:     getEnv("TRUELAYER_CLIENT_ID", ""),
		TrueLayerClientSecret: getEnv("TRUELAYER_CLIENT_SECRET", ""),
		TrueLayerRedirectURI:  getEnv("TRUELAYER_REDIRECT_URI", "https://console.truelayer.com/redirect-page"),
		Trading212APIKey:      getEnv("TRADING212_API_KEY", ""),
		NotifyEnabled:         getEnvAsBool("NOTIFY_ENABLED", false),
		NtfyURL:               getEnv("NTFY_URL", "https://ntfy.sh"),
		NtfyTopic:             getEnv("NTFY_TOPIC", ""),
		NtfyToken:             getEnv("NTFY_TOKEN", ""),
		SyncFailurePolicy:     strings.ToLower(getEnv("SYNC_FAILURE_POLICY", "abort")),
		SyncCallTimeout:       getEnvAsDuration("SYNC_CALL_TIMEOUT", 30*time.Second),
		SyncPollInterval:      getEnvAsDuration("SYNC_POLL_INTERVAL", 6*time.Hour),
		Port:                  getEnv("PORT", "8080"),
		ServerJWTSecret:       getEnv("SERVER_JWT_SECRET", ""),
		AllowedOrigins:        getEnvAsList("ALLOWED_ORIGINS", nil),
	}

	// Ledger settings are checked by the commands that open the ledger:
	// provider-only commands work without them.
	if err := cfg.validateCommon(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SyncFilePath returns the sync file location from SYNC_CONFIG_PATH
func SyncFilePath() string {
	return getEnv("SYNC_CONFIG_PATH", DefaultSyncFileName)
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if err := c.ValidateLedger(); err != nil {
		return err
	}
	return c.validateCommon()
}

// ValidateLedger checks the settings of the selected ledger backend
func (c *Config) ValidateLedger() error {
	switch c.LedgerBackend {
	case LedgerBackendActual:
		if c.ActualURL == "" {
			return fmt.Errorf("ACTUAL_URL is required for the actual ledger backend")
		}
		if c.ActualSyncID == "" {
			return fmt.Errorf("ACTUAL_SYNC_ID is required for the actual ledger backend")
		}
	case LedgerBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q (expected %q or %q)", c.LedgerBackend, LedgerBackendActual, LedgerBackendPostgres)
	}
	return nil
}

func (c *Config) validateCommon() error {
	switch c.SyncFailurePolicy {
	case "continue", "abort":
	default:
		return fmt.Errorf("unknown SYNC_FAILURE_POLICY %q (expected continue or abort)", c.SyncFailurePolicy)
	}

	if c.NotifyEnabled && c.NtfyTopic == "" {
		return fmt.Errorf("NTFY_TOPIC is required when NOTIFY_ENABLED is set")
	}

	if c.SyncCallTimeout <= 0 {
		return fmt.Errorf("SYNC_CALL_TIMEOUT must be positive")
	}

	return nil
}

// ValidateServe checks the extra settings needed by the serve command
func (c *Config) ValidateServe() error {
	if c.ServerJWTSecret == "" {
		return fmt.Errorf("SERVER_JWT_SECRET is required")
	}
	if len(c.ServerJWTSecret) < 32 {
		return fmt.Errorf("SERVER_JWT_SECRET must be at least 32 characters long")
	}
	return nil
}

// TrueLayerEnabled reports whether TrueLayer credentials are configured
func (c *Config) TrueLayerEnabled() bool {
	return c.TrueLayerClientID != "" && c.TrueLayerClientSecret != ""
}

// Trading212Enabled reports whether a Trading212 API key is configured
func (c *Config) Trading212Enabled() bool {
	return c.Trading212APIKey != ""
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a time.Duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
