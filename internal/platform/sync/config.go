package sync

import (
	"fmt"
	"time"
)

// FailurePolicy decides what a provider failure in one entry does to the run
type FailurePolicy string

const (
	// FailurePolicyAbort stops the run at the first provider failure
	FailurePolicyAbort FailurePolicy = "abort"
	// FailurePolicyContinue records the failure in RunResult.Failed and moves on
	FailurePolicyContinue FailurePolicy = "continue"
)

// Config holds configuration for the sync service
type Config struct {
	// FailurePolicy applies to provider/ledger request errors only;
	// configuration errors always abort the run.
	FailurePolicy FailurePolicy

	// CallTimeout bounds every single collaborator call
	CallTimeout time.Duration

	// PollInterval is how often Run starts a new sync
	PollInterval time.Duration

	// Enabled determines if background sync is enabled
	Enabled bool
}

// DefaultConfig returns the default sync configuration
func DefaultConfig() *Config {
	return &Config{
		FailurePolicy: FailurePolicyAbort,
		CallTimeout:   30 * time.Second,
		PollInterval:  6 * time.Hour,
		Enabled:       true,
	}
}

// ParseFailurePolicy converts a configuration string into a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case FailurePolicyAbort, FailurePolicyContinue:
		return FailurePolicy(s), nil
	case "":
		return FailurePolicyAbort, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// Validate fills zero values with defaults. An unknown failure policy is
// replaced by FailurePolicyAbort and reported.
func (c *Config) Validate() error {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 6 * time.Hour
	}

	policy, err := ParseFailurePolicy(string(c.FailurePolicy))
	if err != nil {
		c.FailurePolicy = FailurePolicyAbort
		return err
	}
	c.FailurePolicy = policy
	return nil
}
