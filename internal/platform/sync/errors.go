package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks errors caused by the sync configuration. Always fatal for the run.
	ErrConfiguration = errors.New("configuration error")

	// ErrProviderRequest marks failures surfaced by a collaborator call.
	ErrProviderRequest = errors.New("provider request failed")

	// ErrRunInProgress is returned when a run is requested while another one is active.
	ErrRunInProgress = errors.New("sync run already in progress")

	// ErrUnexpectedBalanceCount is returned by providers that must report exactly one balance.
	ErrUnexpectedBalanceCount = errors.New("expected exactly one balance for the account")
)

// ConfigurationError reports an unresolvable or invalid AccountSyncSpec
type ConfigurationError struct {
	Spec   string // offending spec name, may be empty
	Ref    string // missing/invalid account id, may be empty
	Reason string
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Spec != "" {
		msg += fmt.Sprintf(" in sync entry %q", e.Spec)
	}
	msg += ": " + e.Reason
	if e.Ref != "" {
		msg += fmt.Sprintf(" (id %s)", e.Ref)
	}
	return msg
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigurationError
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ProviderRequestError wraps a collaborator failure with the spec it happened in
type ProviderRequestError struct {
	Spec string
	Op   string
	Err  error
}

func (e *ProviderRequestError) Error() string {
	if e.Spec == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync entry %q: %s: %v", e.Spec, e.Op, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrProviderRequest) match any ProviderRequestError
func (e *ProviderRequestError) Is(target error) bool {
	return target == ErrProviderRequest
}

// IsConfigurationError checks if an error is (or wraps) a ConfigurationError
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsProviderRequestError checks if an error is (or wraps) a ProviderRequestError
func IsProviderRequestError(err error) bool {
	return errors.Is(err, ErrProviderRequest)
}
