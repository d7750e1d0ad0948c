package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers branch on.
var (
	// ErrProviderUnavailable means the requested provider is not registered
	// or failed its availability check. Fatal to the call, never retried.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrSandboxNotFound means no session exists and no provider reports
	// the sandbox ID.
	ErrSandboxNotFound = errors.New("sandbox not found")

	// ErrCreationFailed wraps a provider error thrown during create. The
	// manager recovers it at most once via failover.
	ErrCreationFailed = errors.New("sandbox creation failed")
)

// UnsupportedError is returned when an operation is invoked on a provider
// that does not advertise the required capability. It is a typed result so
// callers can branch on it rather than parse a generic failure.
type UnsupportedError struct {
	Provider  string
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("provider %s does not support %s", e.Provider, e.Operation)
}

// Unsupported builds an UnsupportedError for a provider/operation pair.
func Unsupported(provider, operation string) error {
	return &UnsupportedError{Provider: provider, Operation: operation}
}

// IsUnsupported reports whether err is a capability rejection.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
