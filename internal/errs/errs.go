// Package errs contains the error taxonomy shared across layers for stable
// error mapping: sentinels for local conditions and typed errors for remote
// and storage failures.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across store/repo layers.
var (
	// ErrNotFoundLocal indicates the target record does not exist in the
	// local record store. Distinct from a remote 404.
	ErrNotFoundLocal = errors.New("record not found locally")

	// ErrNoSession indicates no authenticated session is present.
	ErrNoSession = errors.New("not logged in")

	// ErrSyncInProgress indicates a reconcile run is already executing.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// NetworkError indicates the remote API could not be reached at all:
// no connectivity, DNS failure, or a timed-out request.
// Runs that fail with it are retried with backoff by the sync trigger.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError indicates the remote API answered with a non-2xx status.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error during %s: status %d", e.Op, e.Status)
}

// Message returns a human-readable description for user-facing flows.
func (e *ServerError) Message() string {
	switch e.Status {
	case 400:
		return "the server rejected the request (400)"
	case 401:
		return "authentication required (401)"
	case 403:
		return "not allowed (403)"
	case 404:
		return "not found (404)"
	case 500:
		return "internal server error (500)"
	default:
		return fmt.Sprintf("server returned status %d", e.Status)
	}
}

// StorageError indicates a local persistence failure (disk full, corruption).
// It is not retried automatically; callers surface it as a local failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError indicates a local pre-flight check failed. The request is
// never sent to the network and is not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether err should be retried by the sync trigger's
// backoff policy. Network failures and server errors both qualify; for
// background sync a 5xx and an unreachable host are handled the same way.
func IsRetryable(err error) bool {
	var ne *NetworkError
	var se *ServerError
	return errors.As(err, &ne) || errors.As(err, &se)
}
