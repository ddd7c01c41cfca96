package domain

import "errors"

// Sentinel errors shared by the gateway, host and adapters. Match with
// errors.Is; messages are for logs only.
var (
	ErrEmptyID      = errors.New("ID cannot be empty")
	ErrInvalidID    = errors.New("invalid ID format")
	ErrInvalidInput = errors.New("invalid input")

	// Handshake.
	ErrNoSubprotocol = errors.New("no sub-protocol negotiated")

	// Session.
	ErrSessionClosed = errors.New("session is closed")
	ErrWriteInFlight = errors.New("write already in flight for this writable cycle")

	// Refusals and shutdown.
	ErrBacklogFull  = errors.New("adopt backlog full")
	ErrRateLimited  = errors.New("connection rate limit exceeded")
	ErrShuttingDown = errors.New("gateway shutting down")

	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable reports refusals a client may retry after a pause. The host
// answers these with an HTTP error and Retry-After instead of a bare close.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBacklogFull) ||
		errors.Is(err, ErrRateLimited)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrEmptyID,
	ErrInvalidID,
	ErrNoSubprotocol,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsSessionGone returns true if the error means the session can no longer
// carry data.
func IsSessionGone(err error) bool {
	return errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrShuttingDown)
}
