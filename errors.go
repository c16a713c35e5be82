package relay

import "errors"

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("relay: store is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("relay: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("relay: migration failed")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("relay: invalid config")

	// ErrShuttingDown is returned by OpenConnection after Shutdown.
	ErrShuttingDown = errors.New("relay: shutting down")
)

// Reason prefixes for OK and CLOSED messages.
const (
	PrefixInvalid      = "invalid: "
	PrefixError        = "error: "
	PrefixDuplicate    = "duplicate: "
	PrefixBlocked      = "blocked: "
	PrefixRateLimited  = "rate-limited: "
	PrefixRestricted   = "restricted: "
	PrefixAuthRequired = "auth-required: "
)
