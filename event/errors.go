package event

import "errors"

// Validation failures. Each is wrapped in a *ValidationError carrying the
// client-facing reason.
var (
	ErrMalformed           = errors.New("event: malformed")
	ErrTooLarge            = errors.New("event: too large")
	ErrBadID               = errors.New("event: bad id")
	ErrBadSignature        = errors.New("event: bad signature")
	ErrTimestampOutOfRange = errors.New("event: created_at out of range")
	ErrExpired             = errors.New("event: expired")
)

// ValidationError reports why an event was rejected. Reason is the
// human-readable part of the OK message, without the "invalid:" prefix.
type ValidationError struct {
	Err    error
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Err.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, reason string) *ValidationError {
	return &ValidationError{Err: err, Reason: reason}
}
