package media

import "errors"

// Error taxonomy shared across the engine.
var (
	// ErrNotAvailable is returned when the media has been deactivated upstream.
	// It is informational, not a download failure.
	ErrNotAvailable = errors.New("media not available")

	// ErrUnauthorized is returned when the session credentials are rejected.
	ErrUnauthorized = errors.New("session unauthorized")

	// ErrInvalidRef is returned when a media reference cannot be parsed.
	ErrInvalidRef = errors.New("invalid media reference")
)
