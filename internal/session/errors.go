package session

import "errors"

var (
	// ErrNoAlternateProfile is returned when no alternate credentials are configured.
	ErrNoAlternateProfile = errors.New("no alternate profile configured")

	// ErrReauthFailed is returned when non-interactive re-authentication fails.
	ErrReauthFailed = errors.New("re-authentication failed")
)
