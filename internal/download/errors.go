package download

import "errors"

var (
	// ErrUnknownSkipPolicy is returned by ParseSkipPolicy.
	ErrUnknownSkipPolicy = errors.New("unknown skip policy")

	// ErrPathTraversal is returned when a rendered path escapes the download root.
	ErrPathTraversal = errors.New("path escapes download root")

	// ErrMissingKey is returned for an encrypted manifest without a key token.
	ErrMissingKey = errors.New("encrypted stream has no key token")

	// ErrAborted is returned when the abort flag stops a collection early.
	ErrAborted = errors.New("download aborted")
)
