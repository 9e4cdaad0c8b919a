package stream

import "errors"

var (
	// ErrUnsupportedManifest is returned for manifest types the resolver cannot read.
	ErrUnsupportedManifest = errors.New("unsupported manifest type")

	// ErrUnsupportedEncryption is returned for encryption schemes other than the legacy AES token.
	ErrUnsupportedEncryption = errors.New("unsupported encryption type")

	// ErrMalformedManifest is returned when a manifest document cannot be parsed.
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrNoSegments is returned when a manifest lists no segment URLs.
	ErrNoSegments = errors.New("manifest has no segments")
)
