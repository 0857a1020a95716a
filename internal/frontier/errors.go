package frontier

import "errors"

var (
	// ErrUnsupportedScheme is returned when a URL is neither http nor https.
	ErrUnsupportedScheme = errors.New("frontier: unsupported URL scheme")

	// ErrMissingHost is returned when a URL has no host component.
	ErrMissingHost = errors.New("frontier: URL has no host")
)
