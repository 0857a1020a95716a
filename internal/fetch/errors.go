package fetch

import "errors"

// ErrUnsupportedProxy is returned when an identity's proxy endpoint uses a
// scheme other than socks5, http, or https.
var ErrUnsupportedProxy = errors.New("fetch: unsupported proxy scheme")
