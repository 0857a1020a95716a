package frontier

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize reduces a raw URL to its canonical dedup form and reports the
// owning domain. The canonical form keeps scheme, host, path, and sorted
// query parameters; the fragment is dropped and default ports are stripped.
func Normalize(raw string) (normalized, domain string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	domain = strings.ToLower(u.Hostname())
	host := domain
	if host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMissingHost, raw)
	}
	port := u.Port()
	if port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	c := url.URL{Scheme: scheme, Host: host, Path: path}
	if u.RawQuery != "" {
		// Encode sorts parameters by key, so equivalent URLs with
		// reordered queries collapse to one entry.
		c.RawQuery = u.Query().Encode()
	}
	return c.String(), domain, nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
