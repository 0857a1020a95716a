package model

import (
	"net/http"
	"strings"
)

// Page is a successfully fetched page handed to plugin handlers.
// The body is capped by the fetcher's max body size, so holding it in
// memory is bounded.
type Page struct {
	// URL is the normalized URL that was fetched.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type from the Content-Type header.
	ContentType string `json:"content_type"`

	// Headers contains the HTTP response headers.
	Headers http.Header `json:"headers"`

	// Body is the response body, truncated to the configured cap.
	Body []byte `json:"-"`

	// Depth is the link distance of the task that fetched this page.
	Depth int `json:"depth"`

	// SessionID is the session the fetch was attached to, if any.
	SessionID string `json:"session_id,omitempty"`
}

// IsHTML reports whether the page's content type is HTML.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml")
}
