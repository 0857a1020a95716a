package model

import (
	"net/http"
	"time"
)

// FailureClass categorizes the result of a fetch attempt. The class decides
// whether the scheduler retries the task, how long it backs off, and which
// terminal bucket the task lands in.
type FailureClass int

const (
	// ClassNone indicates a successful fetch (2xx after redirects).
	ClassNone FailureClass = iota

	// ClassTransientNetwork covers connect, DNS, and timeout errors.
	// Retryable with standard exponential backoff.
	ClassTransientNetwork

	// ClassServerError covers 5xx responses. Retryable.
	ClassServerError

	// ClassRateLimited covers 429 responses. Retryable, but the backoff
	// widens more aggressively than for generic server errors.
	ClassRateLimited

	// ClassClientError covers 4xx responses other than 429. Terminal:
	// retrying a client error wastes request budget and risks escalating
	// a block.
	ClassClientError

	// ClassExcluded marks URLs denied by the exclusion policy. Terminal,
	// and the request is never issued.
	ClassExcluded

	// ClassIdentityExhausted means no healthy identity was available.
	// The task is retried after the identity cool-down.
	ClassIdentityExhausted

	// ClassSessionExpired means the response signalled a dead session.
	// The task is retried once re-authentication resolves, without
	// counting against its retry budget.
	ClassSessionExpired

	// ClassTimeout marks tasks still pending when the run deadline was
	// reached. Terminal; assigned only by the scheduler during shutdown.
	ClassTimeout
)

// String returns the snake_case name used in logs, metrics, and reports.
func (c FailureClass) String() string {
	switch c {
	case ClassNone:
		return "success"
	case ClassTransientNetwork:
		return "transient_network"
	case ClassServerError:
		return "server_error"
	case ClassRateLimited:
		return "rate_limited"
	case ClassClientError:
		return "client_error"
	case ClassExcluded:
		return "excluded"
	case ClassIdentityExhausted:
		return "identity_exhausted"
	case ClassSessionExpired:
		return "session_expired"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this class may be re-attempted
// within the task's retry budget. ClassSessionExpired and
// ClassIdentityExhausted are handled separately by the scheduler and are
// not part of the budgeted retry set.
func (c FailureClass) Retryable() bool {
	switch c {
	case ClassTransientNetwork, ClassServerError, ClassRateLimited:
		return true
	default:
		return false
	}
}

// ClassifyStatus maps an HTTP status code to a failure class.
// Redirects are followed by the HTTP client, so 3xx codes are not expected
// here; they classify as success to avoid misreporting.
func ClassifyStatus(status int) FailureClass {
	switch {
	case status >= 200 && status < 400:
		return ClassNone
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassServerError
	case status >= 400:
		return ClassClientError
	default:
		return ClassTransientNetwork
	}
}

// Outcome is the terminal record for one admitted URL. Exactly one Outcome
// is reported to the sink per admitted URL; the sink must be idempotent
// under re-delivery of the same record.
type Outcome struct {
	// RunID identifies the crawl run that produced this outcome.
	RunID string `json:"run_id"`

	// URL is the normalized URL the outcome describes.
	URL string `json:"url"`

	// Domain is the host component of URL.
	Domain string `json:"domain"`

	// StatusCode is the final HTTP status, or 0 if no response was received.
	StatusCode int `json:"status_code"`

	// Class is the terminal classification.
	Class FailureClass `json:"class"`

	// Attempts is the number of fetch attempts made.
	Attempts int `json:"attempts"`

	// FinishedAt is when the task reached its terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the outcome is a successful fetch.
func (o *Outcome) Succeeded() bool {
	return o.Class == ClassNone
}
