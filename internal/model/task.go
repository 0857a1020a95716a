package model

import "time"

// Task is a single URL awaiting fetch. Tasks are created when a URL is
// admitted to the frontier, mutated on each retry (attempt count increments,
// eligible time advances), and destroyed on terminal success or failure.
type Task struct {
	// URL is the normalized URL to fetch.
	URL string `json:"url"`

	// Domain is the host component of URL, used for throttle partitioning.
	Domain string `json:"domain"`

	// Depth is the link distance from the seed that produced this task.
	// Seeds have depth 0.
	Depth int `json:"depth"`

	// Attempt is the number of fetch attempts already made for this task.
	// It is 0 for a task that has never been dispatched.
	Attempt int `json:"attempt"`

	// NotBefore is the earliest time this task may be dispatched.
	// The zero value means the task is immediately eligible.
	NotBefore time.Time `json:"not_before"`

	// SessionID names the logical session this task's requests belong to.
	// Empty means the request is unauthenticated.
	SessionID string `json:"session_id,omitempty"`
}

// Eligible reports whether the task may be dispatched at the given time.
func (t *Task) Eligible(now time.Time) bool {
	return !t.NotBefore.After(now)
}
