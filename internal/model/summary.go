package model

import "time"

// Summary accounts for every admitted URL in exactly one terminal bucket.
// The scheduler builds it as tasks complete; no URL may vanish without a
// recorded outcome.
type Summary struct {
	// RunID identifies the crawl run.
	RunID string `json:"run_id"`

	// Succeeded counts tasks that fetched successfully.
	Succeeded int `json:"succeeded"`

	// Failed counts tasks that ended in a terminal failure: client errors
	// and retry-budget exhaustion.
	Failed int `json:"failed"`

	// Excluded counts tasks denied by the exclusion policy.
	Excluded int `json:"excluded"`

	// TimedOut counts tasks still pending when the run deadline hit.
	TimedOut int `json:"timed_out"`

	// StartedAt and FinishedAt bound the run's wall-clock duration.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Outcomes holds the terminal record for every admitted URL,
	// in completion order.
	Outcomes []Outcome `json:"outcomes,omitempty"`
}

// Record adds an outcome to its terminal bucket and appends it to Outcomes.
func (s *Summary) Record(o Outcome) {
	switch o.Class {
	case ClassNone:
		s.Succeeded++
	case ClassExcluded:
		s.Excluded++
	case ClassTimeout:
		s.TimedOut++
	default:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Total returns the number of terminal outcomes recorded.
func (s *Summary) Total() int {
	return s.Succeeded + s.Failed + s.Excluded + s.TimedOut
}

// Elapsed returns the run's wall-clock duration.
func (s *Summary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
