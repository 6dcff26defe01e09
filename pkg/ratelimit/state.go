// Package ratelimit paces outgoing Axiom requests on the client side.
// It combines a token bucket with a pause window learned from the
// Retry-After header of 429 and 503 responses.
package ratelimit

import (
	"time"
)

// State is a snapshot of the limiter.
type State struct {
	// Rate is the sustained number of requests per second allowed.
	Rate float64

	// Burst is the number of requests allowed at once.
	Burst int

	// PausedUntil is the end of the current server-requested pause.
	// Zero when no pause is active.
	PausedUntil time.Time
}

// IsPaused returns true if the server asked the client to back off and the
// window has not elapsed yet.
func (s State) IsPaused() bool {
	return time.Now().Before(s.PausedUntil)
}

// TimeUntilResume returns the remaining pause duration.
// Returns 0 if no pause is active.
func (s State) TimeUntilResume() time.Duration {
	d := time.Until(s.PausedUntil)
	if d < 0 {
		return 0
	}
	return d
}
