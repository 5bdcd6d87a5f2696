package game

import "time"

// Status represents the state of the latest contest.
type Status string

const (
	StatusNone   Status = "none"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// IsOpen reports whether a contest started at start still accepts entries at now.
func IsOpen(start, now time.Time, window time.Duration) bool {
	return start.Add(window).After(now)
}

func StatusAt(start, now time.Time, window time.Duration) Status {
	if start.IsZero() {
		return StatusNone
	}
	if IsOpen(start, now, window) {
		return StatusActive
	}
	return StatusClosed
}
