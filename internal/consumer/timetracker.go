package consumer

import "time"

// clock is injected so tests can synthesize time instead of sleeping.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// TimeTracker is a monotonic time-boxing and backoff primitive for a
// single poll window (spec §4, "TimeTracker"). Start marks the
// beginning of the window; Checkpoint records elapsed attempts for
// exponential backoff; Remaining reports what is left of the window.
type TimeTracker struct {
	clock    clock
	deadline time.Time
	attempt  int
}

// NewTimeTracker returns a TimeTracker using the real wall clock.
func NewTimeTracker() *TimeTracker {
	return &TimeTracker{clock: realClock{}}
}

func newTimeTrackerWithClock(c clock) *TimeTracker {
	return &TimeTracker{clock: c}
}

// Start begins a new window of length d from now, resetting the
// backoff attempt counter.
func (t *TimeTracker) Start(d time.Duration) {
	t.deadline = t.clock.Now().Add(d)
	t.attempt = 0
}

// Remaining returns how much of the current window is left. Never
// negative.
func (t *TimeTracker) Remaining() time.Duration {
	d := t.deadline.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the current window has elapsed.
func (t *TimeTracker) Expired() bool {
	return t.Remaining() <= 0
}

// Checkpoint records one more failed attempt within the window and
// returns the exponential backoff duration to wait before retrying,
// capped at max.
func (t *TimeTracker) Checkpoint(base, max time.Duration) time.Duration {
	t.attempt++
	backoff := base << uint(t.attempt-1)
	if backoff <= 0 || backoff > max {
		backoff = max
	}
	if backoff > t.Remaining() {
		backoff = t.Remaining()
	}
	return backoff
}

// Attempt returns the number of Checkpoint calls since the last Start.
func (t *TimeTracker) Attempt() int { return t.attempt }
