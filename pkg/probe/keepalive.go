package probe

import "time"

// activityTracker records connection liveness for a single orchestrator
// call. Every call owns its own tracker, so concurrent operations never
// share mutable state.
type activityTracker struct {
	keepalive    time.Duration
	now          func() time.Time
	lastActivity time.Time
	failures     int
}

func newActivityTracker(keepalive time.Duration, now func() time.Time) *activityTracker {
	return &activityTracker{keepalive: keepalive, now: now, lastActivity: now()}
}

// Reset marks a successful RPC: activity is fresh and the consecutive
// failure count returns to zero.
func (t *activityTracker) Reset() {
	t.lastActivity = t.now()
	t.failures = 0
}

// Fail records a failed attempt and returns the consecutive failure count.
func (t *activityTracker) Fail() int {
	t.failures++
	return t.failures
}

// Stale reports whether the connection has been idle past the keepalive
// window.
func (t *activityTracker) Stale() bool {
	return t.Idle() > t.keepalive
}

// Idle returns how long it has been since the last successful RPC.
func (t *activityTracker) Idle() time.Duration {
	return t.now().Sub(t.lastActivity)
}
