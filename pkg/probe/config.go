package probe

import "time"

// ConnectionConfig tunes retry, polling, and timeout behavior. Durations
// are non-negative; zero disables the corresponding bound where noted.
type ConnectionConfig struct {
	// MaxRetries bounds consecutive transient failures in the submit and
	// poll loops. The stream reconnection loop allows twice this many
	// attempts.
	MaxRetries int

	// KeepaliveTimeout is how long a connection may sit idle before the
	// poll loop flags it as stale. Advisory: reconnection stays reactive.
	KeepaliveTimeout time.Duration

	// PollInterval is the pause between status polls.
	PollInterval time.Duration

	// BaseRetryDelay seeds the backoff schedules.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps ordinary retry delays. Zero means uncapped.
	MaxRetryDelay time.Duration

	// RequestTimeout bounds each non-streaming RPC via a context deadline.
	// It is never applied to streaming calls, which stay open for the life
	// of the interaction. Zero means unbounded.
	RequestTimeout time.Duration

	// TotalTimeout bounds the entire poll loop, including time spent in
	// transient-failure backoff.
	TotalTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxRetries:       3,
		KeepaliveTimeout: 2 * time.Minute,
		PollInterval:     10 * time.Second,
		BaseRetryDelay:   2 * time.Second,
		MaxRetryDelay:    60 * time.Second,
		RequestTimeout:   30 * time.Second,
		TotalTimeout:     30 * time.Minute,
	}
}

// Rate limits get a longer, separately counted schedule than ordinary
// transient failures, and stream reconnects get a shorter capped one.
const (
	maxRateLimitRetries = 5
	rateLimitBaseDelay  = 60 * time.Second
	rateLimitMaxDelay   = 300 * time.Second
	maxReconnectDelay   = 30 * time.Second
)
