package probe

import (
	"strings"
	"time"
)

// errClass buckets remote errors by retry treatment.
type errClass int

const (
	errClassTransient errClass = iota
	errClassAuth
	errClassRateLimit
)

var (
	authSubstrings      = []string{"auth", "api key", "unauthorized", "401"}
	rateLimitSubstrings = []string{"429", "too_many_requests", "quota", "rate limit"}

	// Faults with these markers during stream iteration mean the
	// connection dropped, not that the operation failed.
	connectionSubstrings = []string{"connection", "closed", "chunked"}
)

// classify buckets an error by the content of its message. Transport
// failures arrive as plain errors produced by code outside this layer's
// control, so their types carry no signal. Auth markers win over
// rate-limit markers.
func classify(err error) errClass {
	msg := strings.ToLower(err.Error())
	for _, s := range authSubstrings {
		if strings.Contains(msg, s) {
			return errClassAuth
		}
	}
	for _, s := range rateLimitSubstrings {
		if strings.Contains(msg, s) {
			return errClassRateLimit
		}
	}
	return errClassTransient
}

// isConnectionError reports whether an error reads like a dropped
// connection.
func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range connectionSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// rateLimitDelay returns the n-th rate-limit backoff: 60s, 120s, then 240s
// for every attempt after that.
func rateLimitDelay(n int) time.Duration {
	d := rateLimitBaseDelay * time.Duration(1<<min(n, 2))
	return min(d, rateLimitMaxDelay)
}

// submitDelay returns the n-th ordinary submit backoff, doubling from the
// base and capped at the configured maximum.
func submitDelay(cfg ConnectionConfig, n int) time.Duration {
	d := cfg.BaseRetryDelay * time.Duration(1<<n)
	if cfg.MaxRetryDelay > 0 && d > cfg.MaxRetryDelay {
		d = cfg.MaxRetryDelay
	}
	return d
}

// pollRetryDelay returns the poll-loop backoff after n consecutive
// failures. The ramp is linear: polling already paces itself, so doubling
// on top of the interval would overshoot.
func pollRetryDelay(cfg ConnectionConfig, n int) time.Duration {
	d := cfg.BaseRetryDelay * time.Duration(n)
	if cfg.MaxRetryDelay > 0 && d > cfg.MaxRetryDelay {
		d = cfg.MaxRetryDelay
	}
	return d
}

// reconnectDelay returns the backoff before the n-th stream reconnection
// attempt, doubling from the base and capped at 30 seconds.
func reconnectDelay(cfg ConnectionConfig, n int) time.Duration {
	d := cfg.BaseRetryDelay * time.Duration(1<<min(n, 3))
	return min(d, maxReconnectDelay)
}
