// Package research defines the normalized result model and the error
// taxonomy shared by the deep-research client packages.
package research

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a research interaction.
type Status string

const (
	// StatusPending indicates the interaction is queued but not started.
	StatusPending Status = "pending"
	// StatusRunning indicates the interaction is actively researching.
	StatusRunning Status = "running"
	// StatusCompleted indicates the interaction finished and produced a report.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the remote service reported a failure.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the interaction was cancelled before finishing.
	StatusCancelled Status = "cancelled"
)

// statusNames maps remote status strings to their Status, including the
// alternate spellings observed in responses.
var statusNames = map[string]Status{
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
	"cancelled":   StatusCancelled,
	"in_progress": StatusRunning,
	"running":     StatusRunning,
	"pending":     StatusPending,
}

// LookupStatus maps a remote status string to a Status. The match is
// case-insensitive; ok is false for empty or unrecognized values.
func LookupStatus(s string) (Status, bool) {
	st, ok := statusNames[strings.ToLower(s)]
	return st, ok
}

// ParseStatus maps a remote status string to a Status. Normalization only
// runs on responses the poll or stream loop already judged finished, so an
// absent or unrecognized value defaults to StatusCompleted.
func ParseStatus(s string) Status {
	if st, ok := LookupStatus(s); ok {
		return st
	}
	return StatusCompleted
}

// Terminal reports whether the status ends an interaction.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Thought is an intermediate reasoning summary emitted while research runs.
// Thoughts are append-only; slice order is chronological.
type Thought struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Phase     string    `json:"phase,omitempty"`
}

// Citation is a source reference attached to a completed report.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// TokenUsage accounts for tokens consumed by an interaction. Streaming
// results always carry zero usage.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the normalized outcome of a research interaction. A Result is
// built exactly once when an operation finishes and never mutated after.
// InteractionID is always non-empty.
type Result struct {
	Report        string     `json:"report"`
	Sources       []Citation `json:"sources,omitempty"`
	Thoughts      []Thought  `json:"thoughts,omitempty"`
	Usage         TokenUsage `json:"usage"`
	InteractionID string     `json:"interaction_id"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   time.Time  `json:"completed_at,omitzero"`
}
