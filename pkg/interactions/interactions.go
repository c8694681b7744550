// Package interactions defines the client surface of the background
// interactions API used for deep research, along with schema-tolerant types
// for its loosely specified responses. Implementations live in subpackages
// (gemini); the orchestrator depends only on the API interface.
package interactions

import (
	"context"
	"encoding/json"
)

// DefaultAgent is the deep-research agent identifier.
const DefaultAgent = "deep-research-pro-preview-12-2025"

// Agent configuration values.
const (
	AgentTypeDeepResearch = "deep-research"
	ThinkingSummariesAuto = "auto"
	ThinkingSummariesNone = "none"
)

// Event types emitted on a streaming interaction.
const (
	EventInteractionStart    = "interaction.start"
	EventContentDelta        = "content.delta"
	EventInteractionComplete = "interaction.complete"
	EventError               = "error"
)

// Content delta types.
const (
	DeltaText           = "text"
	DeltaThoughtSummary = "thought_summary"
)

// AgentConfig selects the agent behavior for a new interaction.
type AgentConfig struct {
	Type              string `json:"type"`
	ThinkingSummaries string `json:"thinking_summaries,omitempty"`
}

// CreateRequest describes a new background interaction.
type CreateRequest struct {
	Input       string      `json:"input"`
	Agent       string      `json:"agent"`
	Background  bool        `json:"background"`
	AgentConfig AgentConfig `json:"agent_config"`
	Stream      bool        `json:"stream,omitempty"`
}

// API is the remote interactions surface.
type API interface {
	// Create starts a new background interaction and returns its first
	// snapshot.
	Create(ctx context.Context, req CreateRequest) (*Interaction, error)

	// CreateStream starts a new background interaction and streams its
	// events as they are produced.
	CreateStream(ctx context.Context, req CreateRequest) (EventStream, error)

	// Get fetches the current snapshot of an interaction.
	Get(ctx context.Context, id string) (*Interaction, error)

	// GetStream re-attaches to a running interaction's event stream.
	// lastEventID, when non-empty, asks the remote to resume delivery
	// after that event instead of replaying from the beginning.
	GetStream(ctx context.Context, id, lastEventID string) (EventStream, error)
}

// EventStream is a server-sent stream of interaction events. Next returns
// io.EOF when the remote closes the stream cleanly.
type EventStream interface {
	Next() (*Event, error)
	Close() error
}

// Interaction is the remote representation of a research task. The response
// shape has drifted across server revisions, so identifier and usage fields
// carry alternate names and the response and error payloads are loosely
// typed.
type Interaction struct {
	ID            string `json:"id,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
	UUID          string `json:"uuid,omitempty"`
	UID           string `json:"uid,omitempty"`

	Status        string       `json:"status,omitempty"`
	Outputs       []Output     `json:"outputs,omitempty"`
	Citations     []Citation   `json:"citations,omitempty"`
	UsageMetadata *Usage       `json:"usage_metadata,omitempty"`
	Response      *Response    `json:"response,omitempty"`
	Error         *ErrorDetail `json:"error,omitempty"`
}

// Identifier returns the interaction's identifier, trying the known field
// names in priority order. Empty when the response carries none.
func (in *Interaction) Identifier() string {
	for _, id := range []string{in.ID, in.InteractionID, in.UUID, in.UID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// Output is one entry of an interaction's outputs list.
type Output struct {
	Text           string `json:"text,omitempty"`
	ThoughtSummary string `json:"thought_summary,omitempty"`
}

// Citation is a source reference as the remote reports it.
type Citation struct {
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Usage carries token accounting under either of the two naming conventions
// the service has used.
type Usage struct {
	PromptTokenCount     int `json:"prompt_token_count,omitempty"`
	InputTokens          int `json:"input_tokens,omitempty"`
	CandidatesTokenCount int `json:"candidates_token_count,omitempty"`
	OutputTokens         int `json:"output_tokens,omitempty"`
	TotalTokenCount      int `json:"total_token_count,omitempty"`
	TotalTokens          int `json:"total_tokens,omitempty"`
}

// Response is the fallback result container some revisions return instead
// of outputs. On the wire it is either an object with text or content
// fields, or a bare JSON string.
type Response struct {
	Text    string `json:"text,omitempty"`
	Content string `json:"content,omitempty"`
}

// UnmarshalJSON accepts both wire shapes. A bare string decodes into Text;
// unrecognized shapes decode to an empty Response rather than failing the
// whole interaction.
func (r *Response) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Response{Text: s}
		return nil
	}
	type plain Response
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*r = Response(p)
		return nil
	}
	*r = Response{}
	return nil
}

// ReportText returns the response text, preferring the text field over
// content.
func (r *Response) ReportText() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Content
}

// ErrorDetail is the error payload attached to failed interactions and
// error events. On the wire it is either an object or a bare string.
type ErrorDetail struct {
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
}

// UnmarshalJSON accepts both wire shapes. Unrecognized shapes decode to an
// empty ErrorDetail rather than failing the whole payload.
func (e *ErrorDetail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ErrorDetail{Message: s}
		return nil
	}
	type plain ErrorDetail
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*e = ErrorDetail(p)
		return nil
	}
	*e = ErrorDetail{}
	return nil
}

// String renders the most useful message available. Safe on nil.
func (e *ErrorDetail) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status != "" {
		return e.Status
	}
	return "unknown error"
}

// Event is one server-sent event on a streaming interaction.
type Event struct {
	EventID     string       `json:"event_id,omitempty"`
	EventType   string       `json:"event_type,omitempty"`
	Interaction *Interaction `json:"interaction,omitempty"`
	Delta       *Delta       `json:"delta,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// Delta is the incremental payload of a content.delta event. Text deltas
// carry their chunk in Text; thought deltas nest theirs under Content.
type Delta struct {
	Type    string        `json:"type,omitempty"`
	Text    string        `json:"text,omitempty"`
	Content *DeltaContent `json:"content,omitempty"`
}

// DeltaContent holds the text of a nested delta payload.
type DeltaContent struct {
	Text string `json:"text,omitempty"`
}
