package gemini

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nstogner/deepprobe/pkg/interactions"
)

// eventStream decodes server-sent events from a streaming response body.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

var _ interactions.EventStream = (*eventStream)(nil)

func newEventStream(body io.ReadCloser) *eventStream {
	scanner := bufio.NewScanner(body)
	// Report bodies arrive as large deltas; the default 64KB token limit
	// is too small for them.
	scanner.Buffer(make([]byte, 0, 64*1024), 2<<20)
	return &eventStream{body: body, scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the remote closes the
// stream cleanly.
func (s *eventStream) Next() (*interactions.Event, error) {
	var (
		data      strings.Builder
		eventID   string
		eventName string
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			// Blank line dispatches the accumulated block. Blocks with no
			// data (keep-alives, id-only frames) are skipped.
			if data.Len() == 0 {
				eventID, eventName = "", ""
				continue
			}
			return s.decodeEvent(data.String(), eventID, eventName)
		}
		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line, used by some servers as a keep-alive.
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("gemini: reading stream: %w", err)
	}
	// Streams that end without a trailing blank line still dispatch their
	// final block.
	if data.Len() > 0 {
		return s.decodeEvent(data.String(), eventID, eventName)
	}
	return nil, io.EOF
}

func (s *eventStream) decodeEvent(payload, eventID, eventName string) (*interactions.Event, error) {
	if strings.TrimSpace(payload) == "[DONE]" {
		return nil, io.EOF
	}
	var ev interactions.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("gemini: decoding stream event: %w", err)
	}
	// The payload's own fields win; SSE framing fields fill the gaps.
	if ev.EventID == "" {
		ev.EventID = eventID
	}
	if ev.EventType == "" {
		ev.EventType = eventName
	}
	return &ev, nil
}

// Close releases the underlying response body.
func (s *eventStream) Close() error {
	return s.body.Close()
}
