package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nstogner/deepprobe/pkg/interactions"
	"github.com/nstogner/deepprobe/pkg/research"
)

// streamSession is the mutable state of one streaming operation. It is
// threaded explicitly through event handling so a reconnect resumes exactly
// where the previous connection dropped.
type streamSession struct {
	interactionID string
	lastEventID   string
	finished      bool
	reportParts   []string
	thoughts      []research.Thought
}

func (s *streamSession) report() string { return strings.Join(s.reportParts, "") }

// ResearchStream submits a topic and streams the report as it is written,
// reconnecting dropped streams until the interaction completes. Chunks are
// delivered exactly once: reconnects resume after the last seen event.
func (c *Client) ResearchStream(ctx context.Context, topic string, hooks *Hooks) (*research.Result, error) {
	c.logger.Info("starting streaming research", "agent", c.agent)
	sess := &streamSession{}
	req := c.createRequest(topic)

	// Initial connect. Failures before an identifier is known burn submit
	// attempts; once an identifier exists, a dropped stream moves to the
	// reconnection loop instead of a fresh submission.
	rateLimited := 0
	for attempt := 0; attempt <= c.cfg.MaxRetries; {
		err := c.consumeNewStream(ctx, req, sess, hooks)
		if err == nil {
			if sess.finished || sess.interactionID != "" {
				break
			}
			// The stream died before interaction.start. Try again.
			attempt++
			continue
		}
		if ctx.Err() != nil {
			return nil, c.streamCancelled(sess, ctx.Err())
		}
		var apiErr *research.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		if isConnectionError(err) && sess.interactionID != "" {
			break
		}

		switch classify(err) {
		case errClassAuth:
			return nil, &research.AuthError{Message: fmt.Sprintf("authentication failed: %v", err)}

		case errClassRateLimit:
			if rateLimited >= maxRateLimitRetries {
				return nil, &research.APIError{
					Message:    fmt.Sprintf("API quota exceeded or rate limit reached after %d retries: %v", rateLimited, err),
					StatusCode: 429,
					Code:       "too_many_requests",
				}
			}
			delay := rateLimitDelay(rateLimited)
			rateLimited++
			c.logger.Warn("rate limited, backing off", "delay", delay, "attempt", rateLimited)
			hooks.retry(rateLimited, delay, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, c.streamCancelled(sess, serr)
			}

		default:
			if attempt >= c.cfg.MaxRetries {
				return nil, &research.NetworkError{
					Message:       fmt.Sprintf("failed to start streaming research: %v", err),
					InteractionID: sess.interactionID,
					RetryCount:    attempt,
				}
			}
			delay := submitDelay(c.cfg, attempt)
			attempt++
			c.logger.Warn("stream start failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			hooks.retry(attempt, delay, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, c.streamCancelled(sess, serr)
			}
		}
	}

	// Reconnection loop. The counter resets to zero after every call that
	// returns without failing, so only consecutive failures count toward
	// the cap.
	retries := 0
	maxReconnects := c.cfg.MaxRetries * 2
	var lastErr error
	for !sess.finished && sess.interactionID != "" {
		if retries >= maxReconnects {
			// Degrade gracefully: the interaction may have finished while
			// no stream could be held open.
			if in, err := c.getInteraction(ctx, sess.interactionID); err == nil {
				if st, ok := research.LookupStatus(in.Status); ok && st == research.StatusCompleted {
					c.logger.Info("stream reconnects exhausted, recovered final result by polling",
						"interactionID", sess.interactionID)
					return c.buildResult(in, sess.interactionID), nil
				}
			}
			return nil, &research.NetworkError{
				Message:       fmt.Sprintf("max reconnection attempts reached (%d)", maxReconnects),
				InteractionID: sess.interactionID,
				RetryCount:    retries,
			}
		}
		if retries > 0 {
			delay := reconnectDelay(c.cfg, retries)
			c.logger.Warn("stream dropped, reconnecting",
				"interactionID", sess.interactionID, "attempt", retries, "delay", delay)
			hooks.retry(retries, delay, lastErr)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, c.streamCancelled(sess, serr)
			}
		}

		err := c.consumeResumedStream(ctx, sess, hooks)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.streamCancelled(sess, ctx.Err())
			}
			var apiErr *research.APIError
			if errors.As(err, &apiErr) {
				return nil, err
			}
			retries++
			lastErr = err
			continue
		}
		retries = 0
	}

	return c.buildStreamResult(sess), nil
}

func (c *Client) consumeNewStream(ctx context.Context, req interactions.CreateRequest, sess *streamSession, hooks *Hooks) error {
	stream, err := c.api.CreateStream(ctx, req)
	if err != nil {
		return err
	}
	return c.consumeStream(stream, sess, hooks)
}

func (c *Client) consumeResumedStream(ctx context.Context, sess *streamSession, hooks *Hooks) error {
	stream, err := c.api.GetStream(ctx, sess.interactionID, sess.lastEventID)
	if err != nil {
		return err
	}
	return c.consumeStream(stream, sess, hooks)
}

// consumeStream dispatches events until the stream ends. Connection-
// flavored faults mean the stream dropped, not that the operation failed;
// they end consumption without error and leave the rest to the caller's
// reconnect handling.
func (c *Client) consumeStream(stream interactions.EventStream, sess *streamSession, hooks *Hooks) error {
	defer stream.Close()
	for {
		ev, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if isConnectionError(err) {
				c.logger.Debug("stream connection dropped",
					"interactionID", sess.interactionID, "error", err)
				return nil
			}
			return err
		}
		if err := c.handleEvent(ev, sess, hooks); err != nil {
			return err
		}
	}
}

// handleEvent applies one event to the session.
func (c *Client) handleEvent(ev *interactions.Event, sess *streamSession, hooks *Hooks) error {
	if ev.EventID != "" {
		sess.lastEventID = ev.EventID
	}

	switch ev.EventType {
	case interactions.EventInteractionStart:
		if ev.Interaction == nil {
			return nil
		}
		if id := ev.Interaction.Identifier(); id != "" && sess.interactionID == "" {
			sess.interactionID = id
			c.logger.Info("research started", "interactionID", id)
			hooks.start(id)
		}

	case interactions.EventContentDelta:
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case interactions.DeltaText:
			if ev.Delta.Text != "" {
				sess.reportParts = append(sess.reportParts, ev.Delta.Text)
				hooks.text(ev.Delta.Text)
			}
		case interactions.DeltaThoughtSummary:
			if ev.Delta.Content != nil && ev.Delta.Content.Text != "" {
				sess.thoughts = append(sess.thoughts, research.Thought{
					Timestamp: c.now(),
					Content:   ev.Delta.Content.Text,
					Phase:     "thinking",
				})
				hooks.thought(ev.Delta.Content.Text)
			}
		}

	case interactions.EventInteractionComplete:
		sess.finished = true

	case interactions.EventError:
		sess.finished = true
		return &research.APIError{
			Message:       fmt.Sprintf("research error: %s", ev.Error.String()),
			InteractionID: sess.interactionID,
		}
	}
	return nil
}

// buildStreamResult assembles the streaming result. Sources and usage are
// never available on the streaming surface: sources stay empty and usage
// stays zero no matter what the events carried.
func (c *Client) buildStreamResult(sess *streamSession) *research.Result {
	id := sess.interactionID
	if id == "" {
		// The stream never reached interaction.start.
		id = "unknown"
	}
	now := c.now()
	return &research.Result{
		Report:        sess.report(),
		Thoughts:      sess.thoughts,
		InteractionID: id,
		Status:        research.StatusCompleted,
		CreatedAt:     now,
		CompletedAt:   now,
	}
}

func (c *Client) streamCancelled(sess *streamSession, cause error) *research.CancelledError {
	return &research.CancelledError{
		Message:       "research cancelled",
		InteractionID: sess.interactionID,
		Partial:       sess.report(),
		Cause:         cause,
	}
}
