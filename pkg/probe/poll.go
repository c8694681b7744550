package probe

import (
	"context"
	"fmt"

	"github.com/nstogner/deepprobe/pkg/interactions"
	"github.com/nstogner/deepprobe/pkg/research"
)

// pollUntilComplete polls an interaction until it reaches a recognized
// terminal status, enforcing the total timeout and retrying transient
// failures with a linear backoff. The timeout clock never restarts:
// backoff time counts against it.
func (c *Client) pollUntilComplete(ctx context.Context, id string, hooks *Hooks) (*interactions.Interaction, error) {
	start := c.now()
	tracker := newActivityTracker(c.cfg.KeepaliveTimeout, c.now)
	seenThoughts := 0

	for {
		elapsed := c.now().Sub(start)
		if elapsed > c.cfg.TotalTimeout {
			return nil, &research.TimeoutError{
				Message:       fmt.Sprintf("research timed out after %.1f seconds", elapsed.Seconds()),
				InteractionID: id,
				Elapsed:       elapsed,
			}
		}
		if tracker.Stale() {
			c.logger.Debug("connection idle past keepalive window",
				"interactionID", id, "idle", tracker.Idle())
		}

		in, err := c.getInteraction(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &research.CancelledError{Message: "research cancelled", InteractionID: id, Cause: ctx.Err()}
			}
			failures := tracker.Fail()
			if failures > c.cfg.MaxRetries {
				return nil, &research.NetworkError{
					Message:       fmt.Sprintf("failed to poll research status after %d errors: %v", failures, err),
					InteractionID: id,
					RetryCount:    failures,
				}
			}
			delay := pollRetryDelay(c.cfg, failures)
			c.logger.Warn("poll attempt failed, retrying",
				"interactionID", id, "failures", failures, "delay", delay, "error", err)
			hooks.retry(failures, delay, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, &research.CancelledError{Message: "research cancelled", InteractionID: id, Cause: serr}
			}
			continue
		}
		tracker.Reset()

		// Only a recognized terminal status ends the loop; anything the
		// status table does not know keeps polling until the timeout.
		if st, ok := research.LookupStatus(in.Status); ok && st.Terminal() {
			if st == research.StatusFailed {
				return nil, &research.APIError{
					Message:       fmt.Sprintf("research failed: %s", in.Error.String()),
					InteractionID: id,
				}
			}
			return in, nil
		}

		seenThoughts = deliverNewThoughts(in, seenThoughts, hooks)

		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, &research.CancelledError{Message: "research cancelled", InteractionID: id, Cause: err}
		}
	}
}

// deliverNewThoughts fires the thought hook for summaries that appeared
// since the previous poll. Snapshots repeat the full outputs list, so
// delivery is positional over the non-empty summaries.
func deliverNewThoughts(in *interactions.Interaction, seen int, hooks *Hooks) int {
	summaries := thoughtSummaries(in)
	for i := seen; i < len(summaries); i++ {
		hooks.thought(summaries[i])
	}
	if len(summaries) > seen {
		return len(summaries)
	}
	return seen
}

func thoughtSummaries(in *interactions.Interaction) []string {
	var out []string
	for _, o := range in.Outputs {
		if o.ThoughtSummary != "" {
			out = append(out, o.ThoughtSummary)
		}
	}
	return out
}
