// Package probe orchestrates long-running deep-research interactions:
// submission with retry, status polling, streaming with reconnection, and
// normalization of the loosely typed remote responses into a stable result.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nstogner/deepprobe/pkg/interactions"
	"github.com/nstogner/deepprobe/pkg/interactions/gemini"
	"github.com/nstogner/deepprobe/pkg/research"
)

// Hooks are optional callbacks threaded through an operation. All callbacks
// run synchronously on the operation's goroutine; nil hooks and nil fields
// are skipped.
type Hooks struct {
	// OnStart is called once, as soon as the interaction identifier is
	// known.
	OnStart func(interactionID string)

	// OnThought is called once per newly observed thought summary, in
	// order.
	OnThought func(text string)

	// OnText is called for each streamed report chunk. Streaming only;
	// chunks are never replayed across reconnects.
	OnText func(chunk string)

	// OnRetry is called before each backoff sleep that follows a failed
	// attempt. err is the failure being retried; it may be nil when a
	// dropped stream is being reconnected.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (h *Hooks) start(id string) {
	if h != nil && h.OnStart != nil {
		h.OnStart(id)
	}
}

func (h *Hooks) thought(text string) {
	if h != nil && h.OnThought != nil {
		h.OnThought(text)
	}
}

func (h *Hooks) text(chunk string) {
	if h != nil && h.OnText != nil {
		h.OnText(chunk)
	}
}

func (h *Hooks) retry(attempt int, delay time.Duration, err error) {
	if h != nil && h.OnRetry != nil {
		h.OnRetry(attempt, delay, err)
	}
}

// Options configures a Client.
type Options struct {
	// APIKey authenticates against the production service. When empty,
	// the GEMINI_API_KEY environment variable is used. Ignored when API
	// is set.
	APIKey string

	// API overrides the transport. Used by tests and custom deployments.
	API interactions.API

	// BaseURL overrides the production endpoint when API is not set.
	BaseURL string

	// Config tunes retries and timeouts. Nil means DefaultConfig.
	Config *ConnectionConfig

	// Agent overrides the research agent identifier.
	Agent string

	// ThinkingSummaries selects thought-summary emission:
	// interactions.ThinkingSummariesAuto (the default) or
	// interactions.ThinkingSummariesNone.
	ThinkingSummaries string

	// Logger receives progress and retry logs. Nil means slog.Default.
	Logger *slog.Logger
}

// Client runs deep-research operations against an interactions API. Methods
// are safe for concurrent use: every call tracks its own state.
type Client struct {
	api      interactions.API
	cfg      ConnectionConfig
	agent    string
	thinking string
	logger   *slog.Logger

	// Injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. Credentials are resolved here: a missing API key is
// an AuthError at construction, not on first use.
func New(opts Options) (*Client, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	api := opts.API
	if api == nil {
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			return nil, &research.AuthError{Message: "API key required: set GEMINI_API_KEY or pass Options.APIKey"}
		}
		var err error
		api, err = gemini.New(gemini.Config{APIKey: key, BaseURL: opts.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("building interactions client: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	agent := opts.Agent
	if agent == "" {
		agent = interactions.DefaultAgent
	}
	thinking := opts.ThinkingSummaries
	if thinking == "" {
		thinking = interactions.ThinkingSummariesAuto
	}
	return &Client{
		api:      api,
		cfg:      cfg,
		agent:    agent,
		thinking: thinking,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Research submits a topic and blocks until the final report is ready.
func (c *Client) Research(ctx context.Context, topic string, hooks *Hooks) (*research.Result, error) {
	c.logger.Info("starting research", "agent", c.agent)

	in, err := c.createWithRetry(ctx, c.createRequest(topic), hooks)
	if err != nil {
		return nil, err
	}
	id := in.Identifier()
	if id == "" {
		return nil, &research.NetworkError{Message: "could not extract interaction id from response"}
	}
	c.logger.Info("research started", "interactionID", id)
	hooks.start(id)

	final, err := c.pollUntilComplete(ctx, id, hooks)
	if err != nil {
		return nil, err
	}
	return c.buildResult(final, id), nil
}

// Resume re-attaches to a previously started interaction and blocks until
// it finishes. The identifier is not validated up front; a bad one surfaces
// from the first poll.
func (c *Client) Resume(ctx context.Context, interactionID string, hooks *Hooks) (*research.Result, error) {
	c.logger.Info("resuming research", "interactionID", interactionID)
	hooks.start(interactionID)

	final, err := c.pollUntilComplete(ctx, interactionID, hooks)
	if err != nil {
		return nil, err
	}
	return c.buildResult(final, interactionID), nil
}

// createWithRetry starts a new interaction, classifying every failure per
// the retry policy: auth failures abort immediately, rate limits wait on
// their own longer schedule, and everything else backs off exponentially
// up to MaxRetries. The two counters are independent, so a rate-limited
// attempt never burns an ordinary retry.
func (c *Client) createWithRetry(ctx context.Context, req interactions.CreateRequest, hooks *Hooks) (*interactions.Interaction, error) {
	rateLimited := 0
	for attempt := 0; ; {
		in, err := c.createInteraction(ctx, req)
		if err == nil {
			return in, nil
		}
		if ctx.Err() != nil {
			return nil, &research.CancelledError{Message: "research cancelled", Cause: ctx.Err()}
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
			c.logger.Warn("rate limited, backing off",
				"delay", delay, "attempt", rateLimited, "maxAttempts", maxRateLimitRetries)
			hooks.retry(rateLimited, delay, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, &research.CancelledError{Message: "research cancelled", Cause: serr}
			}

		default:
			if attempt >= c.cfg.MaxRetries {
				return nil, &research.NetworkError{
					Message:    fmt.Sprintf("failed to start research after %d retries: %v", attempt, err),
					RetryCount: attempt,
				}
			}
			delay := submitDelay(c.cfg, attempt)
			attempt++
			c.logger.Warn("start attempt failed, retrying",
				"attempt", attempt, "delay", delay, "error", err)
			hooks.retry(attempt, delay, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, &research.CancelledError{Message: "research cancelled", Cause: serr}
			}
		}
	}
}

func (c *Client) createRequest(topic string) interactions.CreateRequest {
	return interactions.CreateRequest{
		Input:      topic,
		Agent:      c.agent,
		Background: true,
		AgentConfig: interactions.AgentConfig{
			Type:              interactions.AgentTypeDeepResearch,
			ThinkingSummaries: c.thinking,
		},
	}
}

// createInteraction and getInteraction bound each non-streaming RPC with
// the per-request timeout. Streaming calls are exempt: an event stream is
// supposed to stay open.
func (c *Client) createInteraction(ctx context.Context, req interactions.CreateRequest) (*interactions.Interaction, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.api.Create(ctx, req)
}

func (c *Client) getInteraction(ctx context.Context, id string) (*interactions.Interaction, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.api.Get(ctx, id)
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Operation is a handle to research running on a background goroutine.
type Operation struct {
	done   chan struct{}
	result *research.Result
	err    error
}

// Done is closed when the operation finishes.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation finishes or ctx is cancelled. Cancelling
// this ctx abandons the wait, not the work; cancel the context passed at
// start to stop the operation itself.
func (o *Operation) Wait(ctx context.Context) (*research.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.done:
		return o.result, o.err
	}
}

func runOperation(fn func() (*research.Result, error)) *Operation {
	op := &Operation{done: make(chan struct{})}
	go func() {
		defer close(op.done)
		op.result, op.err = fn()
	}()
	return op
}

// ResearchAsync runs Research on a background goroutine.
func (c *Client) ResearchAsync(ctx context.Context, topic string, hooks *Hooks) *Operation {
	return runOperation(func() (*research.Result, error) { return c.Research(ctx, topic, hooks) })
}

// ResearchStreamAsync runs ResearchStream on a background goroutine.
func (c *Client) ResearchStreamAsync(ctx context.Context, topic string, hooks *Hooks) *Operation {
	return runOperation(func() (*research.Result, error) { return c.ResearchStream(ctx, topic, hooks) })
}

// ResumeAsync runs Resume on a background goroutine.
func (c *Client) ResumeAsync(ctx context.Context, interactionID string, hooks *Hooks) *Operation {
	return runOperation(func() (*research.Result, error) { return c.Resume(ctx, interactionID, hooks) })
}
