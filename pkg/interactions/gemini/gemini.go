// Package gemini implements the interactions API over the Gemini REST
// surface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/nstogner/deepprobe/pkg/interactions"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)

	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	interactionsPath = "/v1beta/interactions"
)

// Config configures the REST client.
type Config struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the production endpoint. Optional.
	BaseURL string

	// HTTPClient overrides the default client. Its transport is wrapped
	// for API key injection and trace logging. The client must not carry
	// a global timeout: event streams stay open for the life of an
	// interaction, and per-request deadlines belong to the caller's
	// context. Optional.
	HTTPClient *http.Client
}

// Client talks to the interactions REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ interactions.API = (*Client)(nil)

// New creates a Client for the interactions surface.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		hc = &clone
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &loggingTransport{base: base, apiKey: cfg.APIKey}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}, nil
}

// Create starts a new background interaction.
func (c *Client) Create(ctx context.Context, req interactions.CreateRequest) (*interactions.Interaction, error) {
	slog.Debug("interactions create", "agent", req.Agent, "background", req.Background)
	req.Stream = false
	return c.doInteraction(ctx, http.MethodPost, interactionsPath, req)
}

// Get fetches the current snapshot of an interaction.
func (c *Client) Get(ctx context.Context, id string) (*interactions.Interaction, error) {
	return c.doInteraction(ctx, http.MethodGet, interactionsPath+"/"+url.PathEscape(id), nil)
}

// CreateStream starts a new background interaction and opens its event
// stream.
func (c *Client) CreateStream(ctx context.Context, req interactions.CreateRequest) (interactions.EventStream, error) {
	slog.Debug("interactions create stream", "agent", req.Agent)
	req.Stream = true
	httpReq, err := c.newRequest(ctx, http.MethodPost, interactionsPath+"?alt=sse", req)
	if err != nil {
		return nil, err
	}
	return c.openStream(httpReq)
}

// GetStream re-attaches to a running interaction's event stream. A non-empty
// lastEventID is forwarded in the standard Last-Event-ID header so the
// remote resumes after the last event the caller saw.
func (c *Client) GetStream(ctx context.Context, id, lastEventID string) (interactions.EventStream, error) {
	slog.Debug("interactions resume stream", "id", id, "lastEventID", lastEventID)
	httpReq, err := c.newRequest(ctx, http.MethodGet, interactionsPath+"/"+url.PathEscape(id)+"?alt=sse", nil)
	if err != nil {
		return nil, err
	}
	if lastEventID != "" {
		httpReq.Header.Set("Last-Event-ID", lastEventID)
	}
	return c.openStream(httpReq)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gemini: encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("gemini: building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doInteraction issues a non-streaming request and decodes the interaction
// body. Non-2xx responses become plain errors embedding the HTTP status
// code and body text, which is what the retry layer classifies on.
func (c *Client) doInteraction(ctx context.Context, method, path string, payload any) (*interactions.Interaction, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var in interactions.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("gemini: decoding interaction: %w", err)
	}
	return &in, nil
}

func (c *Client) openStream(req *http.Request) (interactions.EventStream, error) {
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return newEventStream(resp.Body), nil
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("failed to dump interactions request", "error", err)
	} else {
		slog.Debug("interactions REST request", "url", req.URL.String(), "dump", string(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// For streaming, don't dump the body to avoid consuming it/blocking.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("failed to dump interactions response", "error", err)
	} else {
		slog.Debug("interactions REST response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}
