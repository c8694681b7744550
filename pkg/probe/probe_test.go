package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nstogner/deepprobe/pkg/interactions"
	"github.com/nstogner/deepprobe/pkg/research"
)

// stepResult is one scripted reply from the fake API.
type stepResult struct {
	in  *interactions.Interaction
	err error
}

type streamStep struct {
	stream *fakeStream
	err    error
}

// fakeStream replays scripted events, then fails with err, or ends cleanly
// with io.EOF when err is nil.
type fakeStream struct {
	events []*interactions.Event
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Next() (*interactions.Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeAPI replays scripted responses and records calls.
type fakeAPI struct {
	creates       []stepResult
	gets          []stepResult
	createStreams []streamStep
	getStreams    []streamStep

	createCalls       int
	getCalls          int
	createStreamCalls int
	getStreamCalls    int

	lastCreate   interactions.CreateRequest
	lastEventIDs []string
}

func (f *fakeAPI) Create(ctx context.Context, req interactions.CreateRequest) (*interactions.Interaction, error) {
	f.createCalls++
	f.lastCreate = req
	if len(f.creates) == 0 {
		return nil, errors.New("fake: unscripted Create call")
	}
	step := f.creates[0]
	f.creates = f.creates[1:]
	return step.in, step.err
}

func (f *fakeAPI) Get(ctx context.Context, id string) (*interactions.Interaction, error) {
	f.getCalls++
	if len(f.gets) == 0 {
		return nil, errors.New("fake: unscripted Get call")
	}
	step := f.gets[0]
	f.gets = f.gets[1:]
	return step.in, step.err
}

func (f *fakeAPI) CreateStream(ctx context.Context, req interactions.CreateRequest) (interactions.EventStream, error) {
	f.createStreamCalls++
	f.lastCreate = req
	if len(f.createStreams) == 0 {
		return nil, errors.New("fake: unscripted CreateStream call")
	}
	step := f.createStreams[0]
	f.createStreams = f.createStreams[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.stream, nil
}

func (f *fakeAPI) GetStream(ctx context.Context, id, lastEventID string) (interactions.EventStream, error) {
	f.getStreamCalls++
	f.lastEventIDs = append(f.lastEventIDs, lastEventID)
	if len(f.getStreams) == 0 {
		return nil, errors.New("fake: unscripted GetStream call")
	}
	step := f.getStreams[0]
	f.getStreams = f.getStreams[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.stream, nil
}

var _ interactions.API = (*fakeAPI)(nil)

// recorder captures the synthetic clock and every backoff the client slept.
type recorder struct {
	now    time.Time
	sleeps []time.Duration
}

// testClient wires a Client to the fake API with a synthetic clock: sleeps
// advance the clock instead of waiting, so delay schedules are asserted as
// recorded values.
func testClient(t *testing.T, api interactions.API, cfg ConnectionConfig) (*Client, *recorder) {
	t.Helper()
	c, err := New(Options{
		API:    api,
		Config: &cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c.now = func() time.Time { return rec.now }
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec.sleeps = append(rec.sleeps, d)
		rec.now = rec.now.Add(d)
		return nil
	}
	return c, rec
}

func testConfig() ConnectionConfig {
	cfg := DefaultConfig()
	// Keep scripted fakes free of real deadlines.
	cfg.RequestTimeout = 0
	return cfg
}

func completedInteraction(id, text string) *interactions.Interaction {
	return &interactions.Interaction{
		ID:      id,
		Status:  "completed",
		Outputs: []interactions.Output{{Text: text}},
	}
}

func pendingInteraction(id string) *interactions.Interaction {
	return &interactions.Interaction{ID: id, Status: "pending"}
}

func wantSleeps(t *testing.T, got []time.Duration, want ...time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("slept %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slept %v, want %v", got, want)
		}
	}
}

func TestResearchPollsUntilComplete(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{
			{in: pendingInteraction("int-1")},
			{in: pendingInteraction("int-1")},
			{in: completedInteraction("int-1", "Report body")},
		},
	}
	c, rec := testClient(t, api, testConfig())

	res, err := c.Research(context.Background(), "history of tea", nil)
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if res.Report != "Report body" {
		t.Errorf("Report = %q, want %q", res.Report, "Report body")
	}
	if res.Status != research.StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, research.StatusCompleted)
	}
	if res.InteractionID != "int-1" {
		t.Errorf("InteractionID = %q, want %q", res.InteractionID, "int-1")
	}
	// Two pending polls means exactly two poll-interval sleeps.
	wantSleeps(t, rec.sleeps, 10*time.Second, 10*time.Second)
	if api.getCalls != 3 {
		t.Errorf("getCalls = %d, want 3", api.getCalls)
	}
}

func TestResearchSendsAgentConfig(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets:    []stepResult{{in: completedInteraction("int-1", "r")}},
	}
	c, _ := testClient(t, api, testConfig())

	if _, err := c.Research(context.Background(), "history of tea", nil); err != nil {
		t.Fatalf("Research: %v", err)
	}
	req := api.lastCreate
	if req.Input != "history of tea" {
		t.Errorf("Input = %q, want the topic", req.Input)
	}
	if req.Agent != interactions.DefaultAgent {
		t.Errorf("Agent = %q, want %q", req.Agent, interactions.DefaultAgent)
	}
	if !req.Background {
		t.Error("Background = false, want true")
	}
	if req.AgentConfig.Type != interactions.AgentTypeDeepResearch {
		t.Errorf("AgentConfig.Type = %q, want %q", req.AgentConfig.Type, interactions.AgentTypeDeepResearch)
	}
	if req.AgentConfig.ThinkingSummaries != interactions.ThinkingSummariesAuto {
		t.Errorf("ThinkingSummaries = %q, want %q", req.AgentConfig.ThinkingSummaries, interactions.ThinkingSummariesAuto)
	}
}

func TestResearchThinkingSummariesOff(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets:    []stepResult{{in: completedInteraction("int-1", "r")}},
	}
	cfg := testConfig()
	c, err := New(Options{
		API:               api,
		Config:            &cfg,
		ThinkingSummaries: interactions.ThinkingSummariesNone,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Research(context.Background(), "t", nil); err != nil {
		t.Fatalf("Research: %v", err)
	}
	if got := api.lastCreate.AgentConfig.ThinkingSummaries; got != interactions.ThinkingSummariesNone {
		t.Errorf("ThinkingSummaries = %q, want %q", got, interactions.ThinkingSummariesNone)
	}
}

func TestResearchFailsWithoutInteractionID(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: &interactions.Interaction{Status: "pending"}}},
	}
	c, rec := testClient(t, api, testConfig())

	_, err := c.Research(context.Background(), "t", nil)
	var netErr *research.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Research error = %v, want NetworkError", err)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("slept %v, want no sleeps for an unusable response", rec.sleeps)
	}
	if api.getCalls != 0 {
		t.Errorf("getCalls = %d, want 0", api.getCalls)
	}
}

func TestResearchStartHookReceivesID(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-42")}},
		gets:    []stepResult{{in: completedInteraction("int-42", "r")}},
	}
	c, _ := testClient(t, api, testConfig())

	var started []string
	_, err := c.Research(context.Background(), "t", &Hooks{
		OnStart: func(id string) { started = append(started, id) },
	})
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if len(started) != 1 || started[0] != "int-42" {
		t.Errorf("OnStart calls = %v, want [int-42]", started)
	}
}

func TestResumeSkipsSubmission(t *testing.T) {
	api := &fakeAPI{
		gets: []stepResult{{in: &interactions.Interaction{
			ID:            "int-7",
			Status:        "completed",
			Outputs:       []interactions.Output{{Text: "resumed report"}},
			UsageMetadata: &interactions.Usage{TotalTokenCount: 512},
		}}},
	}
	c, rec := testClient(t, api, testConfig())

	res, err := c.Resume(context.Background(), "int-7", nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if api.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", api.createCalls)
	}
	if api.getCalls != 1 {
		t.Errorf("getCalls = %d, want 1", api.getCalls)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("slept %v, want no sleeps for an already-completed interaction", rec.sleeps)
	}
	if res.Report != "resumed report" {
		t.Errorf("Report = %q, want %q", res.Report, "resumed report")
	}
	if res.Usage.TotalTokens != 512 {
		t.Errorf("TotalTokens = %d, want 512", res.Usage.TotalTokens)
	}
	if res.InteractionID != "int-7" {
		t.Errorf("InteractionID = %q, want %q", res.InteractionID, "int-7")
	}
}

func TestPollDeliversNewThoughtsOnce(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{
			{in: &interactions.Interaction{ID: "int-1", Status: "running", Outputs: []interactions.Output{
				{ThoughtSummary: "Scoping the question"},
			}}},
			{in: &interactions.Interaction{ID: "int-1", Status: "running", Outputs: []interactions.Output{
				{ThoughtSummary: "Scoping the question"},
				{ThoughtSummary: "Reading primary sources"},
			}}},
			{in: completedInteraction("int-1", "r")},
		},
	}
	c, _ := testClient(t, api, testConfig())

	var thoughts []string
	_, err := c.Research(context.Background(), "t", &Hooks{
		OnThought: func(text string) { thoughts = append(thoughts, text) },
	})
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	want := []string{"Scoping the question", "Reading primary sources"}
	if len(thoughts) != len(want) {
		t.Fatalf("thoughts = %v, want %v", thoughts, want)
	}
	for i := range want {
		if thoughts[i] != want[i] {
			t.Fatalf("thoughts = %v, want %v", thoughts, want)
		}
	}
}

func TestPollRemoteFailureIsAPIError(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{{in: &interactions.Interaction{
			ID:     "int-1",
			Status: "failed",
			Error:  &interactions.ErrorDetail{Message: "agent exploded"},
		}}},
	}
	c, rec := testClient(t, api, testConfig())

	_, err := c.Research(context.Background(), "t", nil)
	var apiErr *research.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Research error = %v, want APIError", err)
	}
	if apiErr.InteractionID != "int-1" {
		t.Errorf("InteractionID = %q, want %q", apiErr.InteractionID, "int-1")
	}
	if got := apiErr.Error(); got != "research failed: agent exploded (interaction_id: int-1)" {
		t.Errorf("Error() = %q", got)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("slept %v, want no retries for an explicit failure", rec.sleeps)
	}
}

func TestPollRetriesTransientErrorsThenFails(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{
			{err: errors.New("transport flaked")},
			{err: errors.New("transport flaked")},
			{err: errors.New("transport flaked")},
		},
	}
	c, rec := testClient(t, api, cfg)

	_, err := c.Research(context.Background(), "t", nil)
	var netErr *research.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Research error = %v, want NetworkError", err)
	}
	if netErr.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", netErr.RetryCount)
	}
	if netErr.InteractionID != "int-1" {
		t.Errorf("InteractionID = %q, want %q", netErr.InteractionID, "int-1")
	}
	// Linear poll backoff: base x 1, base x 2.
	wantSleeps(t, rec.sleeps, 2*time.Second, 4*time.Second)
}

func TestPollRecoversAfterTransientErrors(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{
			{err: errors.New("transport flaked")},
			{in: completedInteraction("int-1", "recovered")},
		},
	}
	c, rec := testClient(t, api, testConfig())

	res, err := c.Research(context.Background(), "t", nil)
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if res.Report != "recovered" {
		t.Errorf("Report = %q, want %q", res.Report, "recovered")
	}
	wantSleeps(t, rec.sleeps, 2*time.Second)
}

func TestPollTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TotalTimeout = 25 * time.Second
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets: []stepResult{
			{in: pendingInteraction("int-1")},
			{in: pendingInteraction("int-1")},
			{in: pendingInteraction("int-1")},
		},
	}
	c, _ := testClient(t, api, cfg)

	_, err := c.Research(context.Background(), "t", nil)
	var timeoutErr *research.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Research error = %v, want TimeoutError", err)
	}
	if timeoutErr.Elapsed < cfg.TotalTimeout {
		t.Errorf("Elapsed = %v, want at least %v", timeoutErr.Elapsed, cfg.TotalTimeout)
	}
	if timeoutErr.InteractionID != "int-1" {
		t.Errorf("InteractionID = %q, want %q", timeoutErr.InteractionID, "int-1")
	}
}

func TestPollCancellationCarriesID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets:    []stepResult{{in: pendingInteraction("int-1")}},
	}
	c, _ := testClient(t, api, testConfig())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Research(ctx, "t", nil)
	var cancelErr *research.CancelledError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("Research error = %v, want CancelledError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("errors.Is(err, context.Canceled) = false, want true")
	}
	if research.InteractionID(err) != "int-1" {
		t.Errorf("InteractionID(err) = %q, want %q", research.InteractionID(err), "int-1")
	}
}

func TestResearchAsyncDeliversResult(t *testing.T) {
	api := &fakeAPI{
		creates: []stepResult{{in: pendingInteraction("int-1")}},
		gets:    []stepResult{{in: completedInteraction("int-1", "async report")}},
	}
	c, _ := testClient(t, api, testConfig())

	op := c.ResearchAsync(context.Background(), "t", nil)
	res, err := op.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Report != "async report" {
		t.Errorf("Report = %q, want %q", res.Report, "async report")
	}
	select {
	case <-op.Done():
	default:
		t.Error("Done() not closed after Wait returned")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := New(Options{})
	var authErr *research.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("New error = %v, want AuthError", err)
	}
}
