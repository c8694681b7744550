package probe

import (
	"github.com/nstogner/deepprobe/pkg/interactions"
	"github.com/nstogner/deepprobe/pkg/research"
)

// buildResult normalizes a raw interaction into the stable result shape.
// Normalization never fails: absent or unrecognized fields produce zero
// values, not errors.
func (c *Client) buildResult(in *interactions.Interaction, id string) *research.Result {
	now := c.now()

	var report string
	var thoughts []research.Thought
	for _, out := range in.Outputs {
		// The last non-empty text output wins: later snapshots supersede
		// earlier drafts.
		if out.Text != "" {
			report = out.Text
		}
		if out.ThoughtSummary != "" {
			thoughts = append(thoughts, research.Thought{
				Timestamp: now,
				Content:   out.ThoughtSummary,
				Phase:     "thinking",
			})
		}
	}
	if report == "" && in.Response != nil {
		report = in.Response.ReportText()
	}

	var sources []research.Citation
	for _, cite := range in.Citations {
		sources = append(sources, research.Citation{
			URL:     cite.URL,
			Title:   cite.Title,
			Snippet: cite.Snippet,
		})
	}

	var usage research.TokenUsage
	if meta := in.UsageMetadata; meta != nil {
		usage = research.TokenUsage{
			InputTokens:  firstNonZero(meta.PromptTokenCount, meta.InputTokens),
			OutputTokens: firstNonZero(meta.CandidatesTokenCount, meta.OutputTokens),
			TotalTokens:  firstNonZero(meta.TotalTokenCount, meta.TotalTokens),
		}
	}

	status := research.ParseStatus(in.Status)
	result := &research.Result{
		Report:        report,
		Sources:       sources,
		Thoughts:      thoughts,
		Usage:         usage,
		InteractionID: id,
		Status:        status,
		CreatedAt:     now,
	}
	if status == research.StatusCompleted {
		result.CompletedAt = now
	}
	return result
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
