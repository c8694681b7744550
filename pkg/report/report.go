// Package report renders research results as markdown artifacts and
// extracts structure back out of report text.
package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nstogner/deepprobe/pkg/research"
)

// Save writes a result to path as a self-contained markdown document: a
// metadata header, a separator, the report body, and a numbered source
// list. The interaction ID in the header is what `deepprobe resume` takes.
func Save(res *research.Result, path string) error {
	var b strings.Builder
	b.WriteString("# Research Report\n\n")
	fmt.Fprintf(&b, "**Interaction ID:** `%s`\n\n", res.InteractionID)
	fmt.Fprintf(&b, "**Status:** %s\n\n", res.Status)
	fmt.Fprintf(&b, "**Created:** %s\n\n", res.CreatedAt.Format(time.RFC3339))
	if !res.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "**Completed:** %s\n\n", res.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Tokens:** %d (input: %d, output: %d)\n\n",
		res.Usage.TotalTokens, res.Usage.InputTokens, res.Usage.OutputTokens)
	b.WriteString("---\n\n")

	b.WriteString(res.Report)
	b.WriteString("\n\n")

	if len(res.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for i, src := range res.Sources {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Fprintf(&b, "%d. [%s](%s)", i+1, title, src.URL)
			if src.Snippet != "" {
				fmt.Fprintf(&b, "\n   > %s", src.Snippet)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
