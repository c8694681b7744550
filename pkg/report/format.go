package report

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders a duration at display precision: seconds under a
// minute, minutes under an hour, hours past that.
func FormatDuration(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%.1fm", s/60)
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}

// ShortID truncates an interaction ID for display.
func ShortID(id string, max int) string {
	if len(id) <= max {
		return id
	}
	return id[:max] + "..."
}

// Truncate shortens text to max characters, ellipsis included.
func Truncate(text string, max int) string {
	const suffix = "..."
	if len(text) <= max {
		return text
	}
	return text[:max-len(suffix)] + suffix
}

// EstimateReadTime returns the reading time of text in whole minutes, one
// at minimum, assuming 200 words per minute.
func EstimateReadTime(text string) int {
	const wordsPerMinute = 200
	minutes := len(strings.Fields(text)) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
