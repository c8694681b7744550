package report

import (
	"regexp"
	"strings"
)

// Heading is one markdown heading with a URL-fragment-safe anchor ID.
type Heading struct {
	Level int
	Text  string
	ID    string
}

// Link is one inline markdown link.
type Link struct {
	Text string
	URL  string
}

var (
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingIDPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// ExtractHeadings returns the headings of a markdown document up to and
// including maxLevel, in document order.
func ExtractHeadings(markdown string, maxLevel int) []Heading {
	var headings []Heading
	for _, m := range headingPattern.FindAllStringSubmatch(markdown, -1) {
		level := len(m[1])
		if level > maxLevel {
			continue
		}
		text := strings.TrimSpace(m[2])
		headings = append(headings, Heading{
			Level: level,
			Text:  text,
			ID:    anchorID(text),
		})
	}
	return headings
}

func anchorID(text string) string {
	id := headingIDPattern.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(id, "-")
}

// ExtractLinks returns every [text](url) link in a markdown document, in
// document order.
func ExtractLinks(markdown string) []Link {
	var links []Link
	for _, m := range linkPattern.FindAllStringSubmatch(markdown, -1) {
		links = append(links, Link{Text: m[1], URL: m[2]})
	}
	return links
}
