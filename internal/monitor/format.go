package monitor

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// Subject is the notification subject line for identifier.
func Subject(identifier string) string {
	return "VIN NEW MATCH: " + identifier
}

// FormatBody renders the plain-text notification for new hits: a header line,
// a blank line, then one block per hit with title, URL, source/date and
// snippet lines.
func FormatBody(identifier string, hits []seen.NewHit) string {
	lines := make([]string, 0, len(hits)+2)
	lines = append(lines, fmt.Sprintf("New matches for VIN %s (found %d):", identifier, len(hits)), "")
	for _, h := range hits {
		title := h.Hit.Title
		if title == "" {
			title = "(no title)"
		}
		source := string(h.Hit.Source)
		if source == "" {
			source = "unknown"
		}
		lines = append(lines, fmt.Sprintf("- %s\n  %s\n  [%s] %s\n  %s\n",
			title, h.URL, source, h.Hit.PublishedDate, h.Hit.Snippet))
	}
	return strings.Join(lines, "\n")
}
