package subscriptions

import (
	"net/mail"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"nexus/internal/extract"
)

// BuildDigest renders up to limit feed entries as text blocks. Pages without
// entries fall back to their extracted text.
func BuildDigest(content extract.WebContent, limit int) string {
	if len(content.Entries) == 0 {
		return content.Text
	}
	entries := content.Entries
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		var b strings.Builder
		b.WriteString("Title: ")
		b.WriteString(strings.TrimSpace(entry.Title))
		date := strings.TrimSpace(entry.Date)
		if entry.Published != nil {
			date = entry.Published.UTC().Format(time.RFC3339)
		}
		if date != "" {
			b.WriteString("\nDate: ")
			b.WriteString(date)
		}
		if url := strings.TrimSpace(entry.URL); url != "" {
			b.WriteString("\nURL: ")
			b.WriteString(url)
		}
		if summary := strings.TrimSpace(entry.Summary); summary != "" {
			b.WriteString("\nSummary: ")
			b.WriteString(summary)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// hourOffsetLayouts covers ISO-8601 offsets written as hours only (+02).
var hourOffsetLayouts = []string{
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04-07",
}

// ParseDate reads the dates LLM-extracted items carry: RFC-2822 feed dates
// and the ISO-8601 variants (basic and extended, any offset form). Values
// without a zone are UTC.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), true
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC(), true
	}
	for _, layout := range hourOffsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := dateparse.ParseIn(value, time.UTC); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
