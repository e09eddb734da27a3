package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nexus/internal/services"
	"nexus/internal/testsupport"
)

const articleHTML = `<!doctype html>
<html><head><title>Deep Dive</title></head>
<body><article><h1>Deep Dive</h1>
<p>Go services coordinate pipelines with explicit error returns and careful context handling.</p>
<p>Each stage persists its state before returning so workers can resume safely after restarts.</p>
<p>This paragraph adds enough body text for the readability scorer to consider the article content.</p>
</article></body></html>`

func feedXML(items int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Weekly Notes</title>`)
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, `<item><title>Post %d</title><link>https://example.com/p/%d</link><description>&lt;p&gt;Summary %d&lt;/p&gt;</description><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>`, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newWebExtractor(t *testing.T) *WebExtractor {
	t.Helper()
	return NewWebExtractor(testsupport.NewConfig(t))
}

func TestExtractPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Fatalf("missing user agent")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	content, err := newWebExtractor(t).Extract(context.Background(), server.URL+"/posts/deep-dive")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if content.IsFeed() {
		t.Fatal("page should not be a feed")
	}
	if !strings.Contains(content.Text, "explicit error returns") {
		t.Fatalf("unexpected text %q", content.Text)
	}
	if content.Title == "" {
		t.Fatal("expected a title")
	}
}

func TestExtractFeedLimitsEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML(25)))
	}))
	defer server.Close()

	content, err := newWebExtractor(t).Extract(context.Background(), server.URL+"/feed")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if content.Title != "Weekly Notes" {
		t.Fatalf("title = %q", content.Title)
	}
	if len(content.Entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(content.Entries))
	}
	first := content.Entries[0]
	if first.Summary != "Summary 0" || first.URL != "https://example.com/p/0" || first.Published == nil {
		t.Fatalf("unexpected entry %+v", first)
	}
	if !strings.HasPrefix(content.Text, "Post 0\nSummary 0") {
		t.Fatalf("unexpected text %q", content.Text)
	}
}

func TestExtractFeedDetectedByContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = w.Write([]byte(feedXML(2)))
	}))
	defer server.Close()

	content, err := newWebExtractor(t).Extract(context.Background(), server.URL+"/updates")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !content.IsFeed() {
		t.Fatal("expected feed detection from content type")
	}
}

func TestExtractEmptyFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML(0)))
	}))
	defer server.Close()

	_, err := newWebExtractor(t).Extract(context.Background(), server.URL+"/rss.xml")
	if err == nil || !strings.Contains(err.Error(), "Feed has no readable entries") {
		t.Fatalf("expected empty feed error, got %v", err)
	}
}

func TestExtractHTTPErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newWebExtractor(t).Extract(context.Background(), server.URL+"/page")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFallbackTitle(t *testing.T) {
	html := []byte(`<html><head><meta property="og:title" content="OG Title"><title>Plain</title></head><body></body></html>`)
	if got := fallbackTitle(html); got != "OG Title" {
		t.Fatalf("fallbackTitle = %q", got)
	}
	if got := fallbackTitle([]byte(`<html><body><h1> Heading </h1></body></html>`)); got != "Heading" {
		t.Fatalf("fallbackTitle = %q", got)
	}
}
