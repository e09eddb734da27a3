package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"nexus/internal/config"
	"nexus/internal/services"
)

const (
	defaultUserAgent  = "nexus/1.0 (+https://github.com/nexus)"
	maxPageBytes      = 10 << 20
	defaultFeedLimit  = 20
	webRequestTimeout = 30 * time.Second
)

// FeedEntry is one item of a parsed feed.
type FeedEntry struct {
	Title     string
	URL       string
	Summary   string
	Date      string
	Published *time.Time
}

// WebContent is readable text pulled from a page or feed. Entries is set only for feeds.
type WebContent struct {
	Title   string
	Text    string
	Entries []FeedEntry
}

// IsFeed reports whether the content came from a feed.
func (c WebContent) IsFeed() bool {
	return len(c.Entries) > 0
}

// WebExtractor fetches articles and feeds over HTTP.
type WebExtractor struct {
	client    *http.Client
	userAgent string
	feedLimit int
}

// NewWebExtractor builds an extractor from the [subscriptions] config section.
func NewWebExtractor(cfg *config.Config) *WebExtractor {
	ua := strings.TrimSpace(cfg.Subscriptions.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	limit := cfg.Subscriptions.FeedEntryLimit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &WebExtractor{
		client:    &http.Client{Timeout: webRequestTimeout},
		userAgent: ua,
		feedLimit: limit,
	}
}

// WithHTTPClient overrides the HTTP client.
func (w *WebExtractor) WithHTTPClient(client *http.Client) *WebExtractor {
	if client != nil {
		w.client = client
	}
	return w
}

// Extract fetches rawURL and returns its readable content.
func (w *WebExtractor) Extract(ctx context.Context, rawURL string) (WebContent, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || pageURL.Host == "" {
		return WebContent{}, services.Wrap(services.ErrValidation, "extract", "web", "invalid url", err)
	}

	body, contentType, err := w.fetch(ctx, pageURL.String())
	if err != nil {
		return WebContent{}, err
	}
	if IsFeedURL(pageURL.String()) || isFeedContentType(contentType) {
		return w.extractFeed(pageURL.String(), body)
	}
	return extractPage(pageURL, body)
}

func (w *WebExtractor) fetch(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "extract", "web", "build request", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "extract", "web", "Failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return nil, "", services.Wrap(marker, "extract", "web", fmt.Sprintf("Failed to fetch URL (http %d)", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "extract", "web", "read body", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isFeedContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	switch mediaType {
	case "application/rss+xml", "application/atom+xml", "application/xml", "text/xml":
		return true
	}
	return false
}

func (w *WebExtractor) extractFeed(feedURL string, body []byte) (WebContent, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return WebContent{}, services.Wrap(services.ErrExternalTool, "extract", "feed", "parse feed", err)
	}

	content := WebContent{Title: strings.TrimSpace(feed.Title)}
	if content.Title == "" {
		content.Title = feedURL
	}

	items := feed.Items
	if len(items) > w.feedLimit {
		items = items[:w.feedLimit]
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		entry := FeedEntry{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.Link),
			Summary: plainText(firstNonEmpty(item.Description, item.Content)),
			Date:    firstNonEmpty(item.Published, item.Updated),
		}
		switch {
		case item.PublishedParsed != nil:
			entry.Published = item.PublishedParsed
		case item.UpdatedParsed != nil:
			entry.Published = item.UpdatedParsed
		}
		content.Entries = append(content.Entries, entry)
		if part := strings.TrimSpace(entry.Title + "\n" + entry.Summary); part != "" {
			parts = append(parts, part)
		}
	}

	content.Text = strings.Join(parts, "\n\n")
	if content.Text == "" {
		return WebContent{}, services.Wrap(services.ErrValidation, "extract", "feed", "Feed has no readable entries", nil)
	}
	return content, nil
}

func extractPage(pageURL *url.URL, body []byte) (WebContent, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return WebContent{}, services.Wrap(services.ErrValidation, "extract", "page", "Failed to extract readable text", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return WebContent{}, services.Wrap(services.ErrValidation, "extract", "page", "Failed to extract readable text", nil)
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = fallbackTitle(body)
	}
	if title == "" {
		title = pageURL.String()
	}
	return WebContent{Title: title, Text: text}, nil
}

// fallbackTitle tries og:title, <title> and the first <h1>.
func fallbackTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// plainText strips markup from feed summaries.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
