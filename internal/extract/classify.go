package extract

import (
	"net/url"
	"strings"

	"nexus/internal/services"
	"nexus/internal/store"
)

// Classification is the media kind and source category derived from a URL.
type Classification struct {
	Kind     store.MediaKind
	Category store.SourceCategory
}

// Classify inspects a submitted URL. Only http and https sources are accepted.
func Classify(raw string) (Classification, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return Classification{}, services.Wrap(services.ErrValidation, "ingest", "classify url", "invalid url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Classification{}, services.Wrap(services.ErrValidation, "ingest", "classify url", "unsupported scheme "+parsed.Scheme, nil)
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	switch {
	case hostMatches(host, "youtube.com") || hostMatches(host, "youtu.be"):
		return Classification{Kind: store.KindYouTube, Category: store.SourceYouTubeURL}, nil
	case hostMatches(host, "instagram.com"):
		return Classification{Kind: store.KindInstagram, Category: store.SourceInstagramURL}, nil
	case IsFeedURL(parsed.String()):
		return Classification{Kind: store.KindWeb, Category: store.SourceRSSURL}, nil
	default:
		return Classification{Kind: store.KindWeb, Category: store.SourceWebURL}, nil
	}
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// IsFeedURL reports whether the URL path looks like an RSS or Atom feed.
func IsFeedURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	return strings.HasSuffix(path, ".xml") || strings.Contains(path, "rss") || strings.Contains(path, "feed")
}
