package extract

import (
	"errors"
	"testing"

	"nexus/internal/services"
	"nexus/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		url      string
		kind     store.MediaKind
		category store.SourceCategory
	}{
		{"https://www.youtube.com/watch?v=abc", store.KindYouTube, store.SourceYouTubeURL},
		{"https://youtu.be/abc", store.KindYouTube, store.SourceYouTubeURL},
		{"https://m.youtube.com/watch?v=abc", store.KindYouTube, store.SourceYouTubeURL},
		{"https://www.instagram.com/reel/xyz/", store.KindInstagram, store.SourceInstagramURL},
		{"https://example.com/blog/feed", store.KindWeb, store.SourceRSSURL},
		{"https://example.com/index.xml", store.KindWeb, store.SourceRSSURL},
		{"https://example.com/posts/hello", store.KindWeb, store.SourceWebURL},
	}
	for _, tc := range cases {
		got, err := Classify(tc.url)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.url, err)
		}
		if got.Kind != tc.kind || got.Category != tc.category {
			t.Fatalf("Classify(%q) = %+v", tc.url, got)
		}
	}
}

func TestClassifyRejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/file", "not a url", "/relative/path"} {
		if _, err := Classify(raw); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Classify(%q) expected validation error, got %v", raw, err)
		}
	}
}

func TestClassifyDoesNotMatchLookalikeHosts(t *testing.T) {
	got, err := Classify("https://notyoutube.com/watch")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != store.SourceWebURL {
		t.Fatalf("expected web_url, got %s", got.Category)
	}
}
