package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"nexus/internal/enrichment"
	"nexus/internal/extract"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/testsupport"
)

type fakeWeb struct {
	content extract.WebContent
	err     error
	calls   int
}

func (f *fakeWeb) Extract(context.Context, string) (extract.WebContent, error) {
	f.calls++
	return f.content, f.err
}

type fakeItems struct {
	items   []enrichment.Item
	err     error
	content string
	intent  string
	period  int
}

func (f *fakeItems) ExtractItems(_ context.Context, _ string, content, intent string, period int) ([]enrichment.Item, error) {
	f.content = content
	f.intent = intent
	f.period = period
	return f.items, f.err
}

type fakeEmbedder struct {
	inputs []string
	fail   string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.inputs = append(f.inputs, text)
	if f.fail != "" && text == f.fail {
		return nil, errors.New("embedding unavailable")
	}
	return []float32{1, 0, 0}, nil
}

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestSyncer(t *testing.T, web *fakeWeb, items *fakeItems, embedder *fakeEmbedder) (*Syncer, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	syncer := NewSyncer(Options{
		Store:    st,
		Web:      web,
		Items:    items,
		Embedder: embedder,
		Now:      func() time.Time { return fixedNow },
	})
	return syncer, st
}

func TestSyncRejectsItemsOlderThanPeriod(t *testing.T) {
	web := &fakeWeb{content: extract.WebContent{
		Title:   "Feed",
		Entries: []extract.FeedEntry{{Title: "Old", URL: "https://example.com/old", Summary: "old news"}},
	}}
	items := &fakeItems{items: []enrichment.Item{{
		Title:   "Old",
		URL:     "https://example.com/old",
		Date:    fixedNow.AddDate(0, 0, -10).Format(time.RFC3339),
		Summary: "old news",
	}}}
	syncer, st := newTestSyncer(t, web, items, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com/feed.xml", 7)

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.CreatedCount != 0 || result.Rejected != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	reloaded, err := st.GetSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if reloaded.LastChecked == nil || !reloaded.LastChecked.Equal(fixedNow) {
		t.Fatalf("expected last_checked %v, got %v", fixedNow, reloaded.LastChecked)
	}
	if items.period != 7 || items.intent != enrichment.DefaultIntentPrompt {
		t.Fatalf("unexpected extraction args period=%d intent=%q", items.period, items.intent)
	}
}

func TestSyncRejectsStaleItemWithCompactOffset(t *testing.T) {
	web := &fakeWeb{content: extract.WebContent{Title: "Blog", Text: "page body"}}
	items := &fakeItems{items: []enrichment.Item{{
		Title:   "Stale",
		URL:     "https://example.com/stale",
		Date:    fixedNow.AddDate(0, 0, -10).Format("2006-01-02T15:04:05-0700"),
		Summary: "ten days old",
	}}}
	syncer, st := newTestSyncer(t, web, items, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com/blog", 7)

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.CreatedCount != 0 || result.Rejected != 1 {
		t.Fatalf("stale item with +0000 offset must be rejected, got %+v", result)
	}
}

func TestSyncDropsItemsMissingFields(t *testing.T) {
	web := &fakeWeb{content: extract.WebContent{Title: "Blog", Text: "page body"}}
	items := &fakeItems{items: []enrichment.Item{
		{Title: "No URL", Summary: "missing link"},
		{Title: "Valid", URL: "https://example.com/a", Summary: "first update", Date: fixedNow.AddDate(0, 0, -1).Format("2006-01-02"), Tags: []string{"go"}},
		{Title: "Undated", URL: "https://example.com/b", Summary: "second update", Date: "sometime last week"},
		{URL: "https://example.com/c", Summary: "no title"},
	}}
	embedder := &fakeEmbedder{}
	syncer, st := newTestSyncer(t, web, items, embedder)
	sub := testsupport.NewSubscription(t, st, "https://example.com/blog", 7)

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.Status != StatusSynced || result.CreatedCount != 2 || result.Rejected != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if items.content != "page body" {
		t.Fatalf("expected page text as digest, got %q", items.content)
	}
	if len(embedder.inputs) != 2 || embedder.inputs[0] != "first update" {
		t.Fatalf("expected summaries embedded, got %v", embedder.inputs)
	}

	created, err := st.ListMedia(context.Background(), store.MediaFilter{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("ListMedia: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 items, got %d", len(created))
	}
	for _, item := range created {
		if item.Status != store.MediaCompleted || item.Origin != store.OriginSubscription {
			t.Fatalf("unexpected item state %+v", item)
		}
		if item.AISummary == "" || !item.HasEmbedding() {
			t.Fatalf("completed item lacks summary or embedding: %+v", item)
		}
		if item.SourceCategory != store.SourceWebURL {
			t.Fatalf("expected web_url category, got %s", item.SourceCategory)
		}
		switch item.SourceURL {
		case "https://example.com/a":
			if item.PublishedAt == nil {
				t.Fatal("expected parsed publish date")
			}
		case "https://example.com/b":
			if item.PublishedAt != nil {
				t.Fatal("unparsable date must stay unknown")
			}
		default:
			t.Fatalf("unexpected item %s", item.SourceURL)
		}
	}
}

func TestSyncSkipsExistingItems(t *testing.T) {
	web := &fakeWeb{content: extract.WebContent{Text: "body"}}
	items := &fakeItems{items: []enrichment.Item{
		{Title: "Seen", URL: "https://example.com/seen", Summary: "already stored"},
		{Title: "New", URL: "https://example.com/new", Summary: "fresh"},
	}}
	syncer, st := newTestSyncer(t, web, items, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com", 30)
	if err := st.CreateMedia(context.Background(), &store.MediaItem{
		Title:          "Seen",
		Kind:           store.KindWeb,
		SourceCategory: store.SourceWebURL,
		SourceURL:      "https://example.com/seen",
		Status:         store.MediaCompleted,
		Origin:         store.OriginSubscription,
		SubscriptionID: sub.ID,
	}); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.CreatedCount != 1 || result.Duplicates != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	again, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("second SyncSubscription: %v", err)
	}
	if again.CreatedCount != 0 || again.Duplicates != 2 {
		t.Fatalf("expected everything deduplicated, got %+v", again)
	}
}

func TestSyncSkipsItemsWhoseEmbeddingFails(t *testing.T) {
	web := &fakeWeb{content: extract.WebContent{Text: "body"}}
	items := &fakeItems{items: []enrichment.Item{
		{Title: "A", URL: "https://example.com/a", Summary: "boom"},
		{Title: "B", URL: "https://example.com/b", Summary: "fine"},
	}}
	syncer, st := newTestSyncer(t, web, items, &fakeEmbedder{fail: "boom"})
	sub := testsupport.NewSubscription(t, st, "https://example.com", 7)

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.CreatedCount != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSyncDisabledIsNoop(t *testing.T) {
	web := &fakeWeb{}
	syncer, st := newTestSyncer(t, web, &fakeItems{}, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com/off", 7)
	sub.SyncEnabled = false
	if err := st.UpdateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if result.Status != StatusDisabled || web.calls != 0 {
		t.Fatalf("expected disabled no-op, got %+v calls=%d", result, web.calls)
	}
	reloaded, _ := st.GetSubscription(context.Background(), sub.ID)
	if reloaded.LastChecked != nil {
		t.Fatal("disabled sync must not touch last_checked")
	}

	web.content = extract.WebContent{Text: "body"}
	manual, err := syncer.Sync(context.Background(), sub.ID, SyncOptions{Manual: true})
	if err != nil {
		t.Fatalf("manual Sync: %v", err)
	}
	if manual.Status != StatusSynced || web.calls != 1 {
		t.Fatalf("manual sync should run on disabled subscription, got %+v", manual)
	}
}

func TestSyncTotalFailureStillRecordsLastChecked(t *testing.T) {
	web := &fakeWeb{err: services.Wrap(services.ErrExternalTool, "extract", "fetch", "HTTP 404", nil)}
	syncer, st := newTestSyncer(t, web, &fakeItems{}, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com/gone", 7)

	result, err := syncer.SyncSubscription(context.Background(), sub.ID)
	if err == nil {
		t.Fatal("expected sync error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected wrapped extractor error, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	reloaded, _ := st.GetSubscription(context.Background(), sub.ID)
	if reloaded.LastChecked == nil || !reloaded.LastChecked.Equal(fixedNow) {
		t.Fatalf("expected last_checked recorded, got %v", reloaded.LastChecked)
	}
}

func TestSyncUnknownSubscription(t *testing.T) {
	syncer, _ := newTestSyncer(t, &fakeWeb{}, &fakeItems{}, &fakeEmbedder{})
	if _, err := syncer.SyncSubscription(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncUsesFeedDigestAndPrompt(t *testing.T) {
	var entries []extract.FeedEntry
	for i := range 60 {
		entries = append(entries, extract.FeedEntry{Title: fmt.Sprintf("Entry %d", i), URL: fmt.Sprintf("https://example.com/%d", i)})
	}
	web := &fakeWeb{content: extract.WebContent{Title: "Feed", Entries: entries, Text: "ignored"}}
	items := &fakeItems{}
	syncer, st := newTestSyncer(t, web, items, &fakeEmbedder{})
	sub := testsupport.NewSubscription(t, st, "https://example.com/rss", 3)
	prompt := "Only release announcements."
	sub.Prompt = prompt
	if err := st.UpdateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	if _, err := syncer.SyncSubscription(context.Background(), sub.ID); err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if items.intent != prompt {
		t.Fatalf("expected custom prompt, got %q", items.intent)
	}
	if strings.Count(items.content, "Title: ") != 50 {
		t.Fatalf("expected 50 digest entries, got %d", strings.Count(items.content, "Title: "))
	}
	if strings.Contains(items.content, "Entry 50") {
		t.Fatal("digest exceeded entry limit")
	}
}
