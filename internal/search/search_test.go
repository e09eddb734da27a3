package search_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"nexus/internal/search"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/testsupport"
)

type fixedEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func seed(t *testing.T, st *store.Store, title string, status store.MediaStatus, vec []float32, tags ...string) *store.MediaItem {
	t.Helper()
	item := &store.MediaItem{
		Title:          title,
		Kind:           store.KindWeb,
		SourceCategory: store.SourceWebURL,
		SourceURL:      "https://example.com/" + title,
		Status:         status,
		Embedding:      vec,
		Tags:           tags,
		AISummary:      "summary of " + title,
	}
	if err := st.CreateMedia(context.Background(), item); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	return item
}

func TestSearchRanksAndFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	exact := seed(t, st, "exact", store.MediaCompleted, []float32{1, 0, 0}, "go")
	near := seed(t, st, "close", store.MediaCompleted, []float32{0.9, 0.3, 0})
	seed(t, st, "orthogonal", store.MediaCompleted, []float32{0, 1, 0})
	seed(t, st, "pending", store.MediaPending, []float32{1, 0, 0})
	seed(t, st, "unembedded", store.MediaCompleted, nil)

	svc := search.New(st, &fixedEmbedder{vector: []float32{1, 0, 0}}, nil)
	results, err := svc.Search(context.Background(), "golang", 0, search.DefaultMinSimilarity)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].ID != exact.ID || results[0].Similarity != 1 {
		t.Fatalf("unexpected top hit %+v", results[0])
	}
	if results[1].ID != near.ID || results[1].Similarity != 0.949 {
		t.Fatalf("expected rounded similarity for second hit, got %+v", results[1])
	}
	if results[0].AISummary != "summary of exact" || len(results[0].Tags) != 1 {
		t.Fatalf("result fields not populated: %+v", results[0])
	}

	limited, err := svc.Search(context.Background(), "golang", 1, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != exact.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestSearchValidatesQueryAndPropagatesEmbedErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	embedder := &fixedEmbedder{err: errors.New("embedding backend down")}
	svc := search.New(st, embedder, nil)

	if _, err := svc.Search(context.Background(), "   ", 5, 0.5); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if embedder.calls != 0 {
		t.Fatal("blank query should not reach the embedder")
	}
	if _, err := svc.Search(context.Background(), "query", 5, 0.5); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestByTagReturnsCompletedOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seed(t, st, "a", store.MediaCompleted, nil, "golang", "databases")
	seed(t, st, "b", store.MediaPending, nil, "golang")
	seed(t, st, "c", store.MediaCompleted, nil, "go")

	svc := search.New(st, &fixedEmbedder{}, nil)
	items, err := svc.ByTag(context.Background(), " GoLang ", 0, 0)
	if err != nil {
		t.Fatalf("ByTag: %v", err)
	}
	if len(items) != 1 || items[0].Title != "a" {
		t.Fatalf("unexpected tag results %+v", items)
	}
	if _, err := svc.ByTag(context.Background(), "", 0, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 2}, []float32{2, 4}, 1},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{0, 0}, 0},
		{[]float32{1}, []float32{1, 0}, 0},
		{nil, nil, 0},
	}
	for _, tc := range cases {
		if got := search.CosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("CosineSimilarity(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
