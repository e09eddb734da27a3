package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nexus/internal/services"
	"nexus/internal/testsupport"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
	lastUser  string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, user string) (string, error) {
	idx := f.calls
	f.calls++
	f.lastUser = user
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

var instantRetry = services.RetryPolicy{Attempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}

func TestSummarizeNormalizesTags(t *testing.T) {
	fake := &fakeCompleter{responses: []string{`{"aiSummary":" A talk about Go. ","tags":["#GoLang","golang","Distributed Systems",""]}`}}
	svc := NewWithCompleter(testsupport.NewConfig(t), fake).WithRetryPolicy(instantRetry)

	got, err := svc.Summarize(context.Background(), "transcript text")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Summary != "A talk about Go." {
		t.Fatalf("summary = %q", got.Summary)
	}
	want := []string{"golang", "distributed-systems"}
	if strings.Join(got.Tags, ",") != strings.Join(want, ",") {
		t.Fatalf("tags = %v, want %v", got.Tags, want)
	}
}

func TestSummarizeRetriesMalformedOutput(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"not json", `{"aiSummary":"ok","tags":[]}`}}
	svc := NewWithCompleter(testsupport.NewConfig(t), fake).WithRetryPolicy(instantRetry)

	got, err := svc.Summarize(context.Background(), "text")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Summary != "ok" || fake.calls != 2 {
		t.Fatalf("unexpected result %+v after %d calls", got, fake.calls)
	}
}

func TestSummarizeFailsAfterThreeTransientErrors(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "llm", "complete", "503", nil)
	fake := &fakeCompleter{errs: []error{transient, transient, transient, nil}, responses: []string{`{"aiSummary":"late"}`}}
	svc := NewWithCompleter(testsupport.NewConfig(t), fake).WithRetryPolicy(instantRetry)

	_, err := svc.Summarize(context.Background(), "text")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls)
	}
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	svc := NewWithCompleter(testsupport.NewConfig(t), &fakeCompleter{})
	if _, err := svc.Summarize(context.Background(), "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExtractItemsCapsAndDefaultsPrompt(t *testing.T) {
	var items []map[string]any
	for i := 0; i < 12; i++ {
		items = append(items, map[string]any{"title": " T ", "url": "https://e.com/x", "summary": "s", "date": "2024-01-01"})
	}
	raw, _ := json.Marshal(map[string]any{"items": items})
	fake := &fakeCompleter{responses: []string{string(raw)}}
	svc := NewWithCompleter(testsupport.NewConfig(t), fake).WithRetryPolicy(instantRetry)

	got, err := svc.ExtractItems(context.Background(), "Blog", "content", "", 7)
	if err != nil {
		t.Fatalf("ExtractItems: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 items, got %d", len(got))
	}
	if got[0].Title != "T" {
		t.Fatalf("title not trimmed: %q", got[0].Title)
	}
	if !strings.Contains(fake.lastUser, DefaultIntentPrompt) || !strings.Contains(fake.lastUser, "last 7 days") {
		t.Fatalf("prompt missing defaults: %s", fake.lastUser)
	}
	if !strings.Contains(fake.lastUser, "between 3 and 10 items") {
		t.Fatalf("prompt missing bounds: %s", fake.lastUser)
	}
}

func TestExtractItemsAcceptsBareArray(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"```json\n[{\"title\":\"A\",\"url\":\"u\",\"summary\":\"s\"}]\n```"}}
	svc := NewWithCompleter(testsupport.NewConfig(t), fake).WithRetryPolicy(instantRetry)

	got, err := svc.ExtractItems(context.Background(), "Blog", "content", "custom", 3)
	if err != nil {
		t.Fatalf("ExtractItems: %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("unexpected items %+v", got)
	}
}

func TestNewUsesConfiguredEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithLLMEndpoint(server.URL, server.URL))
	svc := New(cfg).WithRetryPolicy(instantRetry)
	_, err := svc.Summarize(context.Background(), "text")
	if err == nil {
		t.Fatal("expected failure")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 HTTP attempts, got %d", calls.Load())
	}
}
