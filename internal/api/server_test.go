package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nexus/internal/api"
	"nexus/internal/blob"
	"nexus/internal/chat"
	"nexus/internal/ingest"
	"nexus/internal/search"
	"nexus/internal/store"
	"nexus/internal/testsupport"
)

type stubQueue struct{ n int }

func (q *stubQueue) EnqueueJob(_ context.Context, jobID, _ string) (string, error) {
	q.n++
	return "task-" + jobID, nil
}

func (q *stubQueue) EnqueueManualSync(_ context.Context, id string) (string, error) {
	q.n++
	return "sync-" + id, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubCompleter struct{ lastPrompt string }

func (s *stubCompleter) CompleteText(_ context.Context, _, user string) (string, error) {
	s.lastPrompt = user
	return "Vectors are covered in your archive.", nil
}

type harness struct {
	st     *store.Store
	router http.Handler
	model  *stubCompleter
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewLocal(cfg.Storage.LocalDir)
	if err != nil {
		t.Fatalf("blob.NewLocal: %v", err)
	}
	searchSvc := search.New(st, stubEmbedder{}, nil)
	model := &stubCompleter{}
	router := api.NewRouter(api.Options{
		Store:  st,
		Ingest: ingest.New(cfg, st, blobs, &stubQueue{}, nil),
		Search: searchSvc,
		Chat:   chat.NewWithCompleter(st, searchSvc, model, nil),
		Token:  token,
	})
	return &harness{st: st, router: router, model: model}
}

func (h *harness) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestProcessURLAndJobStatus(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(t, http.MethodPost, "/api/media/process/url", "application/json",
		[]byte(`{"url":"https://www.youtube.com/watch?v=abc","title":"Talk"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	sub := decode[ingest.Submission](t, rec)
	if sub.JobID == "" || sub.MediaID == "" || sub.Status != "queued" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	rec = h.do(t, http.MethodGet, "/api/jobs/"+sub.JobID, "", nil)
	view := decode[store.StatusView](t, rec)
	if rec.Code != http.StatusOK || view.Status != store.JobPending || view.MediaID != sub.MediaID {
		t.Fatalf("unexpected job view %d %+v", rec.Code, view)
	}

	rec = h.do(t, http.MethodGet, "/api/media/"+sub.MediaID+"/job", "", nil)
	if rec.Code != http.StatusOK || decode[store.StatusView](t, rec).JobID != sub.JobID {
		t.Fatalf("media job lookup failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/media/"+sub.MediaID, "", nil)
	item := decode[store.MediaItem](t, rec)
	if item.Title != "Talk" || item.Kind != store.KindYouTube {
		t.Fatalf("unexpected media %+v", item)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t, "")
	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/media/process/url", `{"url":"ftp://example.com/x"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/media/process/url", `{}`, http.StatusBadRequest},
		{http.MethodGet, "/api/media/missing", "", http.StatusNotFound},
		{http.MethodDelete, "/api/media/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/missing", "", http.StatusNotFound},
		{http.MethodPost, "/api/media/missing/retry", "", http.StatusNotFound},
		{http.MethodGet, "/api/media?limit=zero", "", http.StatusBadRequest},
		{http.MethodPost, "/api/search", `{"query":"  "}`, http.StatusBadRequest},
		{http.MethodPost, "/api/subscriptions", `{"url":"https://a.example.com","period_days":400}`, http.StatusBadRequest},
		{http.MethodPost, "/api/subscriptions/missing/sync", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := h.do(t, tc.method, tc.path, "application/json", []byte(tc.body))
		if rec.Code != tc.want {
			t.Fatalf("%s %s = %d, want %d (%s)", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
		if decode[api.ErrorResponse](t, rec).Error == "" {
			t.Fatalf("%s %s: missing error body", tc.method, tc.path)
		}
	}
}

func TestUploadMultipart(t *testing.T) {
	h := newHarness(t, "")
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "memo.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write(testsupport.WAVBytes(testsupport.Tone(800, 1)))
	_ = writer.WriteField("title", "Voice memo")
	_ = writer.Close()

	rec := h.do(t, http.MethodPost, "/api/media/process/upload", writer.FormDataContentType(), body.Bytes())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	sub := decode[ingest.Submission](t, rec)
	item, _ := h.st.GetMedia(context.Background(), sub.MediaID)
	if item == nil || item.Title != "Voice memo" || item.SourceCategory != store.SourceUploadedAudio {
		t.Fatalf("unexpected upload media %+v", item)
	}

	rec = h.do(t, http.MethodPost, "/api/media/process/upload", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file should be 400, got %d", rec.Code)
	}
}

func TestListMediaAndDelete(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	for _, status := range []store.MediaStatus{store.MediaCompleted, store.MediaCompleted, store.MediaError} {
		testsupport.NewMedia(t, h.st, &store.MediaItem{
			Title:          "item",
			Kind:           store.KindWeb,
			SourceCategory: store.SourceWebURL,
			Status:         status,
		})
	}

	rec := h.do(t, http.MethodGet, "/api/media?status=completed&limit=1", "", nil)
	page := decode[api.MediaListResponse](t, rec)
	if len(page.Items) != 1 || page.Limit != 1 || page.Items[0].Status != store.MediaCompleted {
		t.Fatalf("unexpected page %+v", page)
	}
	rec = h.do(t, http.MethodGet, "/api/media?status=completed&skip=1", "", nil)
	if got := decode[api.MediaListResponse](t, rec); len(got.Items) != 1 {
		t.Fatalf("skip not applied: %+v", got)
	}

	id := page.Items[0].ID
	rec = h.do(t, http.MethodDelete, "/api/media/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", rec.Code, rec.Body.String())
	}
	if got, _ := h.st.GetMedia(ctx, id); got != nil {
		t.Fatal("media should be gone")
	}
}

func TestSubscriptionRoutes(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(t, http.MethodPost, "/api/subscriptions", "application/json", []byte(`{"url":"https://blog.example.com","type":"site"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	sub := decode[store.Subscription](t, rec)

	rec = h.do(t, http.MethodPost, "/api/subscriptions", "application/json", []byte(`{"url":"https://blog.example.com"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate should be 409, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPatch, "/api/subscriptions/"+sub.ID, "application/json", []byte(`{"period_days":14}`))
	if rec.Code != http.StatusOK || decode[store.Subscription](t, rec).PeriodDays != 14 {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/sync", "", nil)
	if rec.Code != http.StatusAccepted || decode[api.SyncResponse](t, rec).TaskID != "sync-"+sub.ID {
		t.Fatalf("sync: %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/subscriptions/import", "application/yaml",
		[]byte("subscriptions:\n  - url: https://news.example.com\n  - url: https://blog.example.com\n"))
	result := decode[ingest.ImportResult](t, rec)
	if rec.Code != http.StatusOK || len(result.Created) != 1 || len(result.Skipped) != 1 {
		t.Fatalf("import: %d %+v", rec.Code, result)
	}

	rec = h.do(t, http.MethodGet, "/api/subscriptions", "", nil)
	if subs := decode[[]store.Subscription](t, rec); len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	rec = h.do(t, http.MethodDelete, "/api/subscriptions/"+sub.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/api/subscriptions/"+sub.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted subscription should 404, got %d", rec.Code)
	}
}

func TestSearchRoutes(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	item := &store.MediaItem{
		Title:          "Vectors",
		Kind:           store.KindWeb,
		SourceCategory: store.SourceWebURL,
		Status:         store.MediaCompleted,
		Embedding:      []float32{1, 0},
		Tags:           []string{"math"},
	}
	if err := h.st.CreateMedia(ctx, item); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/api/search", "application/json", []byte(`{"query":"linear algebra"}`))
	resp := decode[api.SearchResponse](t, rec)
	if rec.Code != http.StatusOK || len(resp.Results) != 1 || resp.Results[0].ID != item.ID {
		t.Fatalf("search: %d %+v", rec.Code, resp)
	}

	rec = h.do(t, http.MethodGet, "/api/search/tags/math", "", nil)
	if page := decode[api.MediaListResponse](t, rec); len(page.Items) != 1 {
		t.Fatalf("tag search: %+v", page)
	}
}

func TestChatRoutes(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	item := &store.MediaItem{
		Title:          "Vectors",
		Kind:           store.KindWeb,
		SourceCategory: store.SourceWebURL,
		Status:         store.MediaCompleted,
		AISummary:      "Dot products and norms.",
		Embedding:      []float32{1, 0},
	}
	if err := h.st.CreateMedia(ctx, item); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/api/chat", "application/json", []byte(`{"message":"what do I know about vectors?"}`))
	reply := decode[chat.Reply](t, rec)
	if rec.Code != http.StatusOK || reply.Response == "" || len(reply.ContextMediaIDs) != 1 || reply.ContextMediaIDs[0] != item.ID {
		t.Fatalf("chat: %d %+v", rec.Code, reply)
	}
	if !strings.Contains(h.model.lastPrompt, "Source: Vectors") {
		t.Fatalf("prompt lacks archive context: %q", h.model.lastPrompt)
	}

	if rec := h.do(t, http.MethodPost, "/api/chat", "application/json", []byte(`{"message":"x","max_context_items":500}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized context, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/api/chat", "application/json", []byte(`{}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/chat/history", "", nil)
	history := decode[api.ChatHistoryResponse](t, rec)
	if rec.Code != http.StatusOK || len(history.Messages) != 2 || history.Messages[0].Role != store.ChatAssistant {
		t.Fatalf("history: %d %+v", rec.Code, history)
	}

	rec = h.do(t, http.MethodDelete, "/api/chat/history", "", nil)
	cleared := decode[api.ChatClearResponse](t, rec)
	if rec.Code != http.StatusOK || cleared.Status != "cleared" || cleared.MessagesDeleted != 2 {
		t.Fatalf("clear: %d %+v", rec.Code, cleared)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	h := newHarness(t, "s3cret")

	if rec := h.do(t, http.MethodGet, "/api/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/api/media", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	status := decode[api.DaemonStatus](t, rec)
	if rec.Code != http.StatusOK || status.Driver != "sqlite" || status.PID == 0 {
		t.Fatalf("status: %d %+v", rec.Code, status)
	}
}
