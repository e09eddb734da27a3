package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nexus/internal/blob"
	"nexus/internal/config"
	"nexus/internal/ingest"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/testsupport"
)

type fakeQueue struct {
	jobs  []string
	paths []string
	syncs []string
	err   error
}

func (f *fakeQueue) EnqueueJob(_ context.Context, jobID, localFilePath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, jobID)
	f.paths = append(f.paths, localFilePath)
	return "task-" + jobID, nil
}

func (f *fakeQueue) EnqueueManualSync(_ context.Context, id string) (string, error) {
	f.syncs = append(f.syncs, id)
	return "sync-" + id, nil
}

type fixture struct {
	cfg   *config.Config
	st    *store.Store
	blobs *blob.Local
	queue *fakeQueue
	svc   *ingest.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Media.MaxFileSizeMB = 1
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewLocal(cfg.Storage.LocalDir)
	if err != nil {
		t.Fatalf("blob.NewLocal: %v", err)
	}
	q := &fakeQueue{}
	return &fixture{cfg: cfg, st: st, blobs: blobs, queue: q, svc: ingest.New(cfg, st, blobs, q, nil)}
}

func TestSubmitURLClassifiesAndQueues(t *testing.T) {
	cases := []struct {
		url      string
		kind     store.MediaKind
		category store.SourceCategory
	}{
		{"https://www.youtube.com/watch?v=abc", store.KindYouTube, store.SourceYouTubeURL},
		{"https://youtu.be/abc", store.KindYouTube, store.SourceYouTubeURL},
		{"https://www.instagram.com/reel/xyz", store.KindInstagram, store.SourceInstagramURL},
		{"https://example.com/feed.xml", store.KindWeb, store.SourceRSSURL},
		{"https://example.com/blog/post", store.KindWeb, store.SourceWebURL},
	}
	f := newFixture(t)
	ctx := context.Background()
	for _, tc := range cases {
		sub, err := f.svc.SubmitURL(ctx, ingest.URLRequest{URL: tc.url})
		if err != nil {
			t.Fatalf("SubmitURL(%s): %v", tc.url, err)
		}
		media, _ := f.st.GetMedia(ctx, sub.MediaID)
		if media.Kind != tc.kind || media.SourceCategory != tc.category {
			t.Fatalf("%s classified as %s/%s", tc.url, media.Kind, media.SourceCategory)
		}
		if media.Title != store.PlaceholderTitle || media.Status != store.MediaPending {
			t.Fatalf("unexpected media %+v", media)
		}
		job, _ := f.st.GetJob(ctx, sub.JobID)
		if job.Status != store.JobPending || job.TaskID != sub.TaskID || sub.TaskID != "task-"+job.ID {
			t.Fatalf("unexpected job %+v for submission %+v", job, sub)
		}
	}
	if len(f.queue.jobs) != len(cases) {
		t.Fatalf("expected %d queued jobs, got %d", len(cases), len(f.queue.jobs))
	}
}

func TestSubmitURLRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, req := range []ingest.URLRequest{
		{URL: "ftp://example.com/file"},
		{URL: "not a url"},
		{URL: "https://example.com", Kind: "podcast"},
	} {
		if _, err := f.svc.SubmitURL(ctx, req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("SubmitURL(%+v) = %v, want validation error", req, err)
		}
	}
	if len(f.queue.jobs) != 0 {
		t.Fatalf("nothing should be queued, got %v", f.queue.jobs)
	}
}

func TestSubmitURLKindOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.SubmitURL(ctx, ingest.URLRequest{URL: "https://example.com/watch", Title: "Talk", Kind: store.KindYouTube})
	if err != nil {
		t.Fatalf("SubmitURL: %v", err)
	}
	media, _ := f.st.GetMedia(ctx, sub.MediaID)
	if media.SourceCategory != store.SourceYouTubeURL || media.Title != "Talk" {
		t.Fatalf("override not applied: %+v", media)
	}
}

func TestSubmitUploadStoresTempFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := testsupport.WAVBytes(testsupport.Tone(1600, 3))

	sub, err := f.svc.SubmitUpload(ctx, bytes.NewReader(data), "../../episode.wav", "")
	if err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	path := f.queue.paths[0]
	if filepath.Dir(path) != f.cfg.Paths.TempDir || !strings.HasSuffix(path, "_episode.wav") {
		t.Fatalf("unexpected upload path %q", path)
	}
	saved, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(saved, data) {
		t.Fatalf("upload not saved intact: %v", err)
	}
	media, _ := f.st.GetMedia(ctx, sub.MediaID)
	if media.Kind != store.KindAudio || media.SourceCategory != store.SourceUploadedAudio || media.Title != "episode.wav" {
		t.Fatalf("unexpected media %+v", media)
	}
}

func TestSubmitUploadEnforcesSizeLimit(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte{1}, 1024*1024+1)
	_, err := f.svc.SubmitUpload(context.Background(), bytes.NewReader(big), "big.wav", "")
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "1 MB") {
		t.Fatalf("expected size rejection, got %v", err)
	}
	entries, _ := os.ReadDir(f.cfg.Paths.TempDir)
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files behind: %v", entries)
	}
	media, _ := f.st.ListMedia(context.Background(), store.MediaFilter{})
	if len(media) != 0 {
		t.Fatalf("rejected upload created media: %v", media)
	}
}

func TestEnqueueFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("queue offline")
	ctx := context.Background()

	sub, err := f.svc.SubmitURL(ctx, ingest.URLRequest{URL: "https://example.com/post"})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	job, _ := f.st.GetJob(ctx, sub.JobID)
	if job.Status != store.JobError || !strings.Contains(job.ErrorMessage, "queue offline") {
		t.Fatalf("expected failed job, got %+v", job)
	}
	media, _ := f.st.GetMedia(ctx, sub.MediaID)
	if media.Status != store.MediaError {
		t.Fatalf("expected errored media, got %s", media.Status)
	}
}

func TestRetryJobCreatesFreshJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, failed := testsupport.NewMedia(t, f.st, &store.MediaItem{
		Title:          "Post",
		Kind:           store.KindWeb,
		SourceCategory: store.SourceWebURL,
		SourceURL:      "https://example.com/post",
		Status:         store.MediaError,
	})

	if _, err := f.svc.RetryJob(ctx, item.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("retry of a pending job should conflict, got %v", err)
	}

	failed.Status = store.JobError
	failed.ErrorMessage = "Web extraction failed: timeout"
	if err := f.st.UpdateJob(ctx, failed); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	sub, err := f.svc.RetryJob(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if sub.JobID == failed.ID {
		t.Fatal("retry must create a new job")
	}
	old, _ := f.st.GetJob(ctx, failed.ID)
	if old.Status != store.JobError || old.ErrorMessage != "Web extraction failed: timeout" {
		t.Fatalf("old job mutated: %+v", old)
	}
	fresh, _ := f.st.GetJob(ctx, sub.JobID)
	if fresh.Status != store.JobPending || fresh.RetryCount != 1 {
		t.Fatalf("unexpected fresh job %+v", fresh)
	}
	media, _ := f.st.GetMedia(ctx, item.ID)
	if media.Status != store.MediaPending {
		t.Fatalf("expected media reset to pending, got %s", media.Status)
	}
}

func TestRetryUploadWithoutBlobIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, job := testsupport.NewMedia(t, f.st, &store.MediaItem{
		Title:          "upload.wav",
		Kind:           store.KindAudio,
		SourceCategory: store.SourceUploadedAudio,
	})
	job.Status = store.JobError
	if err := f.st.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if _, err := f.svc.RetryJob(ctx, item.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.RetryJob(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteMediaRemovesBlobThenRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, _ := testsupport.NewMedia(t, f.st, &store.MediaItem{
		Title:          "Episode",
		Kind:           store.KindAudio,
		SourceCategory: store.SourceUploadedAudio,
	})
	ref, err := f.blobs.Put(ctx, item.ID, bytes.NewReader([]byte("audio")))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	item.BlobPath = ref
	if err := f.st.UpdateMedia(ctx, item); err != nil {
		t.Fatalf("UpdateMedia: %v", err)
	}

	if err := f.svc.DeleteMedia(ctx, item.ID); err != nil {
		t.Fatalf("DeleteMedia: %v", err)
	}
	if _, err := f.blobs.Get(ctx, ref); !blob.IsNotFound(err) {
		t.Fatalf("expected blob removed, got %v", err)
	}
	if got, _ := f.st.GetMedia(ctx, item.ID); got != nil {
		t.Fatalf("expected media row removed, got %+v", got)
	}
	if err := f.svc.DeleteMedia(ctx, item.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}
