package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus/internal/blob"
	"nexus/internal/config"
	"nexus/internal/extract"
	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

// Queue accepts background work for jobs and subscriptions.
type Queue interface {
	EnqueueJob(ctx context.Context, jobID, localFilePath string) (string, error)
	EnqueueManualSync(ctx context.Context, subscriptionID string) (string, error)
}

// Service validates submissions and persists them with their queued work.
type Service struct {
	store     *store.Store
	blobs     blob.Store
	queue     Queue
	tempDir   string
	maxUpload int64
	logger    *slog.Logger
}

// New constructs an ingest service.
func New(cfg *config.Config, st *store.Store, blobs blob.Store, queue Queue, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		blobs:     blobs,
		queue:     queue,
		tempDir:   cfg.Paths.TempDir,
		maxUpload: cfg.MaxFileSizeBytes(),
		logger:    logging.NewComponentLogger(logger, "ingest"),
	}
}

// Submission identifies the rows and task created for one submission.
type Submission struct {
	JobID   string `json:"job_id"`
	MediaID string `json:"media_id"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
}

// URLRequest is a URL submission. Kind overrides URL classification.
type URLRequest struct {
	URL   string          `json:"url" binding:"required"`
	Title string          `json:"title"`
	Kind  store.MediaKind `json:"type"`
}

// SubmitURL classifies the URL, records a pending media item and job, and
// queues the pipeline.
func (s *Service) SubmitURL(ctx context.Context, req URLRequest) (Submission, error) {
	class, err := extract.Classify(req.URL)
	if err != nil {
		return Submission{}, err
	}
	if req.Kind != "" {
		class, err = override(class, req.Kind)
		if err != nil {
			return Submission{}, err
		}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = store.PlaceholderTitle
	}
	item := &store.MediaItem{
		Title:          title,
		Kind:           class.Kind,
		SourceCategory: class.Category,
		SourceURL:      strings.TrimSpace(req.URL),
		Status:         store.MediaPending,
		Origin:         store.OriginDirect,
	}
	return s.submit(ctx, item, "")
}

func override(class extract.Classification, kind store.MediaKind) (extract.Classification, error) {
	switch kind {
	case store.KindYouTube:
		return extract.Classification{Kind: kind, Category: store.SourceYouTubeURL}, nil
	case store.KindInstagram:
		return extract.Classification{Kind: kind, Category: store.SourceInstagramURL}, nil
	case store.KindWeb:
		if class.Category == store.SourceRSSURL {
			return class, nil
		}
		return extract.Classification{Kind: kind, Category: store.SourceWebURL}, nil
	default:
		return class, services.Wrap(services.ErrValidation, "ingest", "submit url", fmt.Sprintf("unsupported type %q", kind), nil)
	}
}

// SubmitUpload copies r into temp_dir/<uuid>_<filename>, rejecting uploads
// over the configured size, then records and queues an uploaded_audio item.
func (s *Service) SubmitUpload(ctx context.Context, r io.Reader, filename, title string) (Submission, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return Submission{}, fmt.Errorf("ensure temp dir: %w", err)
	}
	dest := filepath.Join(s.tempDir, uuid.NewString()+"_"+name)
	if err := s.writeUpload(r, dest); err != nil {
		_ = os.Remove(dest)
		return Submission{}, err
	}

	if strings.TrimSpace(title) == "" {
		title = name
	}
	item := &store.MediaItem{
		Title:          strings.TrimSpace(title),
		Kind:           store.KindAudio,
		SourceCategory: store.SourceUploadedAudio,
		Status:         store.MediaPending,
		Origin:         store.OriginDirect,
	}
	sub, err := s.submit(ctx, item, dest)
	if err != nil {
		_ = os.Remove(dest)
	}
	return sub, err
}

func (s *Service) writeUpload(r io.Reader, dest string) error {
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	limit := s.maxUpload
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(file, src)
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("save upload: %w", closeErr)
	}
	if limit > 0 && written > limit {
		return services.Wrap(services.ErrValidation, "ingest", "upload",
			fmt.Sprintf("file exceeds %d MB limit", limit/(1024*1024)), nil)
	}
	if written == 0 {
		return services.Wrap(services.ErrValidation, "ingest", "upload", "file is empty", nil)
	}
	return nil
}

func (s *Service) submit(ctx context.Context, item *store.MediaItem, localPath string) (Submission, error) {
	if err := s.store.CreateMedia(ctx, item); err != nil {
		return Submission{}, err
	}
	job, err := s.store.CreateJob(ctx, item.ID, 0)
	if err != nil {
		return Submission{}, err
	}
	return s.enqueue(ctx, item, job, localPath)
}

func (s *Service) enqueue(ctx context.Context, item *store.MediaItem, job *store.ProcessingJob, localPath string) (Submission, error) {
	ctx = services.WithMediaID(services.WithJobID(ctx, job.ID), item.ID)
	logger := logging.WithContext(ctx, s.logger)
	sub := Submission{JobID: job.ID, MediaID: item.ID}

	taskID, err := s.queue.EnqueueJob(ctx, job.ID, localPath)
	if err != nil {
		s.abandon(ctx, logger, job, err)
		return sub, fmt.Errorf("queue job: %w", err)
	}
	if err := s.store.SetJobTask(ctx, job.ID, taskID); err != nil {
		logger.Warn("failed to record task handle on job", logging.Error(err))
	}
	sub.TaskID = taskID
	sub.Status = "queued"
	logger.Info("media submitted",
		logging.String(logging.FieldEventType, "media_submitted"),
		logging.String("source_type", string(item.SourceCategory)),
		logging.String(logging.FieldTaskID, taskID),
	)
	return sub, nil
}

// abandon marks a job that never reached the queue as failed.
func (s *Service) abandon(ctx context.Context, logger *slog.Logger, job *store.ProcessingJob, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	job.Status = store.JobError
	job.ErrorMessage = "Failed to queue processing: " + cause.Error()
	job.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to record enqueue failure", logging.Error(err))
	}
	if err := s.store.SetMediaStatus(ctx, job.MediaID, store.MediaError); err != nil {
		logger.Error("failed to record enqueue failure on media", logging.Error(err))
	}
}

// RetryJob queues a fresh job for media whose latest job ended in error.
// The failed job is kept as history.
func (s *Service) RetryJob(ctx context.Context, mediaID string) (Submission, error) {
	item, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return Submission{}, err
	}
	if item == nil {
		return Submission{}, services.Wrap(services.ErrNotFound, "ingest", "retry", "media "+mediaID, nil)
	}
	latest, err := s.store.LatestJobForMedia(ctx, mediaID)
	if err != nil {
		return Submission{}, err
	}
	if latest != nil && latest.Status != store.JobError {
		return Submission{}, services.Wrap(services.ErrConflict, "ingest", "retry",
			fmt.Sprintf("latest job is %s", latest.Status), nil)
	}
	if item.SourceCategory == store.SourceUploadedAudio && item.BlobPath == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "ingest", "retry",
			"uploaded file is no longer available; upload it again", nil)
	}

	retries := 0
	if latest != nil {
		retries = latest.RetryCount + 1
	}
	if err := s.store.SetMediaStatus(ctx, item.ID, store.MediaPending); err != nil {
		return Submission{}, err
	}
	job, err := s.store.CreateJob(ctx, item.ID, retries)
	if err != nil {
		return Submission{}, err
	}
	return s.enqueue(ctx, item, job, "")
}

// DeleteMedia removes the stored audio, then the media row and its jobs.
func (s *Service) DeleteMedia(ctx context.Context, mediaID string) error {
	item, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "ingest", "delete", "media "+mediaID, nil)
	}
	if item.BlobPath != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, item.BlobPath); err != nil && !blob.IsNotFound(err) {
			return fmt.Errorf("delete blob: %w", err)
		}
	}
	deleted, err := s.store.DeleteMedia(ctx, mediaID)
	if err != nil {
		return err
	}
	if !deleted {
		return services.Wrap(services.ErrNotFound, "ingest", "delete", "media "+mediaID, nil)
	}
	logging.WithContext(services.WithMediaID(ctx, mediaID), s.logger).Info("media deleted",
		logging.String(logging.FieldEventType, "media_deleted"),
	)
	return nil
}

// IsUserError reports whether err stems from the request rather than the system.
func IsUserError(err error) bool {
	return errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrConflict)
}
