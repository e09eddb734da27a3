package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus/internal/blob"
	"nexus/internal/config"
	"nexus/internal/embedding"
	"nexus/internal/enrichment"
	"nexus/internal/extract"
	"nexus/internal/fingerprint"
	"nexus/internal/logging"
	"nexus/internal/notifications"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/transcription"
)

// MediaSource downloads and normalizes audio.
type MediaSource interface {
	Download(ctx context.Context, sourceURL, workDir string) (extract.Download, error)
	Normalize(ctx context.Context, source, dest string) error
	Duration(ctx context.Context, path string) int
	CheckDuration(seconds int) error
}

// WebSource fetches article or feed text.
type WebSource interface {
	Extract(ctx context.Context, rawURL string) (extract.WebContent, error)
}

// Enricher summarizes and tags text.
type Enricher interface {
	Summarize(ctx context.Context, text string) (enrichment.Summary, error)
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options wires an Orchestrator. Every collaborator is required.
type Options struct {
	Store         *store.Store
	Blobs         blob.Store
	Media         MediaSource
	Web           WebSource
	Fingerprinter fingerprint.Fingerprinter
	Transcriber   transcription.Transcriber
	Enricher      Enricher
	Embedder      Embedder
	Notifier      notifications.Service
	Logger        *slog.Logger
	TempDir       string
	SoftLimit     time.Duration
}

// Orchestrator runs processing jobs.
type Orchestrator struct {
	store         *store.Store
	blobs         blob.Store
	media         MediaSource
	web           WebSource
	fingerprinter fingerprint.Fingerprinter
	transcriber   transcription.Transcriber
	enricher      Enricher
	embedder      Embedder
	notifier      notifications.Service
	logger        *slog.Logger
	tempDir       string
	softLimit     time.Duration
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	missing := []string{}
	if opts.Store == nil {
		missing = append(missing, "store")
	}
	if opts.Blobs == nil {
		missing = append(missing, "blob store")
	}
	if opts.Media == nil {
		missing = append(missing, "media extractor")
	}
	if opts.Web == nil {
		missing = append(missing, "web extractor")
	}
	if opts.Fingerprinter == nil {
		missing = append(missing, "fingerprinter")
	}
	if opts.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if opts.Enricher == nil {
		missing = append(missing, "enricher")
	}
	if opts.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %s", strings.Join(missing, ", "))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:         opts.Store,
		blobs:         opts.Blobs,
		media:         opts.Media,
		web:           opts.Web,
		fingerprinter: opts.Fingerprinter,
		transcriber:   opts.Transcriber,
		enricher:      opts.Enricher,
		embedder:      opts.Embedder,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		tempDir:       opts.TempDir,
		softLimit:     opts.SoftLimit,
	}, nil
}

// NewFromConfig builds the production collaborators and the Orchestrator.
func NewFromConfig(ctx context.Context, cfg *config.Config, st *store.Store, blobs blob.Store, notifier notifications.Service, logger *slog.Logger) (*Orchestrator, error) {
	fp, err := fingerprint.New(cfg)
	if err != nil {
		return nil, err
	}
	transcriber, err := transcription.New(cfg)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		if blobs, err = blob.New(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return New(Options{
		Store:         st,
		Blobs:         blobs,
		Media:         extract.NewMediaExtractor(cfg),
		Web:           extract.NewWebExtractor(cfg),
		Fingerprinter: fp,
		Transcriber:   transcriber,
		Enricher:      enrichment.New(cfg),
		Embedder:      embedding.New(cfg),
		Notifier:      notifier,
		Logger:        logger,
		TempDir:       cfg.Paths.TempDir,
		SoftLimit:     time.Duration(cfg.Workflow.TaskSoftTimeLimitSeconds) * time.Second,
	})
}

// SoftLimitMessage is the job error recorded when a task overruns its soft limit.
func SoftLimitMessage(limit time.Duration) string {
	return fmt.Sprintf("Task exceeded soft time limit of %ds", int(limit/time.Second))
}

// run is the per-invocation state that is not persisted.
type run struct {
	jobID  string
	upload string
}

// RunPipeline executes the job's stage chain and returns the job's final
// status. A job already in a terminal state is left untouched. localFilePath
// names an uploaded file to ingest when the media has no stored blob yet.
func (o *Orchestrator) RunPipeline(ctx context.Context, jobID, localFilePath string) (store.JobStatus, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", services.Wrap(services.ErrNotFound, "pipeline", "load job", jobID, nil)
	}
	ctx = services.WithMediaID(services.WithJobID(ctx, job.ID), job.MediaID)
	logger := logging.WithContext(ctx, o.logger)

	if job.Status.IsTerminal() {
		logger.Info("job already terminal; nothing to run", logging.String("status", string(job.Status)))
		return job.Status, nil
	}

	media, err := o.store.GetMedia(ctx, job.MediaID)
	if err != nil {
		return "", err
	}
	if media == nil {
		cause := services.Wrap(services.ErrNotFound, "pipeline", "load media", job.MediaID, nil)
		if failErr := o.FailJob(ctx, job.ID, "Media item not found"); failErr != nil {
			logger.Warn("failed to record missing media", logging.Error(failErr))
		}
		return store.JobError, cause
	}

	chain := o.chainFor(media.SourceCategory)
	names := make([]string, 0, len(chain))
	for _, st := range chain {
		names = append(names, st.name)
	}
	logger.Info(
		"pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("source_type", string(media.SourceCategory)),
		logging.String("stages", strings.Join(names, ",")),
	)

	if media.Status != store.MediaProcessing {
		if err := o.store.SetMediaStatus(ctx, media.ID, store.MediaProcessing); err != nil {
			return "", err
		}
	}

	state := &run{jobID: job.ID, upload: strings.TrimSpace(localFilePath)}
	var result Result = Continue{}
	for _, st := range chain {
		if isShortCircuit(result) && !st.always {
			logger.Debug("stage skipped after short-circuit", logging.String(logging.FieldStage, st.name))
			continue
		}
		next, err := o.runStage(ctx, logger, st, state, result)
		if errors.Is(err, errHalted) {
			break
		}
		if err != nil {
			return store.JobError, err
		}
		result = next
	}

	final, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("reload job: %w", err)
	}
	if final == nil {
		return "", services.Wrap(services.ErrNotFound, "pipeline", "reload job", job.ID, nil)
	}
	return final.Status, nil
}

// FailJob marks a non-terminal job and its media as errored with message.
func (o *Orchestrator) FailJob(ctx context.Context, jobID, message string) error {
	ctx = context.WithoutCancel(ctx)
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "fail job", jobID, nil)
	}
	if job.Status.IsTerminal() {
		return nil
	}
	o.markFailed(job, message)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	if err := o.store.SetMediaStatus(ctx, job.MediaID, store.MediaError); err != nil {
		return err
	}
	o.publish(ctx, notifications.EventError, notifications.Payload{
		"jobID":   job.ID,
		"mediaID": job.MediaID,
		"error":   message,
		"context": "job " + job.ID,
	})
	return nil
}

func (o *Orchestrator) markFailed(job *store.ProcessingJob, message string) {
	job.Status = store.JobError
	job.ErrorMessage = strings.TrimSpace(message)
	if job.ErrorMessage == "" {
		job.ErrorMessage = "Processing failed"
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
}

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, o.logger).Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
