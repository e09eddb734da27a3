package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus/internal/logging"
	"nexus/internal/notifications"
	"nexus/internal/services"
	"nexus/internal/store"
)

// errHalted stops the chain quietly when the job turned terminal elsewhere.
var errHalted = errors.New("job already terminal")

const duplicateLabel = "Duplicate (linked)"

// stage is one link of a chain. start and end bound the progress it reports.
type stage struct {
	name    string
	status  store.JobStatus
	label   string
	start   int
	end     int
	failure string
	// always runs the stage even after a short-circuit.
	always bool
	exec   func(ctx context.Context, sc *stageContext) (Result, error)
}

// stageContext is the freshly read state handed to a stage.
type stageContext struct {
	job    *store.ProcessingJob
	media  *store.MediaItem
	prev   Result
	run    *run
	logger *slog.Logger
}

func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, st stage, state *run, prev Result) (Result, error) {
	stageCtx := services.WithStage(ctx, st.name)
	stageLogger := logger.With(logging.String(logging.FieldStage, st.name))

	job, err := o.store.GetJob(stageCtx, state.jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, st.name, "load job", state.jobID, nil)
	}
	if job.Status.IsTerminal() && !(st.always && isShortCircuit(prev)) {
		stageLogger.Info("job turned terminal; stopping chain", logging.String("status", string(job.Status)))
		return nil, errHalted
	}
	media, err := o.store.GetMedia(stageCtx, job.MediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", err)
	}
	if media == nil {
		return nil, o.handleFailure(stageCtx, stageLogger, st, job, services.Wrap(services.ErrNotFound, st.name, "load media", job.MediaID, nil))
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("job_status", string(st.status)),
		logging.Int("progress", job.ProgressPercent),
	)

	if !st.status.IsTerminal() {
		job.Status = st.status
		job.CurrentStage = st.label
		job.ProgressPercent = max(job.ProgressPercent, st.start)
		job.ErrorMessage = ""
		if job.StartedAt == nil {
			now := time.Now().UTC()
			job.StartedAt = &now
		}
		if err := o.store.UpdateJob(stageCtx, job); err != nil {
			return nil, fmt.Errorf("persist stage transition: %w", err)
		}
		o.publishProgress(stageCtx, job)
	}

	sc := &stageContext{job: job, media: media, prev: prev, run: state, logger: stageLogger}
	result, err := st.exec(stageCtx, sc)
	if err != nil {
		return nil, o.handleFailure(stageCtx, stageLogger, st, job, err)
	}
	if result == nil {
		result = Continue{}
	}

	if err := o.store.UpdateMedia(stageCtx, media); err != nil {
		return nil, o.handleFailure(stageCtx, stageLogger, st, job, fmt.Errorf("persist media: %w", err))
	}

	linked := isShortCircuit(result) && !isShortCircuit(prev)
	switch {
	case linked:
		now := time.Now().UTC()
		job.Status = store.JobCompleted
		job.CurrentStage = duplicateLabel
		job.ProgressPercent = 100
		job.CompletedAt = &now
	case st.status.IsTerminal():
		job.ProgressPercent = max(job.ProgressPercent, st.end)
		if job.Status != store.JobCompleted {
			now := time.Now().UTC()
			job.Status = st.status
			job.CompletedAt = &now
		}
		if !isShortCircuit(result) {
			job.CurrentStage = st.label
		}
	default:
		job.ProgressPercent = max(job.ProgressPercent, st.end)
	}
	if err := o.store.UpdateJob(stageCtx, job); err != nil {
		return nil, fmt.Errorf("persist stage result: %w", err)
	}
	o.publishProgress(stageCtx, job)

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("job_status", string(job.Status)),
		logging.Int("progress", job.ProgressPercent),
		logging.String("stage_label", job.CurrentStage),
	)

	if linked {
		link := result.(ShortCircuit)
		stageLogger.Info(
			"duplicate linked; remaining stages skipped",
			logging.String(logging.FieldEventType, "duplicate_linked"),
			logging.String("canonical_media_id", link.CanonicalID),
		)
		o.publish(stageCtx, notifications.EventDuplicateLinked, notifications.Payload{
			"jobID":       job.ID,
			"mediaID":     media.ID,
			"title":       media.Title,
			"canonicalID": link.CanonicalID,
		})
	}
	if st.status.IsTerminal() && !isShortCircuit(result) {
		o.publish(stageCtx, notifications.EventJobCompleted, notifications.Payload{
			"jobID":   job.ID,
			"mediaID": media.ID,
			"title":   media.Title,
		})
	}
	return result, nil
}

// handleFailure records a fatal stage error on the job and media rows.
func (o *Orchestrator) handleFailure(ctx context.Context, logger *slog.Logger, st stage, job *store.ProcessingJob, stageErr error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		// Shutdown: leave the job as-is so the requeued task picks it up.
		logger.Info("stage interrupted; job left for redelivery",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.Error(stageErr),
		)
		return stageErr
	}
	message := o.failureMessage(ctx, st, stageErr)
	persistCtx := context.WithoutCancel(ctx)
	o.markFailed(job, message)

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, "inspect the collaborator named in error_message, then retry the media"),
		logging.Error(stageErr),
	)
	if err := o.store.UpdateJob(persistCtx, job); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	if err := o.store.SetMediaStatus(persistCtx, job.MediaID, store.MediaError); err != nil {
		logger.Error("failed to persist media failure", logging.Error(err))
	}
	o.publishProgress(persistCtx, job)
	o.publish(persistCtx, notifications.EventError, notifications.Payload{
		"jobID":   job.ID,
		"mediaID": job.MediaID,
		"error":   message,
		"context": fmt.Sprintf("%s (job %s)", st.name, job.ID),
	})
	return stageErr
}

func (o *Orchestrator) failureMessage(ctx context.Context, st stage, stageErr error) string {
	if o.softLimit > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return SoftLimitMessage(o.softLimit)
	}
	cause := strings.TrimSpace(services.Details(stageErr).Message)
	if cause == "" && stageErr != nil {
		cause = strings.TrimSpace(stageErr.Error())
	}
	if cause == "" {
		cause = "unknown error"
	}
	return fmt.Sprintf("%s: %s", st.failure, cause)
}

func (o *Orchestrator) publishProgress(ctx context.Context, job *store.ProcessingJob) {
	view := job.View()
	o.publish(ctx, notifications.EventJobProgress, notifications.Payload{
		"jobID":    view.JobID,
		"mediaID":  view.MediaID,
		"status":   string(view.Status),
		"progress": view.ProgressPercent,
		"stage":    view.StageLabel,
		"error":    view.ErrorMessage,
	})
}
