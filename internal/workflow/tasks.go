package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nexus/internal/pipeline"
	"nexus/internal/services"
	"nexus/internal/store"
	"nexus/internal/subscriptions"
)

// Task kinds.
const (
	KindProcessMedia     = "process_media"
	KindSyncSubscription = "sync_subscription"
)

const defaultSyncRetries = 2

// ProcessMediaPayload is the process_media task body.
type ProcessMediaPayload struct {
	JobID         string `json:"job_id"`
	LocalFilePath string `json:"local_file_path,omitempty"`
}

// SyncSubscriptionPayload is the sync_subscription task body.
type SyncSubscriptionPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Manual         bool   `json:"manual,omitempty"`
}

// EnqueueJob queues the pipeline for a job.
func (m *Manager) EnqueueJob(ctx context.Context, jobID, localFilePath string) (string, error) {
	return m.Enqueue(ctx, KindProcessMedia, ProcessMediaPayload{JobID: jobID, LocalFilePath: localFilePath})
}

// EnqueueSync queues a scheduled sync, which is skipped for disabled subscriptions.
func (m *Manager) EnqueueSync(ctx context.Context, subscriptionID string) (string, error) {
	return m.Enqueue(ctx, KindSyncSubscription, SyncSubscriptionPayload{SubscriptionID: subscriptionID})
}

// EnqueueManualSync queues a user-requested sync that ignores sync_enabled.
func (m *Manager) EnqueueManualSync(ctx context.Context, subscriptionID string) (string, error) {
	return m.Enqueue(ctx, KindSyncSubscription, SyncSubscriptionPayload{SubscriptionID: subscriptionID, Manual: true})
}

func decodePayload[T any](task *store.Task) (T, error) {
	var payload T
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return payload, services.Wrap(services.ErrValidation, "workflow", "decode payload", task.Kind, err)
	}
	return payload, nil
}

// PipelineRunner runs and fails processing jobs.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, jobID, localFilePath string) (store.JobStatus, error)
	FailJob(ctx context.Context, jobID, message string) error
}

type processMediaHandler struct {
	runner PipelineRunner
}

// NewProcessMediaHandler adapts the pipeline to the process_media task kind.
func NewProcessMediaHandler(runner PipelineRunner) Handler {
	return processMediaHandler{runner: runner}
}

func (h processMediaHandler) Handle(ctx context.Context, task *store.Task) error {
	payload, err := decodePayload[ProcessMediaPayload](task)
	if err != nil {
		return err
	}
	if strings.TrimSpace(payload.JobID) == "" {
		return services.Wrap(services.ErrValidation, "workflow", "process media", "missing job_id", nil)
	}
	ctx = services.WithJobID(ctx, payload.JobID)
	status, err := h.runner.RunPipeline(ctx, payload.JobID, payload.LocalFilePath)
	if err != nil {
		return err
	}
	if status == store.JobError {
		return fmt.Errorf("job %s ended in error", payload.JobID)
	}
	return nil
}

// Expire records the soft-limit overrun on the job. Terminal jobs are left alone.
func (h processMediaHandler) Expire(ctx context.Context, task *store.Task, limit time.Duration) error {
	payload, err := decodePayload[ProcessMediaPayload](task)
	if err != nil || payload.JobID == "" {
		return err
	}
	return h.runner.FailJob(ctx, payload.JobID, pipeline.SoftLimitMessage(limit))
}

// SubscriptionSyncer runs one subscription sync.
type SubscriptionSyncer interface {
	Sync(ctx context.Context, id string, opts subscriptions.SyncOptions) (subscriptions.Result, error)
}

// NewSyncSubscriptionHandler adapts the syncer to the sync_subscription task kind.
func NewSyncSubscriptionHandler(syncer SubscriptionSyncer) Handler {
	return HandlerFunc(func(ctx context.Context, task *store.Task) error {
		payload, err := decodePayload[SyncSubscriptionPayload](task)
		if err != nil {
			return err
		}
		if strings.TrimSpace(payload.SubscriptionID) == "" {
			return services.Wrap(services.ErrValidation, "workflow", "sync subscription", "missing subscription_id", nil)
		}
		_, err = syncer.Sync(ctx, payload.SubscriptionID, subscriptions.SyncOptions{Manual: payload.Manual})
		return err
	})
}
