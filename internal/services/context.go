package services

import "context"

type contextKey string

const (
	jobIDKey          contextKey = "job_id"
	mediaIDKey        contextKey = "media_id"
	subscriptionIDKey contextKey = "subscription_id"
	taskIDKey         contextKey = "task_id"
	stageKey          contextKey = "stage"
	requestIDKey      contextKey = "request_id"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobID annotates context with the processing job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return withString(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the processing job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, jobIDKey)
}

// WithMediaID annotates context with the media item identifier.
func WithMediaID(ctx context.Context, id string) context.Context {
	return withString(ctx, mediaIDKey, id)
}

// MediaIDFromContext extracts the media item identifier if present.
func MediaIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, mediaIDKey)
}

// WithSubscriptionID annotates context with the subscription identifier.
func WithSubscriptionID(ctx context.Context, id string) context.Context {
	return withString(ctx, subscriptionIDKey, id)
}

// SubscriptionIDFromContext extracts the subscription identifier if present.
func SubscriptionIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, subscriptionIDKey)
}

// WithTaskID annotates context with the task queue handle.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withString(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task queue handle if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, taskIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}
