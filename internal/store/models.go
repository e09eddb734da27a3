package store

import "time"

// MediaStatus is the lifecycle state of a media item.
type MediaStatus string

const (
	MediaPending    MediaStatus = "pending"
	MediaProcessing MediaStatus = "processing"
	MediaCompleted  MediaStatus = "completed"
	MediaError      MediaStatus = "error"
	MediaDuplicate  MediaStatus = "duplicate"
)

// JobStatus mirrors the pipeline stage a processing job is in.
type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobExtracting   JobStatus = "extracting"
	JobHashing      JobStatus = "hashing"
	JobTranscribing JobStatus = "transcribing"
	JobEnriching    JobStatus = "enriching"
	JobCompleted    JobStatus = "completed"
	JobError        JobStatus = "error"
)

// IsTerminal reports whether the job can no longer transition.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobError
}

// MediaKind is the content type of a media item.
type MediaKind string

const (
	KindAudio     MediaKind = "audio"
	KindVideo     MediaKind = "video"
	KindWeb       MediaKind = "web"
	KindYouTube   MediaKind = "youtube"
	KindInstagram MediaKind = "instagram"
)

// SourceCategory records how a media item entered the archive.
type SourceCategory string

const (
	SourceUploadedAudio SourceCategory = "uploaded_audio"
	SourceYouTubeURL    SourceCategory = "youtube_url"
	SourceWebURL        SourceCategory = "web_url"
	SourceRSSURL        SourceCategory = "rss_url"
	SourceInstagramURL  SourceCategory = "instagram_url"
)

// IsWeb reports whether the source is text-only and skips audio stages.
func (c SourceCategory) IsWeb() bool {
	return c == SourceWebURL || c == SourceRSSURL
}

// Origin distinguishes directly submitted media from subscription imports.
type Origin string

const (
	OriginDirect       Origin = "direct"
	OriginSubscription Origin = "subscription"
)

// TranscriptTurn is one time-stamped speaker segment.
type TranscriptTurn struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// MediaItem is a unit of archived content.
type MediaItem struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Kind            MediaKind        `json:"type"`
	SourceCategory  SourceCategory   `json:"source_type"`
	SourceURL       string           `json:"source_url,omitempty"`
	DurationSeconds int              `json:"duration"`
	AudioHash       string           `json:"audio_hash,omitempty"`
	RawText         string           `json:"raw_text,omitempty"`
	Transcript      []TranscriptTurn `json:"transcript,omitempty"`
	AISummary       string           `json:"ai_summary,omitempty"`
	Tags            []string         `json:"tags"`
	Embedding       []float32        `json:"-"`
	Status          MediaStatus      `json:"status"`
	BlobPath        string           `json:"blob_path,omitempty"`
	Origin          Origin           `json:"origin"`
	SubscriptionID  string           `json:"subscription_id,omitempty"`
	PublishedAt     *time.Time       `json:"published_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ImportedAt      time.Time        `json:"imported_at"`
}

// PlaceholderTitle marks a URL submission whose real title is not yet known.
const PlaceholderTitle = "Processing URL..."

// HasPlaceholderTitle reports whether extraction may replace the title.
func (m *MediaItem) HasPlaceholderTitle() bool {
	return m.Title == "" || m.Title == PlaceholderTitle
}

// HasEmbedding reports whether a vector is stored for the item.
func (m *MediaItem) HasEmbedding() bool {
	return m != nil && len(m.Embedding) > 0
}

// ProcessingJob is one execution attempt of the pipeline for a media item.
type ProcessingJob struct {
	ID              string     `json:"id"`
	MediaID         string     `json:"media_id"`
	Status          JobStatus  `json:"status"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RetryCount      int        `json:"retry_count"`
	TaskID          string     `json:"task_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// StatusView is the job status read model consumed by pollers and notifiers.
type StatusView struct {
	JobID           string    `json:"job_id"`
	MediaID         string    `json:"media_id"`
	Status          JobStatus `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	StageLabel      string    `json:"current_stage,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// View projects the job into its read model.
func (j *ProcessingJob) View() StatusView {
	return StatusView{
		JobID:           j.ID,
		MediaID:         j.MediaID,
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent,
		StageLabel:      j.CurrentStage,
		ErrorMessage:    j.ErrorMessage,
	}
}

// Subscription is a recurring content source.
type Subscription struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Kind        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	PeriodDays  int        `json:"period_days"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	SyncEnabled bool       `json:"sync_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SubscriptionPatch carries optional subscription field updates.
type SubscriptionPatch struct {
	Title       *string `json:"title,omitempty" yaml:"title,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	Prompt      *string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	PeriodDays  *int    `json:"period_days,omitempty" yaml:"period_days,omitempty"`
	SyncEnabled *bool   `json:"sync_enabled,omitempty" yaml:"sync_enabled,omitempty"`
}

// Apply copies set fields onto sub.
func (p SubscriptionPatch) Apply(sub *Subscription) {
	if p.Title != nil {
		sub.Title = *p.Title
	}
	if p.Description != nil {
		sub.Description = *p.Description
	}
	if p.Prompt != nil {
		sub.Prompt = *p.Prompt
	}
	if p.PeriodDays != nil {
		sub.PeriodDays = *p.PeriodDays
	}
	if p.SyncEnabled != nil {
		sub.SyncEnabled = *p.SyncEnabled
	}
}

// TaskStatus is the state of a queued unit of background work.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is a durable work item claimed by the worker pool.
type Task struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Payload     string     `json:"payload"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	AvailableAt time.Time  `json:"available_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
}

// Stats summarizes row counts for status output.
type Stats struct {
	Media         map[MediaStatus]int `json:"media"`
	Jobs          map[JobStatus]int   `json:"jobs"`
	Tasks         map[TaskStatus]int  `json:"tasks"`
	Subscriptions int                 `json:"subscriptions"`
}

// MediaFilter narrows ListMedia results.
type MediaFilter struct {
	Status         MediaStatus
	Kind           MediaKind
	SubscriptionID string
	Tag            string
	Limit          int
	Offset         int
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of an archive conversation. Assistant messages
// record the media items that were supplied as context.
type ChatMessage struct {
	ID              string    `json:"id"`
	Role            ChatRole  `json:"role"`
	Text            string    `json:"text"`
	ContextMediaIDs []string  `json:"context_media_ids"`
	CreatedAt       time.Time `json:"timestamp"`
}
