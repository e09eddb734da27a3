package api

import (
	"nexus/internal/search"
	"nexus/internal/store"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// MediaListResponse wraps a page of media items.
type MediaListResponse struct {
	Items  []*store.MediaItem `json:"items"`
	Skip   int                `json:"skip"`
	Limit  int                `json:"limit"`
	Status string             `json:"status,omitempty"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query         string   `json:"query" binding:"required"`
	Limit         int      `json:"limit"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// SearchResponse wraps ranked hits.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// ChatHistoryResponse wraps a page of chat messages, newest first.
type ChatHistoryResponse struct {
	Messages []*store.ChatMessage `json:"messages"`
	Skip     int                  `json:"skip"`
	Limit    int                  `json:"limit"`
}

// ChatClearResponse reports a cleared history.
type ChatClearResponse struct {
	Status          string `json:"status"`
	MessagesDeleted int64  `json:"messages_deleted"`
}

// SyncResponse acknowledges a queued manual sync.
type SyncResponse struct {
	SubscriptionID string `json:"subscription_id"`
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
}

// TaskSummary is the transport form of a queued task.
type TaskSummary struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// WorkflowStatus summarizes worker pool state.
type WorkflowStatus struct {
	Running   bool         `json:"running"`
	Workers   int          `json:"workers"`
	Active    int          `json:"active"`
	LastError string       `json:"last_error,omitempty"`
	LastTask  *TaskSummary `json:"last_task,omitempty"`
	Stats     store.Stats  `json:"stats"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Driver       string             `json:"database_driver"`
	StorePath    string             `json:"store_path,omitempty"`
	LockFilePath string             `json:"lock_file_path,omitempty"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
