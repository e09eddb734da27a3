package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexus/internal/services"
)

const jobColumns = "id, media_id, status, current_stage, progress_percent, error_message, retry_count, task_id, created_at, updated_at, started_at, completed_at"

func scanJob(scanner rowScanner) (*ProcessingJob, error) {
	var (
		job          ProcessingJob
		status       string
		stage        sql.NullString
		errorMessage sql.NullString
		taskID       sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.MediaID,
		&status,
		&stage,
		&job.ProgressPercent,
		&errorMessage,
		&job.RetryCount,
		&taskID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.CurrentStage = stage.String
	job.ErrorMessage = errorMessage.String
	job.TaskID = taskID.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullTime(startedRaw)
	job.CompletedAt = parseNullTime(completedRaw)
	return &job, nil
}

// CreateJob inserts a pending job for mediaID.
func (s *Store) CreateJob(ctx context.Context, mediaID string, retryCount int) (*ProcessingJob, error) {
	now := time.Now().UTC()
	job := &ProcessingJob{
		ID:         uuid.NewString(),
		MediaID:    mediaID,
		Status:     JobPending,
		RetryCount: retryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.exec(ctx,
		`INSERT INTO processing_jobs (id, media_id, status, progress_percent, retry_count, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)`,
		job.ID, job.MediaID, string(job.Status), job.RetryCount, formatTime(now), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id string) (*ProcessingJob, error) {
	row := s.queryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// LatestJobForMedia returns the most recently created job for a media item.
func (s *Store) LatestJobForMedia(ctx context.Context, mediaID string) (*ProcessingJob, error) {
	row := s.queryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE media_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		mediaID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job: %w", err)
	}
	return job, nil
}

// UpdateJob persists the job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, job *ProcessingJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	res, err := s.exec(ctx,
		`UPDATE processing_jobs
         SET status = ?, current_stage = ?, progress_percent = ?, error_message = ?,
             retry_count = ?, task_id = ?, updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		string(job.Status),
		nullableString(job.CurrentStage),
		job.ProgressPercent,
		nullableString(job.ErrorMessage),
		job.RetryCount,
		nullableString(job.TaskID),
		formatTime(job.UpdatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, services.ErrNotFound)
	}
	return nil
}

// SetJobTask records the task queue handle on a job.
func (s *Store) SetJobTask(ctx context.Context, jobID, taskID string) error {
	if _, err := s.exec(ctx,
		`UPDATE processing_jobs SET task_id = ?, updated_at = ? WHERE id = ?`,
		taskID, formatTime(time.Now()), jobID,
	); err != nil {
		return fmt.Errorf("set job task: %w", err)
	}
	return nil
}

// JobStatus returns the read model for a job.
func (s *Store) JobStatus(ctx context.Context, jobID string) (*StatusView, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	view := job.View()
	return &view, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]*ProcessingJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
