package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, kind, payload, status, attempts, max_attempts, last_error, available_at, created_at, updated_at, started_at, finished_at, heartbeat_at"

const claimCandidates = 5

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task         Task
		status       string
		lastError    sql.NullString
		availableRaw string
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Kind,
		&task.Payload,
		&status,
		&task.Attempts,
		&task.MaxAttempts,
		&lastError,
		&availableRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}
	task.Status = TaskStatus(status)
	task.LastError = lastError.String
	if t, err := parseTimeString(availableRaw); err == nil {
		task.AvailableAt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = t
	}
	task.StartedAt = parseNullTime(startedRaw)
	task.FinishedAt = parseNullTime(finishedRaw)
	task.HeartbeatAt = parseNullTime(heartbeatRaw)
	return &task, nil
}

// EnqueueTask inserts a queued task available immediately.
func (s *Store) EnqueueTask(ctx context.Context, kind, payload string, maxAttempts int) (*Task, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		Status:      TaskQueued,
		MaxAttempts: maxAttempts,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ts := formatTime(now)
	if _, err := s.exec(ctx,
		`INSERT INTO tasks (id, kind, payload, status, attempts, max_attempts, available_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		task.ID, task.Kind, task.Payload, string(task.Status), task.MaxAttempts, ts, ts, ts,
	); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask fetches a task by identifier.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	task, err := scanTask(s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimTask atomically moves the oldest available queued task to running.
// It returns (nil, nil) when nothing is ready.
func (s *Store) ClaimTask(ctx context.Context) (*Task, error) {
	now := formatTime(time.Now())
	rows, err := s.query(ctx,
		`SELECT id FROM tasks WHERE status = ? AND available_at <= ? ORDER BY available_at, created_at LIMIT ?`,
		string(TaskQueued), now, claimCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("select claimable tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		res, err := s.exec(ctx,
			`UPDATE tasks
             SET status = ?, attempts = attempts + 1, started_at = ?, heartbeat_at = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(TaskRunning), now, now, now, id, string(TaskQueued),
		)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return s.GetTask(ctx, id)
		}
	}
	return nil, nil
}

// HeartbeatTask refreshes a running task's heartbeat.
func (s *Store) HeartbeatTask(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if _, err := s.exec(ctx,
		`UPDATE tasks SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, string(TaskRunning),
	); err != nil {
		return fmt.Errorf("update task heartbeat: %w", err)
	}
	return nil
}

// CompleteTask marks a task succeeded.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if _, err := s.exec(ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, heartbeat_at = NULL, last_error = NULL, updated_at = ? WHERE id = ?`,
		string(TaskSucceeded), now, now, id,
	); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// FailTask records a failure. When retryAfter is positive and attempts remain
// the task is requeued; otherwise it is marked failed.
func (s *Store) FailTask(ctx context.Context, task *Task, cause string, retryAfter time.Duration) error {
	now := time.Now().UTC()
	if retryAfter > 0 && task.Attempts < task.MaxAttempts {
		if _, err := s.exec(ctx,
			`UPDATE tasks SET status = ?, last_error = ?, available_at = ?, heartbeat_at = NULL, updated_at = ? WHERE id = ?`,
			string(TaskQueued), nullableString(cause), formatTime(now.Add(retryAfter)), formatTime(now), task.ID,
		); err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		return nil
	}
	if _, err := s.exec(ctx,
		`UPDATE tasks SET status = ?, last_error = ?, finished_at = ?, heartbeat_at = NULL, updated_at = ? WHERE id = ?`,
		string(TaskFailed), nullableString(cause), formatTime(now), formatTime(now), task.ID,
	); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// ReclaimStaleTasks requeues running tasks whose heartbeat expired before cutoff.
func (s *Store) ReclaimStaleTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE tasks
         SET status = ?, heartbeat_at = NULL, available_at = ?, updated_at = ?,
             last_error = 'reclaimed after heartbeat timeout'
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?`,
		string(TaskQueued), now, now, string(TaskRunning), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// ListTasks returns tasks newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status TaskStatus, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ReleaseTask returns a running task to the queue without spending an attempt.
func (s *Store) ReleaseTask(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if _, err := s.exec(ctx,
		`UPDATE tasks
         SET status = ?, attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
             heartbeat_at = NULL, available_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(TaskQueued), now, now, id, string(TaskRunning),
	); err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	return nil
}
