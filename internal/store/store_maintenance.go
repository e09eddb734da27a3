package store

import (
	"context"
	"fmt"
)

// Stats returns row counts grouped by status for media, jobs and tasks.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Media: map[MediaStatus]int{},
		Jobs:  map[JobStatus]int{},
		Tasks: map[TaskStatus]int{},
	}
	if err := s.countBy(ctx, "media_items", func(status string, n int) { stats.Media[MediaStatus(status)] = n }); err != nil {
		return stats, err
	}
	if err := s.countBy(ctx, "processing_jobs", func(status string, n int) { stats.Jobs[JobStatus(status)] = n }); err != nil {
		return stats, err
	}
	if err := s.countBy(ctx, "tasks", func(status string, n int) { stats.Tasks[TaskStatus(status)] = n }); err != nil {
		return stats, err
	}
	if err := s.queryRow(ctx, `SELECT COUNT(1) FROM subscriptions`).Scan(&stats.Subscriptions); err != nil {
		return stats, fmt.Errorf("count subscriptions: %w", err)
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, table string, record func(string, int)) error {
	rows, err := s.query(ctx, `SELECT status, COUNT(1) FROM `+table+` GROUP BY status`)
	if err != nil {
		return fmt.Errorf("%s stats: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		record(status, count)
	}
	return rows.Err()
}
