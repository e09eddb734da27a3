package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"nexus/internal/services"
)

const subscriptionColumns = "id, url, title, kind, description, prompt, period_days, last_checked, sync_enabled, created_at"

func scanSubscription(scanner rowScanner) (*Subscription, error) {
	var (
		sub         Subscription
		description sql.NullString
		prompt      sql.NullString
		lastChecked sql.NullString
		enabled     int
		createdRaw  string
	)
	if err := scanner.Scan(
		&sub.ID,
		&sub.URL,
		&sub.Title,
		&sub.Kind,
		&description,
		&prompt,
		&sub.PeriodDays,
		&lastChecked,
		&enabled,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	sub.Description = description.String
	sub.Prompt = prompt.String
	sub.LastChecked = parseNullTime(lastChecked)
	sub.SyncEnabled = enabled != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = created
	}
	return &sub, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateSubscription inserts a subscription. A duplicate URL yields services.ErrConflict.
func (s *Store) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return errors.New("subscription is nil")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.URL,
		sub.Title,
		sub.Kind,
		nullableString(sub.Description),
		nullableString(sub.Prompt),
		sub.PeriodDays,
		nullableTime(sub.LastChecked),
		boolToInt(sub.SyncEnabled),
		formatTime(sub.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("subscription %s already exists: %w", sub.URL, services.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches a subscription by identifier.
func (s *Store) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	return s.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

// GetSubscriptionByURL fetches a subscription by its unique URL.
func (s *Store) GetSubscriptionByURL(ctx context.Context, url string) (*Subscription, error) {
	return s.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE url = ?`, url)
}

func (s *Store) getSubscription(ctx context.Context, query string, arg string) (*Subscription, error) {
	sub, err := scanSubscription(s.queryRow(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// UpdateSubscription persists the subscription's mutable fields.
func (s *Store) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	res, err := s.exec(ctx,
		`UPDATE subscriptions
         SET title = ?, kind = ?, description = ?, prompt = ?, period_days = ?, last_checked = ?, sync_enabled = ?
         WHERE id = ?`,
		sub.Title,
		sub.Kind,
		nullableString(sub.Description),
		nullableString(sub.Prompt),
		sub.PeriodDays,
		nullableTime(sub.LastChecked),
		boolToInt(sub.SyncEnabled),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update subscription %s: %w", sub.ID, services.ErrNotFound)
	}
	return nil
}

// TouchLastChecked stamps last_checked without touching other fields.
func (s *Store) TouchLastChecked(ctx context.Context, id string, at time.Time) error {
	if _, err := s.exec(ctx, `UPDATE subscriptions SET last_checked = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("touch last_checked: %w", err)
	}
	return nil
}

// DeleteSubscription removes the subscription row. Media it created keep
// their subscription_id and are not deleted.
func (s *Store) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSubscriptions returns all subscriptions ordered by creation time.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at, id`)
}

// DueSubscriptions returns enabled subscriptions never checked or last checked before cutoff.
func (s *Store) DueSubscriptions(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	return s.listSubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
         WHERE sync_enabled = 1 AND (last_checked IS NULL OR last_checked < ?)
         ORDER BY created_at, id`,
		formatTime(cutoff),
	)
}

func (s *Store) listSubscriptions(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
