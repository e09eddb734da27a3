package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus/internal/services"
)

const mediaColumns = "id, title, kind, source_category, source_url, duration_seconds, audio_hash, raw_text, transcript_json, ai_summary, tags_json, embedding_json, status, blob_path, origin, subscription_id, published_at, created_at, imported_at"

func scanMedia(scanner rowScanner) (*MediaItem, error) {
	var (
		item           MediaItem
		kind           string
		category       string
		sourceURL      sql.NullString
		audioHash      sql.NullString
		rawText        sql.NullString
		transcriptJSON sql.NullString
		summary        sql.NullString
		tagsJSON       sql.NullString
		embeddingJSON  sql.NullString
		status         string
		blobPath       sql.NullString
		origin         string
		subscriptionID sql.NullString
		publishedRaw   sql.NullString
		createdRaw     string
		importedRaw    string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Title,
		&kind,
		&category,
		&sourceURL,
		&item.DurationSeconds,
		&audioHash,
		&rawText,
		&transcriptJSON,
		&summary,
		&tagsJSON,
		&embeddingJSON,
		&status,
		&blobPath,
		&origin,
		&subscriptionID,
		&publishedRaw,
		&createdRaw,
		&importedRaw,
	); err != nil {
		return nil, err
	}

	item.Kind = MediaKind(kind)
	item.SourceCategory = SourceCategory(category)
	item.SourceURL = sourceURL.String
	item.AudioHash = audioHash.String
	item.RawText = rawText.String
	item.AISummary = summary.String
	item.Status = MediaStatus(status)
	item.BlobPath = blobPath.String
	item.Origin = Origin(origin)
	item.SubscriptionID = subscriptionID.String
	item.PublishedAt = parseNullTime(publishedRaw)

	var err error
	if item.Transcript, err = decodeJSON[[]TranscriptTurn](transcriptJSON); err != nil {
		return nil, fmt.Errorf("decode transcript for %s: %w", item.ID, err)
	}
	if item.Tags, err = decodeJSON[[]string](tagsJSON); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", item.ID, err)
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Embedding, err = decodeJSON[[]float32](embeddingJSON); err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", item.ID, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if imported, err := parseTimeString(importedRaw); err == nil {
		item.ImportedAt = imported
	}
	return &item, nil
}

func mediaArgs(item *MediaItem) ([]any, error) {
	transcript, err := encodeTranscript(item.Transcript)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	embedding, err := encodeEmbedding(item.Embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return []any{
		item.Title,
		string(item.Kind),
		string(item.SourceCategory),
		nullableString(item.SourceURL),
		item.DurationSeconds,
		nullableString(item.AudioHash),
		nullableString(item.RawText),
		transcript,
		nullableString(item.AISummary),
		tags,
		embedding,
		string(item.Status),
		nullableString(item.BlobPath),
		string(item.Origin),
		nullableString(item.SubscriptionID),
		nullableTime(item.PublishedAt),
	}, nil
}

// CreateMedia inserts a media item, assigning an ID and timestamps when unset.
func (s *Store) CreateMedia(ctx context.Context, item *MediaItem) error {
	if item == nil {
		return errors.New("media item is nil")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = MediaPending
	}
	if item.Origin == "" {
		item.Origin = OriginDirect
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.ImportedAt.IsZero() {
		item.ImportedAt = now
	}

	args, err := mediaArgs(item)
	if err != nil {
		return err
	}
	args = append([]any{item.ID}, args...)
	args = append(args, formatTime(item.CreatedAt), formatTime(item.ImportedAt))

	if _, err := s.exec(ctx,
		`INSERT INTO media_items (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	); err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// GetMedia fetches a media item by identifier.
func (s *Store) GetMedia(ctx context.Context, id string) (*MediaItem, error) {
	row := s.queryRow(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE id = ?`, id)
	item, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return item, nil
}

// UpdateMedia persists every mutable field of an existing media item.
func (s *Store) UpdateMedia(ctx context.Context, item *MediaItem) error {
	if item == nil {
		return errors.New("media item is nil")
	}
	args, err := mediaArgs(item)
	if err != nil {
		return err
	}
	args = append(args, item.ID)
	res, err := s.exec(ctx,
		`UPDATE media_items
         SET title = ?, kind = ?, source_category = ?, source_url = ?, duration_seconds = ?,
             audio_hash = ?, raw_text = ?, transcript_json = ?, ai_summary = ?, tags_json = ?,
             embedding_json = ?, status = ?, blob_path = ?, origin = ?, subscription_id = ?,
             published_at = ?
         WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update media: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update media %s: %w", item.ID, services.ErrNotFound)
	}
	return nil
}

// SetMediaStatus updates only the status column.
func (s *Store) SetMediaStatus(ctx context.Context, id string, status MediaStatus) error {
	if _, err := s.exec(ctx, `UPDATE media_items SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("set media status: %w", err)
	}
	return nil
}

// DeleteMedia removes a media item and, through the foreign key, its jobs.
func (s *Store) DeleteMedia(ctx context.Context, id string) (bool, error) {
	if _, err := s.exec(ctx, `DELETE FROM processing_jobs WHERE media_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete media jobs: %w", err)
	}
	res, err := s.exec(ctx, `DELETE FROM media_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete media: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMedia returns media items newest first.
func (s *Store) ListMedia(ctx context.Context, filter MediaFilter) ([]*MediaItem, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.SubscriptionID != "" {
		clauses = append(clauses, "subscription_id = ?")
		args = append(args, filter.SubscriptionID)
	}
	if filter.Tag != "" {
		tag, err := json.Marshal(filter.Tag)
		if err != nil {
			return nil, fmt.Errorf("encode tag filter: %w", err)
		}
		clauses = append(clauses, "tags_json LIKE ?")
		args = append(args, "%"+string(tag)+"%")
	}
	query := `SELECT ` + mediaColumns + ` FROM media_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))
	return s.listMedia(ctx, query, args...)
}

// FindCompletedByAudioHash returns a completed item other than excludeID whose
// fingerprint equals hash exactly. Items in any other status are never matched.
func (s *Store) FindCompletedByAudioHash(ctx context.Context, hash, excludeID string) (*MediaItem, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.queryRow(ctx,
		`SELECT `+mediaColumns+` FROM media_items
         WHERE audio_hash = ? AND status = ? AND id <> ?
         ORDER BY created_at, id LIMIT 1`,
		hash, string(MediaCompleted), excludeID,
	)
	item, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by audio hash: %w", err)
	}
	return item, nil
}

// FindBySourceAndSubscription returns the item sharing both source URL and subscription.
func (s *Store) FindBySourceAndSubscription(ctx context.Context, sourceURL, subscriptionID string) (*MediaItem, error) {
	row := s.queryRow(ctx,
		`SELECT `+mediaColumns+` FROM media_items
         WHERE source_url = ? AND subscription_id = ? LIMIT 1`,
		sourceURL, subscriptionID,
	)
	item, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source and subscription: %w", err)
	}
	return item, nil
}

// ListEmbeddedCompleted returns completed items that carry an embedding.
func (s *Store) ListEmbeddedCompleted(ctx context.Context) ([]*MediaItem, error) {
	return s.listMedia(ctx,
		`SELECT `+mediaColumns+` FROM media_items
         WHERE status = ? AND embedding_json IS NOT NULL`,
		string(MediaCompleted),
	)
}

func (s *Store) listMedia(ctx context.Context, query string, args ...any) ([]*MediaItem, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
