package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const chatColumns = "id, role, text, context_media_ids_json, created_at"

func scanChatMessage(scanner rowScanner) (*ChatMessage, error) {
	var (
		msg        ChatMessage
		role       string
		contextRaw sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&msg.ID, &role, &msg.Text, &contextRaw, &createdRaw); err != nil {
		return nil, err
	}
	msg.Role = ChatRole(role)
	ids, err := decodeJSON[[]string](contextRaw)
	if err != nil {
		return nil, fmt.Errorf("decode chat context ids: %w", err)
	}
	msg.ContextMediaIDs = ids
	if created, err := parseTimeString(createdRaw); err == nil {
		msg.CreatedAt = created
	}
	return &msg, nil
}

// CreateChatMessage appends a message to the chat history.
func (s *Store) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	if msg == nil {
		return errors.New("chat message is nil")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	ids, err := encodeTags(msg.ContextMediaIDs)
	if err != nil {
		return fmt.Errorf("encode chat context ids: %w", err)
	}
	if _, err := s.exec(ctx,
		`INSERT INTO chat_messages (`+chatColumns+`) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Role), msg.Text, ids, formatTime(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns chat history newest first.
func (s *Store) ListChatMessages(ctx context.Context, limit, offset int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT `+chatColumns+` FROM chat_messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ClearChatMessages deletes the whole chat history and reports how many
// messages were removed.
func (s *Store) ClearChatMessages(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM chat_messages`)
	if err != nil {
		return 0, fmt.Errorf("clear chat messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
