// Package chat answers questions about the archive. The most relevant
// completed media items are handed to the model as context and every turn is
// kept in the chat history.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus/internal/config"
	"nexus/internal/logging"
	"nexus/internal/search"
	"nexus/internal/services"
	"nexus/internal/services/llm"
	"nexus/internal/store"
)

const (
	DefaultContextItems = 5
	MaxContextItems     = 20

	excerptRunes = 500
	fallbackText = "I couldn't process that request."
)

const systemPrompt = "You are Nexus, an assistant for a personal media archive. " +
	"Answer from the archive context when it is relevant and cite sources by title."

// Retriever ranks archive items against a question.
type Retriever interface {
	Related(ctx context.Context, query string, limit int, minSimilarity float64) ([]search.Match, error)
}

// Completer is the subset of the chat client used here.
type Completer interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Request is one question. MaxContextItems defaults to DefaultContextItems.
type Request struct {
	Message         string `json:"message" binding:"required"`
	MaxContextItems int    `json:"max_context_items"`
}

// Reply is the model's answer and the media it was given.
type Reply struct {
	Response        string   `json:"response"`
	ContextMediaIDs []string `json:"context_media_ids"`
}

// Service runs archive conversations.
type Service struct {
	store     *store.Store
	retriever Retriever
	model     Completer
	logger    *slog.Logger
}

// New wires the configured chat model.
func New(cfg *config.Config, st *store.Store, retriever Retriever, logger *slog.Logger) *Service {
	return NewWithCompleter(st, retriever, llm.NewClient(llm.Config(cfg.GetLLM())), logger)
}

// NewWithCompleter builds a Service around any Completer.
func NewWithCompleter(st *store.Store, retriever Retriever, model Completer, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		retriever: retriever,
		model:     model,
		logger:    logging.NewComponentLogger(logger, "chat"),
	}
}

// Ask records the question, answers it with the closest archive items as
// context, and records the answer.
func (s *Service) Ask(ctx context.Context, req Request) (Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, services.Wrap(services.ErrValidation, "chat", "ask", "message is empty", nil)
	}
	limit := req.MaxContextItems
	switch {
	case limit <= 0:
		limit = DefaultContextItems
	case limit > MaxContextItems:
		return Reply{}, services.Wrap(services.ErrValidation, "chat", "ask",
			fmt.Sprintf("max_context_items must be at most %d", MaxContextItems), nil)
	}

	question := &store.ChatMessage{Role: store.ChatUser, Text: message}
	if err := s.store.CreateChatMessage(ctx, question); err != nil {
		return Reply{}, err
	}

	// Cosine similarity never drops below -1, so every candidate qualifies.
	matches, err := s.retriever.Related(ctx, message, limit, -1)
	if err != nil {
		return Reply{}, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Item.ID)
	}

	answer, err := s.model.CompleteText(ctx, systemPrompt, buildPrompt(message, matches))
	if err != nil {
		return Reply{}, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = fallbackText
	}

	// History is ordered by timestamp, so the answer must sort after the question.
	answeredAt := time.Now().UTC()
	if !answeredAt.After(question.CreatedAt) {
		answeredAt = question.CreatedAt.Add(time.Nanosecond)
	}
	if err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		Role:            store.ChatAssistant,
		Text:            answer,
		ContextMediaIDs: ids,
		CreatedAt:       answeredAt,
	}); err != nil {
		return Reply{}, err
	}
	s.logger.Info("chat answered",
		logging.String(logging.FieldEventType, "chat_answered"),
		logging.Int("context_items", len(ids)),
	)
	return Reply{Response: answer, ContextMediaIDs: ids}, nil
}

// History lists messages newest first.
func (s *Service) History(ctx context.Context, limit, offset int) ([]*store.ChatMessage, error) {
	return s.store.ListChatMessages(ctx, limit, offset)
}

// Clear deletes the history and returns the number of messages removed.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.ClearChatMessages(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("chat history cleared",
		logging.String(logging.FieldEventType, "chat_cleared"),
		logging.Int64("count", n),
	)
	return n, nil
}

func buildPrompt(question string, matches []search.Match) string {
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nSummary: %s\nContent: %s",
			m.Item.Title, m.Item.AISummary, excerpt(m.Item.RawText)))
	}
	var b strings.Builder
	b.WriteString("CONTEXT FROM ARCHIVE:\n")
	if len(blocks) == 0 {
		b.WriteString("(no archived items)")
	} else {
		b.WriteString(strings.Join(blocks, "\n---\n"))
	}
	b.WriteString("\n\nUSER QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer the question using the provided context. If the context does not contain enough information, use your own knowledge and say so.")
	return b.String()
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return string(runes[:excerptRunes]) + "..."
}
