// Package enrichment derives summaries, tags and structured update lists from
// text through a chat-completion model.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"nexus/internal/config"
	"nexus/internal/services"
	"nexus/internal/services/llm"
)

// DefaultIntentPrompt is used when a subscription has no prompt of its own.
const DefaultIntentPrompt = "Extract the most important updates."

const (
	maxPromptChars = 60000
	maxTags        = 8
)

// Summary is the result of Summarize.
type Summary struct {
	Summary string
	Tags    []string
}

// Item is one structured update pulled from a source.
type Item struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Date    string   `json:"date"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Completer is the subset of the chat client used here.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service calls the model with bounded retries.
type Service struct {
	chat     Completer
	retry    services.RetryPolicy
	minItems int
	maxItems int
}

// New wires the chat client from configuration. Retries live here, so the
// client itself makes a single attempt per call.
func New(cfg *config.Config) *Service {
	client := llm.NewClient(llm.Config(cfg.GetLLM()), llm.WithRetryMaxAttempts(1))
	return NewWithCompleter(cfg, client)
}

// NewWithCompleter builds a Service around any Completer.
func NewWithCompleter(cfg *config.Config, chat Completer) *Service {
	baseDelay, maxDelay := cfg.RetryBackoff()
	return &Service{
		chat:     chat,
		retry:    services.RetryPolicy{Attempts: cfg.LLM.RetryAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay},
		minItems: cfg.Subscriptions.MinItems,
		maxItems: cfg.Subscriptions.MaxItems,
	}
}

// WithRetryPolicy overrides retry behaviour.
func (s *Service) WithRetryPolicy(policy services.RetryPolicy) *Service {
	s.retry = policy
	return s
}

type summaryPayload struct {
	AISummary string   `json:"aiSummary"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
}

// Summarize produces a short summary and topic tags for text.
func (s *Service) Summarize(ctx context.Context, text string) (Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}, services.Wrap(services.ErrValidation, "enrichment", "summarize", "no text to summarize", nil)
	}
	prompt := fmt.Sprintf(summarizeUserTemplate, clip(text, maxPromptChars))

	var out Summary
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		content, err := s.chat.CompleteJSON(ctx, summarizeSystemPrompt, prompt)
		if err != nil {
			return err
		}
		var payload summaryPayload
		if err := llm.DecodeLLMJSON(content, &payload); err != nil {
			return services.Wrap(services.ErrTransient, "enrichment", "summarize", "malformed model output", err)
		}
		summary := strings.TrimSpace(payload.AISummary)
		if summary == "" {
			summary = strings.TrimSpace(payload.Summary)
		}
		if summary == "" {
			return services.Wrap(services.ErrTransient, "enrichment", "summarize", "model returned an empty summary", nil)
		}
		out = Summary{Summary: summary, Tags: NormalizeTags(payload.Tags)}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

type itemsPayload struct {
	Items []Item `json:"items"`
}

// ExtractItems asks the model for minItems..maxItems updates from content.
// Returned items are trimmed and capped at maxItems; field validation is the
// caller's job.
func (s *Service) ExtractItems(ctx context.Context, sourceTitle, content, intentPrompt string, periodDays int) ([]Item, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, services.Wrap(services.ErrValidation, "enrichment", "extract items", "no content", nil)
	}
	intent := strings.TrimSpace(intentPrompt)
	if intent == "" {
		intent = DefaultIntentPrompt
	}
	prompt := fmt.Sprintf(extractUserTemplate,
		strings.TrimSpace(sourceTitle), intent, periodDays, s.minItems, s.maxItems, clip(content, maxPromptChars))

	var items []Item
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		raw, err := s.chat.CompleteJSON(ctx, extractSystemPrompt, prompt)
		if err != nil {
			return err
		}
		var payload itemsPayload
		if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
			// Some models return a bare array.
			var bare []Item
			if bareErr := llm.DecodeLLMJSON(raw, &bare); bareErr != nil {
				return services.Wrap(services.ErrTransient, "enrichment", "extract items", "malformed model output", err)
			}
			payload.Items = bare
		}
		items = payload.Items
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		item.URL = strings.TrimSpace(item.URL)
		item.Date = strings.TrimSpace(item.Date)
		item.Summary = strings.TrimSpace(item.Summary)
		item.Tags = NormalizeTags(item.Tags)
		out = append(out, item)
	}
	if s.maxItems > 0 && len(out) > s.maxItems {
		out = out[:s.maxItems]
	}
	return out, nil
}

var lower = cases.Lower(language.Und)

// NormalizeTags lowercases, strips leading '#', collapses whitespace to
// hyphens and removes duplicates while keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		cleaned := norm.NFC.String(strings.TrimSpace(tag))
		cleaned = strings.TrimLeft(cleaned, "#")
		cleaned = lower.String(strings.Join(strings.Fields(cleaned), "-"))
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func clip(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
