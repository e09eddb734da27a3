package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus/internal/config"
	"nexus/internal/embedding"
	"nexus/internal/enrichment"
	"nexus/internal/extract"
	"nexus/internal/logging"
	"nexus/internal/notifications"
	"nexus/internal/services"
	"nexus/internal/store"
)

// WebSource fetches feed or page content.
type WebSource interface {
	Extract(ctx context.Context, rawURL string) (extract.WebContent, error)
}

// ItemExtractor asks the model for structured updates.
type ItemExtractor interface {
	ExtractItems(ctx context.Context, sourceTitle, content, intentPrompt string, periodDays int) ([]enrichment.Item, error)
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Status summarizes one sync invocation.
type Status string

const (
	StatusSynced   Status = "synced"
	StatusDisabled Status = "disabled"
	StatusFailed   Status = "failed"
)

// Result reports what a sync did.
type Result struct {
	Status       Status `json:"status"`
	CreatedCount int    `json:"created_count"`
	Rejected     int    `json:"rejected"`
	Duplicates   int    `json:"duplicates"`
	Failed       int    `json:"failed"`
}

// SyncOptions adjusts a single sync.
type SyncOptions struct {
	// Manual lets a user-triggered sync run on a disabled subscription.
	Manual bool
}

// Options wires a Syncer.
type Options struct {
	Store       *store.Store
	Web         WebSource
	Items       ItemExtractor
	Embedder    Embedder
	Notifier    notifications.Service
	Logger      *slog.Logger
	DigestLimit int
	Now         func() time.Time
}

// Syncer runs subscription syncs.
type Syncer struct {
	store       *store.Store
	web         WebSource
	items       ItemExtractor
	embedder    Embedder
	notifier    notifications.Service
	logger      *slog.Logger
	digestLimit int
	now         func() time.Time
}

const defaultDigestLimit = 50

// NewSyncer builds a Syncer.
func NewSyncer(opts Options) *Syncer {
	s := &Syncer{
		store:       opts.Store,
		web:         opts.Web,
		items:       opts.Items,
		embedder:    opts.Embedder,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		digestLimit: opts.DigestLimit,
		now:         opts.Now,
	}
	if s.notifier == nil {
		s.notifier = notifications.NewService(nil)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = logging.NewComponentLogger(s.logger, "subscriptions")
	if s.digestLimit <= 0 {
		s.digestLimit = defaultDigestLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewSyncerFromConfig wires the production web extractor, enrichment and embedding clients.
func NewSyncerFromConfig(cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger) *Syncer {
	return NewSyncer(Options{
		Store:       st,
		Web:         extract.NewWebExtractor(cfg),
		Items:       enrichment.New(cfg),
		Embedder:    embedding.New(cfg),
		Notifier:    notifier,
		Logger:      logger,
		DigestLimit: cfg.Subscriptions.DigestEntryLimit,
	})
}

// SyncSubscription runs a scheduled sync. Disabled subscriptions are a no-op.
func (s *Syncer) SyncSubscription(ctx context.Context, id string) (Result, error) {
	return s.Sync(ctx, id, SyncOptions{})
}

// Sync fetches the subscription's source and stores newly extracted items.
// last_checked is set to the sync start time whenever the sync runs, even
// when extraction fails; in that case the error is returned afterwards.
func (s *Syncer) Sync(ctx context.Context, id string, opts SyncOptions) (Result, error) {
	ctx = services.WithSubscriptionID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if sub == nil {
		return Result{}, services.Wrap(services.ErrNotFound, "subscriptions", "sync", id, nil)
	}
	if !sub.SyncEnabled && !opts.Manual {
		logger.Info("subscription sync disabled; skipping", logging.String(logging.FieldEventType, "sync_skipped"))
		return Result{Status: StatusDisabled}, nil
	}

	started := s.now().UTC()
	logger.Info("subscription sync started",
		logging.String(logging.FieldEventType, "sync_start"),
		logging.String("url", sub.URL),
		logging.Int("period_days", sub.PeriodDays),
	)

	result, syncErr := s.sync(ctx, logger, sub, started)

	if err := s.store.TouchLastChecked(context.WithoutCancel(ctx), sub.ID, started); err != nil {
		logger.Error("failed to record last_checked", logging.Error(err))
		if syncErr == nil {
			syncErr = err
		}
	}

	if syncErr != nil {
		result.Status = StatusFailed
		logger.Error("subscription sync failed",
			logging.String(logging.FieldEventType, "sync_failure"),
			logging.String(logging.FieldErrorHint, "check the subscription URL and the LLM endpoint"),
			logging.Error(syncErr),
		)
		s.publish(ctx, notifications.EventError, notifications.Payload{
			"subscriptionID": sub.ID,
			"error":          syncErr,
			"context":        "subscription " + subscriptionLabel(sub),
		})
		return result, syncErr
	}

	result.Status = StatusSynced
	logger.Info("subscription sync completed",
		logging.String(logging.FieldEventType, "sync_complete"),
		logging.Int("created", result.CreatedCount),
		logging.Int("rejected", result.Rejected),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("failed", result.Failed),
	)
	s.publish(ctx, notifications.EventSubscriptionSynced, notifications.Payload{
		"subscriptionID": sub.ID,
		"title":          subscriptionLabel(sub),
		"created":        result.CreatedCount,
	})
	return result, nil
}

func (s *Syncer) sync(ctx context.Context, logger *slog.Logger, sub *store.Subscription, started time.Time) (Result, error) {
	var result Result

	content, err := s.web.Extract(ctx, sub.URL)
	if err != nil {
		return result, fmt.Errorf("fetch subscription source: %w", err)
	}
	digest := BuildDigest(content, s.digestLimit)
	sourceTitle := firstNonEmpty(sub.Title, content.Title, sub.URL)

	items, err := s.items.ExtractItems(ctx, sourceTitle, digest, sub.Prompt, sub.PeriodDays)
	if err != nil {
		return result, fmt.Errorf("extract items: %w", err)
	}
	logger.Debug("items extracted", logging.Int("count", len(items)))

	cutoff := started.AddDate(0, 0, -sub.PeriodDays)
	category := store.SourceWebURL
	if content.IsFeed() {
		category = store.SourceRSSURL
	}
	for _, item := range items {
		published, reason := validateItem(item, cutoff)
		if reason != "" {
			result.Rejected++
			logger.Debug("item rejected", logging.String("reason", reason), logging.String("url", item.URL))
			continue
		}
		existing, err := s.store.FindBySourceAndSubscription(ctx, item.URL, sub.ID)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Duplicates++
			continue
		}
		vector, err := s.embedder.Embed(ctx, item.Summary)
		if err != nil {
			result.Failed++
			logger.Warn("item embedding failed; item skipped",
				logging.String(logging.FieldEventType, "item_embed_failed"),
				logging.String(logging.FieldImpact, "the item will be retried on the next sync"),
				logging.String("url", item.URL),
				logging.Error(err),
			)
			continue
		}
		media := &store.MediaItem{
			Title:          item.Title,
			Kind:           store.KindWeb,
			SourceCategory: category,
			SourceURL:      item.URL,
			RawText:        item.Summary,
			AISummary:      item.Summary,
			Tags:           item.Tags,
			Embedding:      vector,
			Status:         store.MediaCompleted,
			Origin:         store.OriginSubscription,
			SubscriptionID: sub.ID,
			PublishedAt:    published,
		}
		if err := s.store.CreateMedia(ctx, media); err != nil {
			return result, err
		}
		result.CreatedCount++
	}
	return result, nil
}

// validateItem returns a non-empty reason when the item must be dropped.
// An unparsable date is kept as unknown.
func validateItem(item enrichment.Item, cutoff time.Time) (*time.Time, string) {
	switch {
	case strings.TrimSpace(item.Title) == "":
		return nil, "missing title"
	case strings.TrimSpace(item.URL) == "":
		return nil, "missing url"
	case strings.TrimSpace(item.Summary) == "":
		return nil, "missing summary"
	}
	published, ok := ParseDate(item.Date)
	if !ok {
		return nil, ""
	}
	if published.Before(cutoff) {
		return nil, "older than period"
	}
	return &published, ""
}

func (s *Syncer) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, s.logger).Debug("notification failed", logging.Error(err))
	}
}

func subscriptionLabel(sub *store.Subscription) string {
	return firstNonEmpty(sub.Title, sub.URL, sub.ID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
