package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

// Subscription period bounds in days.
const (
	MinPeriodDays     = 1
	MaxPeriodDays     = 365
	DefaultPeriodDays = 7
)

var subscriptionKinds = map[string]bool{"site": true, "channel": true, "podcast": true}

// SubscriptionRequest describes a subscription to create.
type SubscriptionRequest struct {
	URL         string `json:"url" yaml:"url" binding:"required"`
	Title       string `json:"title" yaml:"title"`
	Kind        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	PeriodDays  int    `json:"period_days" yaml:"period_days"`
	SyncEnabled *bool  `json:"sync_enabled" yaml:"sync_enabled"`
}

func validatePeriod(days int) error {
	if days < MinPeriodDays || days > MaxPeriodDays {
		return services.Wrap(services.ErrValidation, "subscriptions", "validate",
			fmt.Sprintf("period_days must be between %d and %d", MinPeriodDays, MaxPeriodDays), nil)
	}
	return nil
}

func (r SubscriptionRequest) toSubscription() (*store.Subscription, error) {
	raw := strings.TrimSpace(r.URL)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, services.Wrap(services.ErrValidation, "subscriptions", "validate", "url must be an http(s) URL", err)
	}
	kind := strings.ToLower(strings.TrimSpace(r.Kind))
	if kind == "" {
		kind = "site"
	}
	if !subscriptionKinds[kind] {
		return nil, services.Wrap(services.ErrValidation, "subscriptions", "validate",
			fmt.Sprintf("type %q must be site, channel or podcast", r.Kind), nil)
	}
	period := r.PeriodDays
	if period == 0 {
		period = DefaultPeriodDays
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = raw
	}
	enabled := true
	if r.SyncEnabled != nil {
		enabled = *r.SyncEnabled
	}
	return &store.Subscription{
		URL:         raw,
		Title:       title,
		Kind:        kind,
		Description: strings.TrimSpace(r.Description),
		Prompt:      strings.TrimSpace(r.Prompt),
		PeriodDays:  period,
		SyncEnabled: enabled,
	}, nil
}

// CreateSubscription validates and stores a subscription. A URL that is
// already subscribed yields services.ErrConflict.
func (s *Service) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*store.Subscription, error) {
	sub, err := req.toSubscription()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	logging.WithContext(services.WithSubscriptionID(ctx, sub.ID), s.logger).Info("subscription created",
		logging.String(logging.FieldEventType, "subscription_created"),
		logging.String("url", sub.URL),
		logging.Int("period_days", sub.PeriodDays),
	)
	return sub, nil
}

// UpdateSubscription applies the set fields of patch.
func (s *Service) UpdateSubscription(ctx context.Context, id string, patch store.SubscriptionPatch) (*store.Subscription, error) {
	if patch.PeriodDays != nil {
		if err := validatePeriod(*patch.PeriodDays); err != nil {
			return nil, err
		}
	}
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, services.Wrap(services.ErrNotFound, "subscriptions", "update", id, nil)
	}
	patch.Apply(sub)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscription removes the subscription. Media it imported is kept.
func (s *Service) DeleteSubscription(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteSubscription(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return services.Wrap(services.ErrNotFound, "subscriptions", "delete", id, nil)
	}
	logging.WithContext(services.WithSubscriptionID(ctx, id), s.logger).Info("subscription deleted",
		logging.String(logging.FieldEventType, "subscription_deleted"),
	)
	return nil
}

// SyncNow queues a manual sync, which runs even when syncing is disabled.
func (s *Service) SyncNow(ctx context.Context, id string) (string, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", services.Wrap(services.ErrNotFound, "subscriptions", "sync", id, nil)
	}
	return s.queue.EnqueueManualSync(ctx, sub.ID)
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Created []*store.Subscription `json:"created"`
	Skipped []string              `json:"skipped"`
	Errors  []string              `json:"errors"`
}

type importFile struct {
	Subscriptions []SubscriptionRequest `yaml:"subscriptions"`
}

// ImportSubscriptions creates every subscription listed in a YAML document
// of the form `subscriptions: [{url, title, type, period_days, ...}]`.
// Already-subscribed URLs are skipped; invalid entries are reported and do
// not stop the import.
func (s *Service) ImportSubscriptions(ctx context.Context, r io.Reader) (ImportResult, error) {
	var doc importFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, services.Wrap(services.ErrValidation, "subscriptions", "import", "parse yaml", err)
	}

	var result ImportResult
	for i, req := range doc.Subscriptions {
		sub, err := s.CreateSubscription(ctx, req)
		switch {
		case errors.Is(err, services.ErrConflict):
			result.Skipped = append(result.Skipped, strings.TrimSpace(req.URL))
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): %s", i+1, req.URL, services.Details(err).Message))
		default:
			result.Created = append(result.Created, sub)
		}
	}
	s.logger.Info("subscriptions imported",
		logging.String(logging.FieldEventType, "subscriptions_imported"),
		logging.Int("created", len(result.Created)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("errors", len(result.Errors)),
	)
	return result, nil
}
