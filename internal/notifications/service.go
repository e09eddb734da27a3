package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nexus/internal/config"
)

// Event names a workflow milestone.
type Event string

const (
	EventJobProgress        Event = "job_progress"
	EventJobCompleted       Event = "job_completed"
	EventDuplicateLinked    Event = "duplicate_linked"
	EventError              Event = "error"
	EventSubscriptionSynced Event = "subscription_synced"
	EventSweepQueued        Event = "sweep_queued"
	EventTest               Event = "test"
)

// Payload carries event attributes. Values are usually strings, ints or errors.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notifier from the [notifications] config section.
// With neither ntfy nor redis configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	var targets []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		targets = append(targets, newNtfyService(topic, cfg.Notifications.RequestTimeout))
	}
	if addr := strings.TrimSpace(cfg.Notifications.RedisAddr); addr != "" {
		targets = append(targets, NewRedisPublisher(cfg.Notifications))
	}
	switch len(targets) {
	case 0:
		return noopService{}
	case 1:
		return targets[0]
	default:
		return multiService(targets)
	}
}

// multiService fans an event out to every target and joins their errors.
type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, target := range m {
		if err := target.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) integer(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
