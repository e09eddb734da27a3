package subscriptions

import (
	"context"
	"log/slog"
	"time"

	"nexus/internal/logging"
	"nexus/internal/notifications"
	"nexus/internal/store"
)

// Enqueuer queues a sync for one subscription and returns the task handle.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, subscriptionID string) (string, error)
}

// Sweeper queues syncs for subscriptions that are due.
type Sweeper struct {
	store      *store.Store
	enqueuer   Enqueuer
	staleAfter time.Duration
	notifier   notifications.Service
	logger     *slog.Logger
	now        func() time.Time
}

// NewSweeper builds a Sweeper. staleAfter defaults to 24h.
func NewSweeper(st *store.Store, enqueuer Enqueuer, staleAfter time.Duration, notifier notifications.Service, logger *slog.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		store:      st,
		enqueuer:   enqueuer,
		staleAfter: staleAfter,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "sweep"),
		now:        time.Now,
	}
}

// Sweep queues one sync per enabled subscription whose last_checked is unset
// or older than staleAfter. Queued subscriptions are stamped immediately, so
// a second sweep inside the window does not queue them again.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.DueSubscriptions(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, sub := range due {
		taskID, err := s.enqueuer.EnqueueSync(ctx, sub.ID)
		if err != nil {
			s.logger.Warn("failed to queue subscription sync",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.String(logging.FieldEventType, "sweep_enqueue_failed"),
				logging.String(logging.FieldImpact, "subscription stays due for the next sweep"),
				logging.Error(err),
			)
			continue
		}
		if err := s.store.TouchLastChecked(ctx, sub.ID, now); err != nil {
			return queued, err
		}
		queued++
		s.logger.Debug("subscription sync queued",
			logging.String(logging.FieldSubscriptionID, sub.ID),
			logging.String(logging.FieldTaskID, taskID),
		)
	}
	s.logger.Info("sweep completed",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.Int("due", len(due)),
		logging.Int("queued", queued),
	)
	if queued > 0 {
		if err := s.notifier.Publish(ctx, notifications.EventSweepQueued, notifications.Payload{"count": queued}); err != nil {
			s.logger.Debug("notification failed", logging.Error(err))
		}
	}
	return queued, nil
}
