package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexus/internal/config"
	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

// Handler executes one claimed task. ctx carries the soft time limit.
type Handler interface {
	Handle(ctx context.Context, task *store.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *store.Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task *store.Task) error {
	return f(ctx, task)
}

// Expirer is implemented by handlers that record an overrun on their own
// rows once the soft limit passes.
type Expirer interface {
	Expire(ctx context.Context, task *store.Task, limit time.Duration) error
}

// Manager runs a pool of workers over the durable task table.
type Manager struct {
	store     *store.Store
	logger    *slog.Logger
	heartbeat *HeartbeatMonitor

	workers      int
	pollInterval time.Duration
	errorRetry   time.Duration
	softLimit    time.Duration
	hardLimit    time.Duration
	reclaimEvery time.Duration
	maxRetries   int

	handlers map[string]Handler

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   int
	lastErr  error
	lastTask *store.Task
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithWorkers overrides the worker count.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithPollInterval overrides how long an idle worker waits before polling again.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// WithTimeLimits overrides the per-task soft and hard limits.
func WithTimeLimits(soft, hard time.Duration) ManagerOption {
	return func(m *Manager) {
		m.softLimit = soft
		m.hardLimit = hard
	}
}

// WithHeartbeat overrides heartbeat refresh and stale timeout.
func WithHeartbeat(interval, timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.heartbeat = NewHeartbeatMonitor(m.store, m.logger, interval, timeout)
		m.reclaimEvery = interval
	}
}

// NewManager constructs a task manager from configuration.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	hbInterval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	m := &Manager{
		store:        st,
		logger:       logger,
		workers:      max(cfg.Workflow.Workers, 1),
		pollInterval: time.Duration(cfg.Workflow.PollIntervalSeconds) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		softLimit:    cfg.SoftTimeLimit(),
		hardLimit:    cfg.HardTimeLimit(),
		reclaimEvery: hbInterval,
		maxRetries:   max(cfg.Workflow.MaxTaskRetries, 0),
		heartbeat: NewHeartbeatMonitor(
			st,
			logger,
			hbInterval,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register binds a handler to a task kind, replacing any previous one.
func (m *Manager) Register(kind string, handler Handler) {
	m.mu.Lock()
	m.handlers[kind] = handler
	m.mu.Unlock()
}

func (m *Manager) handler(kind string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[kind]
	return h, ok
}

// Enqueue stores a task of kind with a JSON-encoded payload and returns its ID.
// Workers need not be running; any process sharing the store picks it up.
func (m *Manager) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	task, err := m.store.EnqueueTask(ctx, kind, string(raw), m.maxAttempts(kind))
	if err != nil {
		return "", err
	}
	logging.WithContext(services.WithTaskID(ctx, task.ID), m.logger).Info("task queued",
		logging.String(logging.FieldEventType, "task_queued"),
		logging.String("kind", kind),
	)
	return task.ID, nil
}

// maxAttempts: pipeline jobs record their own terminal error, so only
// subscription syncs get the extra delivery by default.
func (m *Manager) maxAttempts(kind string) int {
	if kind == KindSyncSubscription {
		return max(m.maxRetries, defaultSyncRetries) + 1
	}
	return m.maxRetries + 1
}
