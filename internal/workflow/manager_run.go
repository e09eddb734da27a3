package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

// Start launches the worker pool and the stale-task reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	workers := m.workers
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Duration("soft_limit", m.softLimit),
		logging.Duration("hard_limit", m.hardLimit),
	)

	go m.runReclaimer(runCtx)
	for i := range workers {
		go m.runWorker(runCtx, i+1)
	}
	return nil
}

// Stop terminates background processing and waits for workers to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Run starts the pool and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}
		claimed, err := m.ProcessNext(ctx)
		if claimed {
			continue
		}
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		m.waitOrShutdown(ctx, m.pollInterval)
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := m.reclaimEvery
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.heartbeat.ReclaimStaleTasks(ctx, m.logger); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "reclaim stale tasks failed; stuck tasks may remain", "task_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check task table access"),
				logging.String(logging.FieldImpact, "abandoned tasks stay running until the next pass"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_claim_failed"),
		logging.String(logging.FieldErrorHint, "check task table access"),
	)
	m.waitOrShutdown(ctx, m.errorRetry)
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ProcessNext claims and runs a single task. claimed is false when nothing
// was ready or the claim failed; err then carries the claim error. When a
// task ran, err is its outcome.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	task, err := m.store.ClaimTask(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, m.execute(ctx, task)
}

func (m *Manager) execute(ctx context.Context, task *store.Task) error {
	taskCtx := services.WithTaskID(ctx, task.ID)
	persistCtx := context.WithoutCancel(taskCtx)
	logger := logging.WithContext(taskCtx, m.logger).With(
		logging.String("kind", task.Kind),
		logging.Int("attempt", task.Attempts),
	)
	m.setLastTask(task)

	handler, ok := m.handler(task.Kind)
	if !ok {
		err := services.Wrap(services.ErrConfiguration, "workflow", "dispatch", fmt.Sprintf("no handler for task kind %q", task.Kind), nil)
		m.recordFailure(persistCtx, logger, task, err)
		return err
	}

	m.trackActive(1)
	defer m.trackActive(-1)

	logger.Info("task started", logging.String(logging.FieldEventType, "task_start"))
	started := time.Now()

	softCtx, cancelSoft := context.WithTimeout(taskCtx, m.softLimit)
	defer cancelSoft()

	hbCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	done := make(chan error, 1)
	go func() { done <- callHandler(softCtx, handler, task) }()

	hard := time.NewTimer(m.hardLimit)
	defer hard.Stop()

	var runErr error
	abandoned := false
	select {
	case runErr = <-done:
	case <-hard.C:
		abandoned = true
		runErr = services.Wrap(services.ErrTimeout, "workflow", task.Kind,
			fmt.Sprintf("task exceeded hard time limit of %ds", int(m.hardLimit/time.Second)), nil)
	}
	stopHeartbeat()
	hbWG.Wait()

	if !abandoned && ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
		logger.Info("task interrupted by shutdown; returning to queue",
			logging.String(logging.FieldEventType, "task_released"),
		)
		if err := m.store.ReleaseTask(persistCtx, task.ID); err != nil {
			logger.Warn("release interrupted task failed; it will be reclaimed after the heartbeat timeout", logging.Error(err))
		}
		return runErr
	}

	if abandoned || errors.Is(softCtx.Err(), context.DeadlineExceeded) {
		if abandoned {
			logger.Error("task abandoned at hard time limit",
				logging.String(logging.FieldEventType, "task_abandoned"),
				logging.String(logging.FieldErrorHint, "the handler ignored its soft deadline"),
			)
		}
		if expirer, ok := handler.(Expirer); ok {
			if err := expirer.Expire(persistCtx, task, m.softLimit); err != nil {
				logger.Warn("record task overrun failed", logging.Error(err))
			}
		}
		if !errors.Is(runErr, services.ErrTimeout) {
			runErr = services.Wrap(services.ErrTimeout, "workflow", task.Kind,
				fmt.Sprintf("task exceeded soft time limit of %ds", int(m.softLimit/time.Second)), runErr)
		}
		m.recordFailure(persistCtx, logger, task, runErr)
		return runErr
	}

	if runErr != nil {
		m.recordFailure(persistCtx, logger, task, runErr)
		return runErr
	}

	if err := m.store.CompleteTask(persistCtx, task.ID); err != nil {
		m.setLastError(err)
		logger.Error("failed to mark task succeeded", logging.Error(err))
		return err
	}
	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

// recordFailure requeues retryable failures while attempts remain.
func (m *Manager) recordFailure(ctx context.Context, logger *slog.Logger, task *store.Task, cause error) {
	m.setLastError(cause)
	retryAfter := time.Duration(0)
	if services.IsRetryable(cause) && !errors.Is(cause, services.ErrTimeout) {
		retryAfter = max(m.errorRetry, time.Second)
	}
	message := services.Details(cause).Message
	if err := m.store.FailTask(ctx, task, message, retryAfter); err != nil {
		logger.Error("failed to record task failure", logging.Error(err))
	}
	willRetry := retryAfter > 0 && task.Attempts < task.MaxAttempts
	logging.ErrorWithContext(logger, "task failed", "task_failure",
		logging.Error(cause),
		logging.Bool("will_retry", willRetry),
		logging.String(logging.FieldErrorHint, "see the job or subscription named in the task payload"),
	)
}

func callHandler(ctx context.Context, handler Handler, task *store.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, task)
}
