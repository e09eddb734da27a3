package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"nexus/internal/api"
	"nexus/internal/config"
	"nexus/internal/deps"
	"nexus/internal/logging"
	"nexus/internal/preflight"
	"nexus/internal/store"
	"nexus/internal/workflow"
)

// Workflow is the task worker pool.
type Workflow interface {
	Run(ctx context.Context) error
	Status(ctx context.Context) workflow.StatusSummary
}

// Sweeper queues syncs for due subscriptions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Options wires the daemon to its background services. Sweeper and Routes
// may be nil to disable the schedule or the HTTP gateway.
type Options struct {
	Workflow Workflow
	Sweeper  Sweeper
	Routes   func(status api.StatusFunc) http.Handler
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow Workflow
	sweeper  Sweeper
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ready   chan struct{}

	mu   sync.RWMutex
	deps []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || st == nil || opts.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "nexus.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: opts.Workflow,
		sweeper:  opts.Sweeper,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		ready:    make(chan struct{}),
	}
	if opts.Routes != nil && strings.TrimSpace(cfg.Paths.APIBind) != "" {
		d.api = newAPIServer(cfg.Paths.APIBind, opts.Routes(d.Status), d.logger)
	}
	return d, nil
}

// Run acquires the lock, runs preflight and serves until ctx is cancelled.
// A daemon runs at most once.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another nexus daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if err := d.preflight(ctx); err != nil {
		return err
	}
	if d.api != nil {
		if err := d.api.listen(); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.workflow.Run(groupCtx)
	})
	if d.sweeper != nil {
		group.Go(func() error {
			return d.runSweepSchedule(groupCtx)
		})
	}
	if d.api != nil {
		group.Go(d.api.serve)
		group.Go(func() error {
			<-groupCtx.Done()
			d.api.shutdown()
			return nil
		})
	}

	d.logger.Info("nexus daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.Addr()),
	)
	close(d.ready)

	err = group.Wait()
	d.logger.Info("nexus daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Ready is closed once every service has been launched.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound API address, empty when the gateway is disabled
// or not yet listening.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

func (d *Daemon) preflight(ctx context.Context) error {
	results := append(preflight.RunAll(ctx, d.cfg), preflight.CheckDatabase(ctx, d.store.Driver(), d.store))
	for _, r := range results {
		if r.Passed {
			d.logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		if !r.Critical {
			logging.WarnWithContext(d.logger, "preflight check failed", "preflight_warning",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldImpact, "dependent stages may fail"),
			)
		}
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, r.Name+": "+r.Detail)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
	}

	statuses := preflight.CheckSystemDeps(d.cfg)
	d.mu.Lock()
	d.deps = statuses
	d.mu.Unlock()
	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install it or set the binary path in config"),
			logging.String(logging.FieldImpact, missing.Description),
		)
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.mu.RLock()
	statuses := api.FromDependencies(d.deps)
	d.mu.RUnlock()

	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Driver:       d.store.Driver(),
		StorePath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Workflow:     api.FromStatusSummary(d.workflow.Status(ctx)),
		Dependencies: statuses,
	}
}
