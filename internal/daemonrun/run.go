package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"nexus/internal/api"
	"nexus/internal/blob"
	"nexus/internal/chat"
	"nexus/internal/config"
	"nexus/internal/daemon"
	"nexus/internal/deps"
	"nexus/internal/embedding"
	"nexus/internal/ingest"
	"nexus/internal/logging"
	"nexus/internal/notifications"
	"nexus/internal/pipeline"
	"nexus/internal/preflight"
	"nexus/internal/search"
	"nexus/internal/store"
	"nexus/internal/subscriptions"
	"nexus/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Runtime holds every service wired from one configuration. The CLI uses it
// for direct store access and the daemon for serving.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Blobs    blob.Store
	Notifier notifications.Service
	Pipeline *pipeline.Orchestrator
	Syncer   *subscriptions.Syncer
	Workflow *workflow.Manager
	Ingest   *ingest.Service
	Search   *search.Service
	Chat     *chat.Service
	Sweeper  *subscriptions.Sweeper
}

// Open builds the runtime. Close releases the store.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.New(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	notifier := notifications.NewService(cfg)
	orchestrator, err := pipeline.NewFromConfig(ctx, cfg, st, blobs, notifier, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	syncer := subscriptions.NewSyncerFromConfig(cfg, st, notifier, logger)

	manager := workflow.NewManager(cfg, st, logger)
	manager.Register(workflow.KindProcessMedia, workflow.NewProcessMediaHandler(orchestrator))
	manager.Register(workflow.KindSyncSubscription, workflow.NewSyncSubscriptionHandler(syncer))

	staleAfter := time.Duration(cfg.Subscriptions.StaleAfterHours) * time.Hour
	searchSvc := search.New(st, embedding.New(cfg), logger)
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Blobs:    blobs,
		Notifier: notifier,
		Pipeline: orchestrator,
		Syncer:   syncer,
		Workflow: manager,
		Ingest:   ingest.New(cfg, st, blobs, manager, logger),
		Search:   searchSvc,
		Chat:     chat.New(cfg, st, searchSvc, logger),
		Sweeper:  subscriptions.NewSweeper(st, manager, staleAfter, notifier, logger),
	}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Routes returns the HTTP gateway bound to this runtime.
func (r *Runtime) Routes(status api.StatusFunc) http.Handler {
	return api.NewRouter(api.Options{
		Store:  r.Store,
		Ingest: r.Ingest,
		Search: r.Search,
		Chat:   r.Chat,
		Status: status,
		Token:  r.Config.Paths.APIToken,
		Logger: r.Logger,
	})
}

// PIDPath is where a running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "nexus.pid")
}

// Run starts the nexus daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)

	rt, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, rt.Store, logger, daemon.Options{
		Workflow: rt.Workflow,
		Sweeper:  rt.Sweeper,
		Routes:   rt.Routes,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Run(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, directories and database access"),
		)
		return err
	}
	logger.Info("nexus daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("database_driver", cfg.Database.Driver),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("transcription_mode", cfg.Transcription.Mode),
		logging.String("fingerprint_method", cfg.Fingerprint.Method),
		logging.Bool("llm_key_present", cfg.GetLLM().APIKey != ""),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	if missing := deps.Missing(statuses); len(missing) > 0 {
		attrs = append(attrs, logging.Int("missing_required", len(missing)))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
