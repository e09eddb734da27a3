package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"nexus/internal/logging"
)

// runSweepSchedule sweeps once at startup, then on the configured cron
// schedule. Overlapping runs are skipped.
func (d *Daemon) runSweepSchedule(ctx context.Context) error {
	schedule := d.cfg.Subscriptions.SweepSchedule
	logger := cronLogger{logger: d.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(schedule, func() { d.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}

	d.sweep(ctx)
	c.Start()
	d.logger.Info("subscription sweep scheduled",
		logging.String(logging.FieldEventType, "sweep_scheduled"),
		logging.String("schedule", schedule),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (d *Daemon) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	queued, err := d.sweeper.Sweep(ctx)
	if err != nil {
		logging.ErrorWithContext(d.logger, "subscription sweep failed", "sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
		return
	}
	d.logger.Info("subscription sweep finished",
		logging.String(logging.FieldEventType, "sweep_finished"),
		logging.Int("queued", queued),
	)
}

// cronLogger routes cron's own diagnostics into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
