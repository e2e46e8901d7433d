// Package reconciler runs catalog reconciliation on a cron schedule.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs reconciliation every five minutes.
const DefaultSchedule = "@every 5m"

// Reconciler is the part of the scheduler engine the runner drives.
type Reconciler interface {
	ReconcileCatalog(ctx context.Context) (scheduler.ReconcileReport, error)
}

// Run is the outcome of one reconciliation pass.
type Run struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Report     scheduler.ReconcileReport `json:"report"`
	Error      string                    `json:"error,omitempty"`
}

// Runner schedules reconciliation passes. Overlapping passes are skipped and a
// panicking pass is recovered.
type Runner struct {
	schedule   string
	reconciler Reconciler
	logger     *slog.Logger
	timeout    time.Duration

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	last *Run
}

// New validates schedule, a standard five-field cron expression or descriptor
// such as "@every 10m". timeout bounds each pass; zero means unbounded.
func New(schedule string, reconciler Reconciler, timeout time.Duration, logger *slog.Logger) (*Runner, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	return &Runner{
		schedule:   schedule,
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger.With("module", "reconciler", "schedule", schedule),
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting reconciliation schedule")

	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	cronLogger := &cronLogger{logger: r.logger}
	r.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	_, err := r.cron.AddFunc(r.schedule, func() {
		_, _ = r.RunOnce(r.ctx)
	})
	if err != nil {
		r.cancel()

		return fmt.Errorf("failed to add reconcile job: %w", err)
	}

	r.cron.Start()

	return nil
}

// RunOnce performs one reconciliation pass and records it as the last run.
func (r *Runner) RunOnce(ctx context.Context) (Run, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	run := Run{StartedAt: time.Now().UTC()}

	report, err := r.reconciler.ReconcileCatalog(ctx)

	run.FinishedAt = time.Now().UTC()
	run.Report = report

	if err != nil {
		run.Error = err.Error()
		r.logger.ErrorContext(ctx, "Reconciliation failed", "error", err, "interrupted", report.Interrupted)
	} else {
		r.logger.InfoContext(ctx, "Reconciliation pass finished",
			"duration", run.FinishedAt.Sub(run.StartedAt),
			"outcomes", len(report.Outcomes))
	}

	r.mu.Lock()
	r.last = &run
	r.mu.Unlock()

	return run, err
}

// Last returns the most recent pass, if any ran.
func (r *Runner) Last() (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.last == nil {
		return Run{}, false
	}

	return *r.last, true
}

// Stop halts the schedule and cancels a pass in flight, waiting for it until
// ctx ends.
func (r *Runner) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping reconciliation schedule")

	if r.cron == nil {
		return nil
	}

	done := r.cron.Stop()
	r.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reconciliation did not stop: %w", ctx.Err())
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
