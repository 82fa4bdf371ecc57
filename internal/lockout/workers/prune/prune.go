// Package prune removes lockout history that has aged past the configured
// retention windows. Attempt logs age by attempt time; lock records age by
// unlock time or expiry, so an active never-expiring lock is kept forever.
package prune

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	lockoutcfg "lockgate/internal/lockout/config"
	"lockgate/internal/lockout/metrics"
)

// Result reports one prune run.
type Result struct {
	AttemptLogsDeleted int64
	LockRecordsDeleted int64
	Duration           time.Duration
}

// Store is the pruning persistence contract. Both methods delete rows older
// than the cutoff and report how many were removed.
type Store interface {
	PruneAttemptLogs(ctx context.Context, cutoff time.Time) (int64, error)
	PruneLockRecords(ctx context.Context, cutoff time.Time) (int64, error)
}

type Option func(*Pruner)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(p *Pruner) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pruner) {
		p.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// Selection narrows a run to one table. The zero value prunes both.
type Selection struct {
	OnlyAttemptLogs bool
	OnlyLockRecords bool
}

type Pruner struct {
	store    Store
	config   lockoutcfg.PruneConfig
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store Store, cfg lockoutcfg.PruneConfig, opts ...Option) *Pruner {
	p := &Pruner{
		store:    store,
		config:   cfg,
		logger:   slog.Default(),
		interval: 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the pruner on its interval until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("lockout_prune_failed", "error", err)
			}
		case <-ctx.Done():
			p.logger.Info("lockout prune worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce prunes both tables concurrently with the full retention windows.
func (p *Pruner) RunOnce(ctx context.Context) (*Result, error) {
	return p.Run(ctx, Selection{}, p.config.AttemptLogRetention, p.config.LockRecordRetention)
}

// Run prunes the selected tables using the given retention windows. Pruning
// disabled in configuration is a successful no-op.
func (p *Pruner) Run(ctx context.Context, sel Selection, logRetention, lockRetention time.Duration) (*Result, error) {
	if !p.config.Enabled {
		p.logger.Info("lockout pruning disabled, skipping run")
		return &Result{}, nil
	}

	start := p.now()
	result := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	if !sel.OnlyLockRecords {
		cutoff := start.Add(-logRetention)
		g.Go(func() error {
			deleted, err := p.store.PruneAttemptLogs(gctx, cutoff)
			if err != nil {
				return err
			}
			result.AttemptLogsDeleted = deleted
			return nil
		})
	}
	if !sel.OnlyAttemptLogs {
		cutoff := start.Add(-lockRetention)
		g.Go(func() error {
			deleted, err := p.store.PruneLockRecords(gctx, cutoff)
			if err != nil {
				return err
			}
			result.LockRecordsDeleted = deleted
			return nil
		})
	}

	err := g.Wait()
	result.Duration = time.Since(start)

	if err != nil {
		if p.metrics != nil {
			p.metrics.PruneRuns.WithLabelValues("error").Inc()
			p.metrics.PruneDurationMs.Observe(float64(result.Duration.Milliseconds()))
		}
		return nil, err
	}

	p.logger.Info("lockout_prune_completed",
		"attempt_logs_deleted", result.AttemptLogsDeleted,
		"lock_records_deleted", result.LockRecordsDeleted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	if p.metrics != nil {
		p.metrics.PruneRuns.WithLabelValues("success").Inc()
		p.metrics.PruneDeleted.WithLabelValues("attempt_logs").Add(float64(result.AttemptLogsDeleted))
		p.metrics.PruneDeleted.WithLabelValues("lock_records").Add(float64(result.LockRecordsDeleted))
		p.metrics.PruneDurationMs.Observe(float64(result.Duration.Milliseconds()))
	}
	return result, nil
}
