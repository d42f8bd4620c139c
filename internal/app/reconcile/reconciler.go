package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/metrics"
)

const defaultSchedule = "@every 5m"

// Index is the slice of the store the reconciler needs: enumerate counters,
// read the cached value and rebuild it from the authoritative rows.
type Index interface {
	CounterUserIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context, userID string) (int64, error)
	Recompute(ctx context.Context, userID string) (int64, error)
}

// Reconciler periodically recomputes unread counters from the store. Counters
// are an optimization over the read=false rows; after a partial failure this
// sweep restores the invariant that both agree.
type Reconciler struct {
	index    Index
	cron     *cron.Cron
	log      *zap.Logger
	schedule string

	cancel context.CancelFunc
}

// Option customises the Reconciler.
type Option func(*Reconciler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(r *Reconciler) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(index Index, opts ...Option) (*Reconciler, error) {
	if index == nil {
		return nil, errors.New("reconciler: index is required")
	}

	r := &Reconciler{
		index:    index,
		cron:     cron.New(),
		log:      logger.WithModule("reconcile"),
		schedule: defaultSchedule,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start schedules the periodic sweep.
func (r *Reconciler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconcile sweep failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("reconciler: schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	return nil
}

// Stop halts scheduling and cancels any in-flight sweep. It returns once the
// cron runner has drained.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.cron.Stop().Done()
}

// RunOnce recomputes every known counter, aggregating per-user failures so one
// bad row does not mask the rest of the sweep.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	started := time.Now()

	userIDs, err := r.index.CounterUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: enumerate counters: %w", err)
	}

	var errs error
	drifted := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}

		cached, err := r.index.Count(ctx, userID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: read counter: %w", userID, err))
			continue
		}

		actual, err := r.index.Recompute(ctx, userID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: recompute: %w", userID, err))
			continue
		}

		if cached != actual {
			drifted++
			metrics.UnreadReconciliations.WithLabelValues("drift").Inc()
			r.log.Warn("unread counter drift repaired",
				zap.String("user_id", userID),
				zap.Int64("cached", cached),
				zap.Int64("actual", actual),
			)
		} else {
			metrics.UnreadReconciliations.WithLabelValues("clean").Inc()
		}
	}

	r.log.Info("reconcile sweep finished",
		zap.Int("counters", len(userIDs)),
		zap.Int("drifted", drifted),
		zap.Duration("took", time.Since(started)),
	)
	return errs
}
