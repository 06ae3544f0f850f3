package autotrade

import (
	"context"
	"sync"
	"time"

	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// hourKeyLayout keys the invocation lock by calendar hour.
const hourKeyLayout = "2006-01-02T15"

// LockSource is the cross-invocation lock used to deduplicate overlapping
// scheduler ticks. Acquire must be an atomic check-and-insert.
type LockSource interface {
	Acquire(key string, at time.Time) (bool, error)
	PurgeBefore(cutoff time.Time) error
}

// Orchestrator wraps the pipeline with hourly idempotency and owns the
// periodic invocation loop.
type Orchestrator struct {
	pipeline *Pipeline
	locks    LockSource
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewOrchestrator creates an orchestrator around a pipeline.
func NewOrchestrator(pipeline *Pipeline, locks LockSource, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline: pipeline,
		locks:    locks,
		logger:   logger.Named("orchestrator"),
	}
}

// RunOnce performs one guarded invocation. When the lock for the current hour
// is already held, or acquisition fails, the invocation is a no-op: failing
// closed can never duplicate an execution. Stale locks from previous days are
// purged first.
func (o *Orchestrator) RunOnce(ctx context.Context, now time.Time) []types.DecisionOutcome {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := o.locks.PurgeBefore(dayStart); err != nil {
		o.logger.Warn("lock purge failed", zap.Error(err))
	}

	key := now.Format(hourKeyLayout)
	won, err := o.locks.Acquire(key, now)
	if err != nil {
		o.logger.Error("lock acquisition failed, abstaining", zap.Error(err))
		return nil
	}
	if !won {
		o.logger.Debug("invocation already ran this hour", zap.String("key", key))
		return nil
	}

	outcomes := o.pipeline.Process(ctx, now)
	o.logger.Info("invocation complete",
		zap.String("key", key), zap.Int("outcomes", len(outcomes)))
	return outcomes
}

// Start launches the periodic invocation loop. Ticks on Saturdays and Sundays
// are skipped; the market is closed.
func (o *Orchestrator) Start(interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
					continue
				}
				o.RunOnce(ctx, now)
			}
		}
	}()
	o.logger.Info("orchestrator started", zap.Duration("interval", interval))
}

// Stop halts the invocation loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.cancel()
	<-o.done
	o.running = false
	o.logger.Info("orchestrator stopped")
}
