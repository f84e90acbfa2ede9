package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"auction-service/internal/broker"
	"auction-service/internal/service"
	"auction-service/internal/util"
)

// CascadeWorker consumes character events and removes the listings of
// deleted sellers
type CascadeWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCascadeWorker creates a new cascade worker
func NewCascadeWorker(consumer *broker.Consumer, cascade *service.SellerCascade) *CascadeWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSellerRemoved(cascade.HandleSellerRemoved)

	return &CascadeWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *CascadeWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cascade worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CascadeWorker) Stop() error {
	w.logger.Info("Stopping cascade worker")
	return w.consumer.Close()
}

// Runner runs one reconciliation pass
type Runner interface {
	RunOnce(ctx context.Context) (int, error)
}

// Locker is a distributed lock shared by every service instance
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const reconcileLockKey = "auction-reconciler"

// ReconcilerWorker runs the reconciler on a fixed interval. With a locker,
// only the instance holding the lock runs a given tick; without one every
// instance runs and the conditional close keeps them from conflicting.
type ReconcilerWorker struct {
	runner   Runner
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcilerWorker creates a new reconciler worker. locker may be nil.
func NewReconcilerWorker(runner Runner, locker Locker, interval time.Duration) *ReconcilerWorker {
	return &ReconcilerWorker{
		runner:   runner,
		locker:   locker,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs a pass immediately and then on every tick until ctx is done
func (w *ReconcilerWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciler worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Tick(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reconciler worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one pass if this instance may. It reports whether a pass ran.
func (w *ReconcilerWorker) Tick(ctx context.Context) bool {
	if w.locker != nil {
		acquired, err := w.locker.AcquireLock(ctx, reconcileLockKey, w.interval)
		if err != nil {
			// without the lock store every instance runs; closes are conditional
			w.logger.Warn("Failed to acquire reconciler lock, running anyway", zap.Error(err))
		} else if !acquired {
			w.logger.Debug("Reconciler lock held elsewhere, skipping")
			return false
		} else {
			defer func() {
				if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), reconcileLockKey); err != nil {
					w.logger.Warn("Failed to release reconciler lock", zap.Error(err))
				}
			}()
		}
	}

	if _, err := w.runner.RunOnce(ctx); err != nil {
		w.logger.Error("Reconcile run failed", zap.Error(err))
	}
	return true
}
