package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"auction-service/internal/broker"
	"auction-service/internal/models"
	"auction-service/internal/util"
)

const defaultReconcileBatch = 100

// Reconciler closes listed auctions whose end time has passed. Each close
// is one conditional statement per auction, so overlapping runs and
// concurrent bids never close an auction twice.
type Reconciler struct {
	ledger         Ledger
	gate           *BidGate
	eventPublisher *broker.EventPublisher
	policy         models.ExpiryPolicy
	batchSize      int
	now            Clock
	logger         *zap.Logger
}

// ReconcilerOptions tunes a Reconciler. Zero values pick defaults.
type ReconcilerOptions struct {
	Policy    models.ExpiryPolicy
	BatchSize int
	Clock     Clock
	Gate      *BidGate
}

// NewReconciler creates a new reconciler
func NewReconciler(ledger Ledger, eventPublisher *broker.EventPublisher, opts ReconcilerOptions) *Reconciler {
	if opts.Policy == "" {
		opts.Policy = models.ExpiryPolicyUnsold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultReconcileBatch
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if eventPublisher == nil {
		eventPublisher = broker.NewEventPublisher(nil)
	}

	return &Reconciler{
		ledger:         ledger,
		gate:           opts.Gate,
		eventPublisher: eventPublisher,
		policy:         opts.Policy,
		batchSize:      opts.BatchSize,
		now:            opts.Clock,
		logger:         util.GetLogger(),
	}
}

// Policy returns the expiry policy in effect
func (r *Reconciler) Policy() models.ExpiryPolicy {
	return r.policy
}

// RunOnce closes every auction expired as of now and returns how many this
// run transitioned. Auctions closed concurrently by another run are not
// counted. A failure on one auction does not stop the others.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.RunOnce",
		attribute.String("policy", string(r.policy)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	now := r.now()
	closed := 0
	var errs []error

	for {
		ids, err := r.ledger.ListExpiredIDs(ctx, now, r.batchSize)
		if err != nil {
			errs = append(errs, err)
			break
		}

		progressed := 0
		for _, id := range ids {
			a, err := r.ledger.CloseExpiredAuction(ctx, id, now, r.policy)
			if err != nil {
				r.logger.Error("Failed to close expired auction",
					zap.Int64("auction_id", id),
					zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if a == nil {
				continue
			}

			closed++
			progressed++
			r.afterClose(ctx, a, now)
		}

		// a short batch is the last one; no progress means the rest
		// keeps failing and waits for the next run
		if len(ids) < r.batchSize || progressed == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("closed", closed))

	err := errors.Join(errs...)
	if err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err, false)
	} else {
		util.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	}

	if closed > 0 {
		r.logger.Info("Expired auctions closed",
			zap.Int("count", closed),
			zap.String("policy", string(r.policy)))
	}
	return closed, err
}

func (r *Reconciler) afterClose(ctx context.Context, a *models.Auction, now time.Time) {
	util.AuctionsClosedTotal.WithLabelValues(string(a.Status), "expiry").Inc()
	r.logger.Debug("Auction closed",
		zap.Int64("auction_id", a.ID),
		zap.String("status", string(a.Status)))

	r.gate.RecordClosed(ctx, a.ID)

	if err := r.eventPublisher.PublishAuctionClosed(ctx, a, now); err != nil {
		r.logger.Error("Failed to publish AuctionClosed event",
			zap.Int64("auction_id", a.ID),
			zap.Error(err))
	}
}
