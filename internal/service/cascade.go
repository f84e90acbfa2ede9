package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"auction-service/internal/models"
	"auction-service/internal/util"
)

// SellerCascade removes the listed auctions of characters deleted by the
// character subsystem.
type SellerCascade struct {
	ledger   Ledger
	auctions *AuctionService
	now      Clock
	logger   *zap.Logger
}

// NewSellerCascade creates a new seller cascade handler
func NewSellerCascade(ledger Ledger, auctions *AuctionService, clock Clock) *SellerCascade {
	if clock == nil {
		clock = SystemClock
	}
	return &SellerCascade{
		ledger:   ledger,
		auctions: auctions,
		now:      clock,
		logger:   util.GetLogger(),
	}
}

// HandleSellerRemoved cancels every listed auction of the removed seller.
// A returned error leaves the event unmarked so the consumer retries it.
func (sc *SellerCascade) HandleSellerRemoved(ctx context.Context, event *models.SellerRemovedEvent) error {
	ctx, span := util.StartSpan(ctx, "SellerCascade.HandleSellerRemoved",
		attribute.String("event_id", event.EventID),
		attribute.Int64("seller_id", event.SellerID))
	defer span.End()

	processed, err := sc.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		sc.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	sc.logger.Info("Handling seller removal", zap.Int64("seller_id", event.SellerID))

	cancelled, err := sc.auctions.CancelBySeller(ctx, event.SellerID)
	if err != nil {
		util.RecordError(span, err, false)
		return fmt.Errorf("failed to cancel seller auctions: %w", err)
	}

	if err := sc.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType, sc.now()); err != nil {
		sc.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	sc.logger.Info("Seller auctions cancelled",
		zap.Int64("seller_id", event.SellerID),
		zap.Int("count", cancelled))
	return nil
}
