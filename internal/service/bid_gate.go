package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"auction-service/internal/models"
	"auction-service/internal/redisclient"
	"auction-service/internal/util"
)

// GateStore is the cache the bid gate reads and maintains
type GateStore interface {
	CheckBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (redisclient.GateVerdict, error)
	RaiseFloor(ctx context.Context, auctionID, amount, sellerID int64, endTime time.Time) error
	MarkClosed(ctx context.Context, auctionID int64) error
	Forget(ctx context.Context, auctionID int64) error
}

// BidGate rejects bids the ledger would certainly reject, using cached
// committed state. Any cache failure falls back to the ledger; the gate
// never accepts a bid on its own.
type BidGate struct {
	cache  GateStore
	logger *zap.Logger
}

// NewBidGate creates a bid gate. A nil cache disables it.
func NewBidGate(cache GateStore) *BidGate {
	return &BidGate{
		cache:  cache,
		logger: util.GetLogger(),
	}
}

func (g *BidGate) enabled() bool {
	return g != nil && g.cache != nil
}

// Precheck returns the rejection the cache can prove, or nil
func (g *BidGate) Precheck(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) error {
	if !g.enabled() {
		return nil
	}

	verdict, err := g.cache.CheckBid(ctx, auctionID, amount, bidderID, now)
	if err != nil {
		g.logger.Warn("Bid gate unavailable, falling back to ledger",
			zap.Int64("auction_id", auctionID),
			zap.Error(err))
		return nil
	}

	var reason error
	switch verdict {
	case redisclient.GateClosed:
		reason = models.ErrAuctionClosed
	case redisclient.GateExpired:
		reason = models.ErrAuctionExpired
	case redisclient.GateSelfBid:
		reason = models.ErrSelfBidForbidden
	case redisclient.GateTooLow:
		reason = models.ErrBidTooLow
	default:
		return nil
	}

	util.BidGateShortCircuitTotal.Inc()
	return reason
}

// RecordAccepted raises the cached floor after a committed bid
func (g *BidGate) RecordAccepted(ctx context.Context, a *models.Auction) {
	if !g.enabled() {
		return
	}

	if a.Status.IsTerminal() {
		g.RecordClosed(ctx, a.ID)
		return
	}

	if err := g.cache.RaiseFloor(ctx, a.ID, a.CurrentHighestBid, a.SellerID, a.EndTime); err != nil {
		g.logger.Warn("Failed to raise bid floor",
			zap.Int64("auction_id", a.ID),
			zap.Error(err))
	}
}

// RecordClosed marks a terminal auction in the cache
func (g *BidGate) RecordClosed(ctx context.Context, auctionID int64) {
	if !g.enabled() {
		return
	}

	if err := g.cache.MarkClosed(ctx, auctionID); err != nil {
		g.logger.Warn("Failed to mark auction closed in bid gate",
			zap.Int64("auction_id", auctionID),
			zap.Error(err))
	}
}

// RecordRemoved drops cached state of a deleted auction
func (g *BidGate) RecordRemoved(ctx context.Context, auctionID int64) {
	if !g.enabled() {
		return
	}

	if err := g.cache.Forget(ctx, auctionID); err != nil {
		g.logger.Warn("Failed to forget auction in bid gate",
			zap.Int64("auction_id", auctionID),
			zap.Error(err))
	}
}
