package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"auction-service/internal/broker"
	"auction-service/internal/models"
	"auction-service/internal/store"
	"auction-service/internal/util"
)

// BidStrategy selects how the ledger serializes competing bids
type BidStrategy string

const (
	// BidStrategyCAS applies a bid with one conditional update
	BidStrategyCAS BidStrategy = "cas"
	// BidStrategyLock locks the auction row, validates, then writes
	BidStrategyLock BidStrategy = "lock"
)

// ParseBidStrategy parses a configured strategy name
func ParseBidStrategy(s string) (BidStrategy, error) {
	switch b := BidStrategy(s); b {
	case BidStrategyCAS, BidStrategyLock:
		return b, nil
	case "":
		return BidStrategyCAS, nil
	}
	return "", fmt.Errorf("unknown bid strategy %q", s)
}

// Cancellation reasons carried on AuctionCancelled events
const (
	CancelReasonAdmin         = "admin_request"
	CancelReasonSellerRemoved = "seller_removed"
)

// AuctionService handles auction mutations: listing, bidding and removal
type AuctionService struct {
	ledger         Ledger
	gate           *BidGate
	eventPublisher *broker.EventPublisher
	strategy       BidStrategy
	bidTimeout     time.Duration
	now            Clock
	logger         *zap.Logger
}

// AuctionOptions tunes an AuctionService. Zero values pick defaults.
type AuctionOptions struct {
	Strategy   BidStrategy
	BidTimeout time.Duration
	Clock      Clock
	Gate       *BidGate
}

// NewAuctionService creates a new auction service
func NewAuctionService(ledger Ledger, eventPublisher *broker.EventPublisher, opts AuctionOptions) *AuctionService {
	if opts.Strategy == "" {
		opts.Strategy = BidStrategyCAS
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if eventPublisher == nil {
		eventPublisher = broker.NewEventPublisher(nil)
	}

	return &AuctionService{
		ledger:         ledger,
		gate:           opts.Gate,
		eventPublisher: eventPublisher,
		strategy:       opts.Strategy,
		bidTimeout:     opts.BidTimeout,
		now:            opts.Clock,
		logger:         util.GetLogger(),
	}
}

// CreateAuctionRequest represents a request to list an item
type CreateAuctionRequest struct {
	ItemInstID  int64     `json:"item_inst_id" binding:"required,gt=0"`
	SellerID    int64     `json:"seller_id" binding:"required,gt=0"`
	StartPrice  int64     `json:"start_price"`
	BuyNowPrice *int64    `json:"buy_now_price,omitempty"`
	EndTime     time.Time `json:"end_time" binding:"required"`
}

// PlaceBidRequest represents a bid submitted over the API
type PlaceBidRequest struct {
	BidderID int64 `json:"bidder_id" binding:"required,gt=0"`
	Amount   int64 `json:"amount"`
}

// Create lists an item for auction
func (s *AuctionService) Create(ctx context.Context, req *CreateAuctionRequest) (*models.Auction, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.Create",
		attribute.Int64("seller_id", req.SellerID),
		attribute.Int64("item_inst_id", req.ItemInstID))
	defer span.End()

	now := s.now()
	a, err := models.NewAuction(req.ItemInstID, req.SellerID, req.StartPrice, req.BuyNowPrice,
		req.EndTime.UTC().Truncate(time.Microsecond), now)
	if err != nil {
		s.recordRejection("create", err)
		util.RecordError(span, err, true)
		return nil, err
	}

	if err := s.ledger.CreateAuction(ctx, a); err != nil {
		s.handleError(span, "create", err)
		return nil, err
	}

	util.AuctionsCreatedTotal.Inc()
	span.SetAttributes(attribute.Int64("auction_id", a.ID))
	s.logger.Info("Auction created",
		zap.Int64("auction_id", a.ID),
		zap.Int64("seller_id", a.SellerID),
		zap.Int64("item_inst_id", a.ItemInstID),
		zap.Time("end_time", a.EndTime))

	if err := s.eventPublisher.PublishAuctionCreated(ctx, a); err != nil {
		s.logger.Error("Failed to publish AuctionCreated event", zap.Int64("auction_id", a.ID), zap.Error(err))
	}

	return a, nil
}

// PlaceBid submits a bid. On success the outcome reports whether the bid
// reached the buy-now price and won the auction outright.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, amount, bidderID int64) (*models.BidOutcome, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.PlaceBid",
		attribute.Int64("auction_id", auctionID),
		attribute.Int64("bidder_id", bidderID),
		attribute.Int64("amount", amount),
		attribute.String("strategy", string(s.strategy)))
	defer span.End()

	start := time.Now()
	result := "accepted"
	defer func() {
		util.BidLatency.WithLabelValues(string(s.strategy), result).Observe(time.Since(start).Seconds())
	}()

	if s.bidTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.bidTimeout)
		defer cancel()
	}

	now := s.now()

	if err := s.gate.Precheck(ctx, auctionID, amount, bidderID, now); err != nil {
		result = "rejected"
		util.BidsRejectedTotal.WithLabelValues(models.RejectionReason(err)).Inc()
		util.RecordError(span, err, true)
		return nil, err
	}

	outcome, err := s.applyBid(ctx, auctionID, amount, bidderID, now)
	if err != nil {
		if models.IsRejection(err) {
			result = "rejected"
			util.BidsRejectedTotal.WithLabelValues(models.RejectionReason(err)).Inc()
			s.logger.Debug("Bid rejected",
				zap.Int64("auction_id", auctionID),
				zap.Int64("bidder_id", bidderID),
				zap.Int64("amount", amount),
				zap.String("reason", models.RejectionReason(err)))
			util.RecordError(span, err, true)
			return nil, err
		}
		result = "failed"
		s.handleError(span, "place_bid", err)
		return nil, err
	}

	util.BidsAcceptedTotal.Inc()
	span.SetAttributes(attribute.Bool("settled", outcome.Settled))
	s.logger.Info("Bid accepted",
		zap.Int64("auction_id", auctionID),
		zap.Int64("bidder_id", bidderID),
		zap.Int64("amount", amount),
		zap.Bool("settled", outcome.Settled))

	s.gate.RecordAccepted(ctx, outcome.Auction)

	if err := s.eventPublisher.PublishBidAccepted(ctx, outcome.Auction, bidderID, amount, now); err != nil {
		s.logger.Error("Failed to publish BidAccepted event", zap.Int64("auction_id", auctionID), zap.Error(err))
	}
	if outcome.Settled {
		util.AuctionsClosedTotal.WithLabelValues(string(models.AuctionStatusSold), "buy_now").Inc()
		if err := s.eventPublisher.PublishAuctionSold(ctx, outcome.Auction, bidderID, now); err != nil {
			s.logger.Error("Failed to publish AuctionSold event", zap.Int64("auction_id", auctionID), zap.Error(err))
		}
	}

	return outcome, nil
}

// applyBid runs the configured strategy, retrying once on a transient
// storage conflict. Rejections are final and never retried.
func (s *AuctionService) applyBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error) {
	place := s.ledger.PlaceBid
	if s.strategy == BidStrategyLock {
		place = s.ledger.PlaceBidLocked
	}

	outcome, err := place(ctx, auctionID, amount, bidderID, now)
	if err != nil && store.IsTransient(err) && ctx.Err() == nil {
		util.BidRetriesTotal.Inc()
		s.logger.Warn("Transient conflict placing bid, retrying",
			zap.Int64("auction_id", auctionID),
			zap.Error(err))
		outcome, err = place(ctx, auctionID, amount, bidderID, now)
	}
	if err != nil && !models.IsRejection(err) && !errors.Is(err, models.ErrStorageFailure) {
		err = fmt.Errorf("%w: place bid: %w", models.ErrStorageFailure, err)
	}
	return outcome, err
}

// Cancel removes a listed auction. Terminal auctions stay as history.
func (s *AuctionService) Cancel(ctx context.Context, auctionID int64) (*models.Auction, error) {
	return s.cancel(ctx, auctionID, CancelReasonAdmin)
}

func (s *AuctionService) cancel(ctx context.Context, auctionID int64, reason string) (*models.Auction, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.Cancel",
		attribute.Int64("auction_id", auctionID),
		attribute.String("reason", reason))
	defer span.End()

	a, err := s.ledger.DeleteListedAuction(ctx, auctionID)
	if err != nil {
		s.handleError(span, "cancel", err)
		return nil, err
	}

	util.AuctionsCancelledTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Auction cancelled",
		zap.Int64("auction_id", auctionID),
		zap.Int64("seller_id", a.SellerID),
		zap.String("reason", reason))

	s.gate.RecordRemoved(ctx, auctionID)

	if err := s.eventPublisher.PublishAuctionCancelled(ctx, a, reason, s.now()); err != nil {
		s.logger.Error("Failed to publish AuctionCancelled event", zap.Int64("auction_id", auctionID), zap.Error(err))
	}
	return a, nil
}

// CancelBySeller removes every listed auction of a seller, one transaction
// each. An auction that closes or disappears concurrently is skipped.
func (s *AuctionService) CancelBySeller(ctx context.Context, sellerID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CancelBySeller", attribute.Int64("seller_id", sellerID))
	defer span.End()

	ids, err := s.ledger.ListListedIDsBySeller(ctx, sellerID)
	if err != nil {
		s.handleError(span, "cancel_by_seller", err)
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		if _, err := s.cancel(ctx, id, CancelReasonSellerRemoved); err != nil {
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrAuctionClosed) {
				continue
			}
			return cancelled, fmt.Errorf("failed to cancel auction %d: %w", id, err)
		}
		cancelled++
	}

	span.SetAttributes(attribute.Int("cancelled", cancelled))
	return cancelled, nil
}

func (s *AuctionService) recordRejection(op string, err error) {
	util.AuctionRejectionsTotal.WithLabelValues(op, models.RejectionReason(err)).Inc()
}

// handleError records a rejection or a storage failure on metrics, logs
// and the span.
func (s *AuctionService) handleError(span trace.Span, op string, err error) {
	rejection := models.IsRejection(err)
	util.RecordError(span, err, rejection)

	if rejection {
		s.recordRejection(op, err)
		return
	}

	util.StorageFailuresTotal.WithLabelValues(op).Inc()
	s.logger.Error("Auction operation failed", zap.String("operation", op), zap.Error(err))
}
