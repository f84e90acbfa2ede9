package service

import (
	"context"
	"time"

	"auction-service/internal/models"
)

// Ledger is the durable auction store the services mutate through
type Ledger interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error)
	ListAuctions(ctx context.Context) ([]models.Auction, error)
	ListAuctionsBySeller(ctx context.Context, sellerID int64) ([]models.Auction, error)
	ListAuctionsByBidder(ctx context.Context, bidderID int64) ([]models.Auction, error)
	ListListedIDsBySeller(ctx context.Context, sellerID int64) ([]int64, error)

	PlaceBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error)
	PlaceBidLocked(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error)
	DeleteListedAuction(ctx context.Context, id int64) (*models.Auction, error)

	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
	CloseExpiredAuction(ctx context.Context, id int64, now time.Time, policy models.ExpiryPolicy) (*models.Auction, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string, now time.Time) error
}
