package service

import (
	"context"

	"go.uber.org/zap"

	"auction-service/internal/clients"
	"auction-service/internal/models"
	"auction-service/internal/util"
)

// QueryService serves read paths for the presentation layer. Display names
// come from the directory; a failed lookup leaves the name empty.
type QueryService struct {
	ledger    Ledger
	directory clients.DisplayDirectory
	logger    *zap.Logger
}

// NewQueryService creates a new query service. A nil directory resolves no names.
func NewQueryService(ledger Ledger, directory clients.DisplayDirectory) *QueryService {
	if directory == nil {
		directory = clients.NopDirectory{}
	}
	return &QueryService{
		ledger:    ledger,
		directory: directory,
		logger:    util.GetLogger(),
	}
}

// GetAuction returns one auction with display data
func (q *QueryService) GetAuction(ctx context.Context, auctionID int64) (*models.AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetAuction")
	defer span.End()

	a, err := q.ledger.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	views := q.decorate(ctx, []models.Auction{*a})
	return &views[0], nil
}

// ListActive returns every auction, listed first, then sold, then unsold
func (q *QueryService) ListActive(ctx context.Context) ([]models.AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.ListActive")
	defer span.End()

	auctions, err := q.ledger.ListAuctions(ctx)
	if err != nil {
		return nil, err
	}
	return q.decorate(ctx, auctions), nil
}

// ListBySeller returns a seller's auctions in any status
func (q *QueryService) ListBySeller(ctx context.Context, sellerID int64) ([]models.AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.ListBySeller")
	defer span.End()

	auctions, err := q.ledger.ListAuctionsBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return q.decorate(ctx, auctions), nil
}

// ListByBidder returns the auctions the bidder currently leads, with the
// bidder's standing bid.
func (q *QueryService) ListByBidder(ctx context.Context, bidderID int64) ([]models.AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.ListByBidder")
	defer span.End()

	auctions, err := q.ledger.ListAuctionsByBidder(ctx, bidderID)
	if err != nil {
		return nil, err
	}

	views := q.decorate(ctx, auctions)
	for i := range views {
		myBid := views[i].CurrentHighestBid
		views[i].MyBid = &myBid
	}
	return views, nil
}

func (q *QueryService) decorate(ctx context.Context, auctions []models.Auction) []models.AuctionView {
	items := make(map[int64]string)
	sellers := make(map[int64]string)

	views := make([]models.AuctionView, 0, len(auctions))
	for _, a := range auctions {
		itemName, ok := items[a.ItemInstID]
		if !ok {
			itemName = q.lookup(ctx, "item", a.ItemInstID, q.directory.ItemName)
			items[a.ItemInstID] = itemName
		}

		sellerName, ok := sellers[a.SellerID]
		if !ok {
			sellerName = q.lookup(ctx, "character", a.SellerID, q.directory.CharacterName)
			sellers[a.SellerID] = sellerName
		}

		views = append(views, models.AuctionView{
			Auction:    a,
			ItemName:   itemName,
			SellerName: sellerName,
		})
	}
	return views
}

func (q *QueryService) lookup(ctx context.Context, kind string, id int64, fn func(context.Context, int64) (string, error)) string {
	name, err := fn(ctx, id)
	if err != nil {
		q.logger.Warn("Display name lookup failed",
			zap.String("kind", kind),
			zap.Int64("id", id),
			zap.Error(err))
		return ""
	}
	return name
}
