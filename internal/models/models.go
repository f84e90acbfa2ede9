package models

import "time"

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

// Auction statuses. LISTED is the only non-terminal state.
const (
	AuctionStatusListed AuctionStatus = "LISTED"
	AuctionStatusSold   AuctionStatus = "SOLD"
	AuctionStatusUnsold AuctionStatus = "UNSOLD"
)

// StatusOrder is the listing order of statuses
var StatusOrder = []AuctionStatus{AuctionStatusListed, AuctionStatusSold, AuctionStatusUnsold}

// IsTerminal reports whether no further transition is possible
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusSold || s == AuctionStatusUnsold
}

// Precedence is the position of the status in StatusOrder. Unknown
// statuses sort last.
func (s AuctionStatus) Precedence() int {
	for i, st := range StatusOrder {
		if st == s {
			return i
		}
	}
	return len(StatusOrder)
}

// Auction is a timed listing of one item instance
type Auction struct {
	ID                int64         `db:"id" json:"id"`
	ItemInstID        int64         `db:"item_inst_id" json:"item_inst_id"`
	SellerID          int64         `db:"seller_id" json:"seller_id"`
	StartPrice        int64         `db:"start_price" json:"start_price"`
	BuyNowPrice       *int64        `db:"buy_now_price" json:"buy_now_price,omitempty"`
	CurrentHighestBid int64         `db:"current_highest_bid" json:"current_highest_bid"`
	LeadingBidderID   *int64        `db:"leading_bidder_id" json:"leading_bidder_id,omitempty"`
	EndTime           time.Time     `db:"end_time" json:"end_time"`
	LastBidTime       *time.Time    `db:"last_bid_time" json:"last_bid_time,omitempty"`
	Status            AuctionStatus `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// NewAuction builds a freshly listed auction. The highest bid starts at the
// start price and there is no leading bidder.
func NewAuction(itemInstID, sellerID, startPrice int64, buyNowPrice *int64, endTime, now time.Time) (*Auction, error) {
	if startPrice <= 0 {
		return nil, ErrInvalidPrice
	}
	if buyNowPrice != nil && *buyNowPrice < startPrice {
		return nil, ErrInvalidPrice
	}
	if !endTime.After(now) {
		return nil, ErrInvalidEndTime
	}

	return &Auction{
		ItemInstID:        itemInstID,
		SellerID:          sellerID,
		StartPrice:        startPrice,
		BuyNowPrice:       buyNowPrice,
		CurrentHighestBid: startPrice,
		EndTime:           endTime,
		Status:            AuctionStatusListed,
		CreatedAt:         now,
	}, nil
}

// EvaluateBid checks a bid attempt against the auction's current state.
// It returns nil when the bid may be accepted.
func (a *Auction) EvaluateBid(amount, bidderID int64, now time.Time) error {
	switch {
	case a.Status != AuctionStatusListed:
		return ErrAuctionClosed
	case !now.Before(a.EndTime):
		return ErrAuctionExpired
	case bidderID == a.SellerID:
		return ErrSelfBidForbidden
	case amount <= a.CurrentHighestBid:
		return ErrBidTooLow
	}
	return nil
}

// ReachesBuyNow reports whether amount meets the buy-now threshold
func (a *Auction) ReachesBuyNow(amount int64) bool {
	return a.BuyNowPrice != nil && amount >= *a.BuyNowPrice
}

// ApplyBid records an accepted bid. Callers must have checked EvaluateBid.
// It returns true when the bid settled the auction.
func (a *Auction) ApplyBid(amount, bidderID int64, now time.Time) bool {
	bidder := bidderID
	bidTime := now

	a.CurrentHighestBid = amount
	a.LeadingBidderID = &bidder
	a.LastBidTime = &bidTime

	if a.ReachesBuyNow(amount) {
		a.Status = AuctionStatusSold
		a.EndTime = now
		return true
	}
	return false
}

// HasLeader reports whether any bid has been accepted
func (a *Auction) HasLeader() bool {
	return a.LeadingBidderID != nil
}

// BidOutcome is the result of an accepted bid
type BidOutcome struct {
	Auction *Auction `json:"auction"`
	// Settled is true when the bid reached the buy-now price and won the auction.
	Settled bool `json:"settled"`
}

// AuctionView is an auction joined with display data for read paths
type AuctionView struct {
	Auction
	ItemName   string `json:"item_name"`
	SellerName string `json:"seller_name"`
	MyBid      *int64 `json:"my_bid,omitempty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
