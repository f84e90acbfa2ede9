package models

import "time"

// Event types
const (
	EventTypeAuctionCreated   = "AUCTION_CREATED"
	EventTypeBidAccepted      = "BID_ACCEPTED"
	EventTypeAuctionSold      = "AUCTION_SOLD"
	EventTypeAuctionClosed    = "AUCTION_CLOSED"
	EventTypeAuctionCancelled = "AUCTION_CANCELLED"
	EventTypeSellerRemoved    = "SELLER_REMOVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta returns the common envelope fields
func (e BaseEvent) Meta() BaseEvent {
	return e
}

// Event is any published or consumed domain event
type Event interface {
	Meta() BaseEvent
}

// AuctionCreatedEvent published when an auction is listed
type AuctionCreatedEvent struct {
	BaseEvent
	AuctionID   int64     `json:"auction_id"`
	ItemInstID  int64     `json:"item_inst_id"`
	SellerID    int64     `json:"seller_id"`
	StartPrice  int64     `json:"start_price"`
	BuyNowPrice *int64    `json:"buy_now_price,omitempty"`
	EndTime     time.Time `json:"end_time"`
}

// BidAcceptedEvent published for every accepted bid
type BidAcceptedEvent struct {
	BaseEvent
	AuctionID int64     `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	BidTime   time.Time `json:"bid_time"`
}

// AuctionSoldEvent published when a bid reaches the buy-now price
type AuctionSoldEvent struct {
	BaseEvent
	AuctionID int64     `json:"auction_id"`
	BuyerID   int64     `json:"buyer_id"`
	Price     int64     `json:"price"`
	SoldAt    time.Time `json:"sold_at"`
}

// AuctionClosedEvent published by the reconciler for expired auctions
type AuctionClosedEvent struct {
	BaseEvent
	AuctionID       int64         `json:"auction_id"`
	Status          AuctionStatus `json:"status"`
	HighestBid      int64         `json:"highest_bid"`
	LeadingBidderID *int64        `json:"leading_bidder_id,omitempty"`
	ClosedAt        time.Time     `json:"closed_at"`
}

// AuctionCancelledEvent published when a listed auction is removed
type AuctionCancelledEvent struct {
	BaseEvent
	AuctionID int64  `json:"auction_id"`
	SellerID  int64  `json:"seller_id"`
	Reason    string `json:"reason"`
}

// SellerRemovedEvent is consumed from the character subsystem
type SellerRemovedEvent struct {
	BaseEvent
	SellerID int64 `json:"seller_id"`
}
