package models

import "errors"

// Rejections are expected outcomes the caller presents to the user.
// ErrStorageFailure is the only error that means the system failed.
var (
	ErrNotFound          = errors.New("auction not found")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidEndTime    = errors.New("end time must be in the future")
	ErrItemAlreadyListed = errors.New("item instance is already listed")
	ErrAuctionClosed     = errors.New("auction is closed")
	ErrAuctionExpired    = errors.New("auction has expired")
	ErrBidTooLow         = errors.New("bid must be higher than the current highest bid")
	ErrSelfBidForbidden  = errors.New("seller cannot bid on own auction")
	ErrStorageFailure    = errors.New("storage failure")
)

// IsRejection reports whether err is a user-facing rejection rather than a failure
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidEndTime),
		errors.Is(err, ErrItemAlreadyListed),
		errors.Is(err, ErrAuctionClosed),
		errors.Is(err, ErrAuctionExpired),
		errors.Is(err, ErrBidTooLow),
		errors.Is(err, ErrSelfBidForbidden):
		return true
	}
	return false
}

// RejectionReason returns a short label for metrics and API payloads
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrInvalidEndTime):
		return "invalid_end_time"
	case errors.Is(err, ErrItemAlreadyListed):
		return "item_already_listed"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrAuctionExpired):
		return "auction_expired"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrSelfBidForbidden):
		return "self_bid_forbidden"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	}
	return "unknown"
}
