package models

import "fmt"

// ExpiryPolicy decides the terminal status of a listed auction whose end
// time has passed. It is the only place that decision is made.
type ExpiryPolicy string

const (
	// ExpiryPolicyUnsold demotes every expired auction to UNSOLD, bids or not.
	ExpiryPolicyUnsold ExpiryPolicy = "unsold"
	// ExpiryPolicySettle sells expired auctions that have a leading bidder.
	ExpiryPolicySettle ExpiryPolicy = "settle"
)

// ParseExpiryPolicy parses a configured policy name
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch p := ExpiryPolicy(s); p {
	case ExpiryPolicyUnsold, ExpiryPolicySettle:
		return p, nil
	case "":
		return ExpiryPolicyUnsold, nil
	}
	return "", fmt.Errorf("unknown expiry policy %q", s)
}

// Resolve returns the terminal status for an expired auction
func (p ExpiryPolicy) Resolve(hasLeader bool) AuctionStatus {
	if p == ExpiryPolicySettle && hasLeader {
		return AuctionStatusSold
	}
	return AuctionStatusUnsold
}
