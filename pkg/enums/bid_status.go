package enums

import "fmt"

// BidStatus tracks where a bid sits in the hold/release lifecycle.
type BidStatus string

const (
	BidStatusActive   BidStatus = "active"
	BidStatusOutbid   BidStatus = "outbid"
	BidStatusWinner   BidStatus = "winner"
	BidStatusReleased BidStatus = "released"
)

var validBidStatuses = []BidStatus{
	BidStatusActive,
	BidStatusOutbid,
	BidStatusWinner,
	BidStatusReleased,
}

// String implements fmt.Stringer.
func (s BidStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BidStatus.
func (s BidStatus) IsValid() bool {
	for _, candidate := range validBidStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	for _, candidate := range validBidStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid status %q", value)
}
