package enums

import "fmt"

// AuctionStatus maps to the auction_status_enum enum in Postgres.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusOngoing   AuctionStatus = "ongoing"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusFinalized AuctionStatus = "finalized"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

var validAuctionStatuses = []AuctionStatus{
	AuctionStatusScheduled,
	AuctionStatusOngoing,
	AuctionStatusEnded,
	AuctionStatusFinalized,
	AuctionStatusCancelled,
}

// String implements fmt.Stringer.
func (s AuctionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AuctionStatus.
func (s AuctionStatus) IsValid() bool {
	for _, candidate := range validAuctionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusFinalized || s == AuctionStatusCancelled
}

// ParseAuctionStatus converts raw input into an AuctionStatus.
func ParseAuctionStatus(value string) (AuctionStatus, error) {
	for _, candidate := range validAuctionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid auction status %q", value)
}
