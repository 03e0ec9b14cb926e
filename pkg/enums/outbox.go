package enums

import "fmt"

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventBidOutbid        OutboxEventType = "auction.bid.outbid"
	EventAuctionFinalized OutboxEventType = "auction.finalized"
	EventAuctionCancelled OutboxEventType = "auction.cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBidOutbid,
	EventAuctionFinalized,
	EventAuctionCancelled,
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAuction OutboxAggregateType = "auction"
	AggregateBid     OutboxAggregateType = "bid"
	AggregateWallet  OutboxAggregateType = "wallet"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregateAuction,
	AggregateBid,
	AggregateWallet,
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
