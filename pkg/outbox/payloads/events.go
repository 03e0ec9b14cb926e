package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidOutbidEvent signals that a previously-leading bid was displaced and its
// hold must be released back to the outbid bidder.
type BidOutbidEvent struct {
	AuctionID       uuid.UUID       `json:"auction_id"`
	OutbidUserID    uuid.UUID       `json:"outbid_user_id"`
	OriginalBidID   uuid.UUID       `json:"original_bid_id"`
	AmountToRelease decimal.Decimal `json:"amount_to_release"`
}

// AuctionFinalizedEvent is emitted once an ended auction has settled.
type AuctionFinalizedEvent struct {
	AuctionID    uuid.UUID           `json:"auction_id"`
	SellerID     uuid.UUID           `json:"seller_id"`
	WinnerID     *uuid.UUID          `json:"winner_id,omitempty"`
	WinningBidID *uuid.UUID          `json:"winning_bid_id,omitempty"`
	FinalPrice   decimal.NullDecimal `json:"final_price"`
	TotalBids    int                 `json:"total_bids"`
	FinalizedAt  time.Time           `json:"finalized_at"`
}

// AuctionCancelledEvent reports a seller-initiated cancellation before any
// settlement happened.
type AuctionCancelledEvent struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}
