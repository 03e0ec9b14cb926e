package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// Bid is an append-only audit record of a single offer on an auction. Amount,
// bidder and time are immutable once written; only Status moves through the
// active/outbid/winner/released lifecycle.
type Bid struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID uuid.UUID       `gorm:"column:auction_id;type:uuid;not null"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Status    enums.BidStatus `gorm:"column:status;type:bid_status_enum;not null"`
	BidTime   time.Time       `gorm:"column:bid_time;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
