package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// Auction is a timed sale of a single catalog item. Rows are never deleted;
// an auction leaves the system only through the finalized or cancelled status.
type Auction struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID        uuid.UUID           `gorm:"column:item_id;type:uuid;not null"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	StartingPrice decimal.Decimal     `gorm:"column:starting_price;type:numeric(18,2);not null"`
	CurrentPrice  decimal.NullDecimal `gorm:"column:current_price;type:numeric(18,2)"`
	StepPrice     decimal.Decimal     `gorm:"column:step_price;type:numeric(18,2);not null;default:0"`
	TotalBids     int                 `gorm:"column:total_bids;not null;default:0"`
	StartTime     time.Time           `gorm:"column:start_time;not null"`
	EndTime       time.Time           `gorm:"column:end_time;not null"`
	Status        enums.AuctionStatus `gorm:"column:status;type:auction_status_enum;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Price returns the highest accepted bid amount, or the starting price when no
// bid has been accepted yet.
func (a Auction) Price() decimal.Decimal {
	if a.CurrentPrice.Valid {
		return a.CurrentPrice.Decimal
	}
	return a.StartingPrice
}
