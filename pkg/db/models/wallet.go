package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// Wallet carries a user's spendable balance plus the aggregate of active bid
// holds. Balance and HeldAmount are mutated only through the wallet ledger,
// always alongside a WalletTransaction row in the same transaction.
type Wallet struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_user"`
	Balance    decimal.Decimal    `gorm:"column:balance;type:numeric(18,2);not null;default:0"`
	HeldAmount decimal.Decimal    `gorm:"column:held_amount;type:numeric(18,2);not null;default:0"`
	Currency   enums.Currency     `gorm:"column:currency;type:currency_enum;not null;default:'VND'"`
	Status     enums.WalletStatus `gorm:"column:status;type:wallet_status_enum;not null;default:'active'"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
