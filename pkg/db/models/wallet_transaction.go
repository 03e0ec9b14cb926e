package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. RefID correlates holds,
// releases and payments back to the bid that caused them; the unique index on
// (type, ref_id) is what makes release processing idempotent under duplicate
// queue delivery.
type WalletTransaction struct {
	ID        uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID  uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null"`
	Amount    decimal.Decimal             `gorm:"column:amount;type:numeric(18,2);not null"`
	Type      enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type_enum;not null;uniqueIndex:ux_wallet_transactions_type_ref"`
	RefID     *uuid.UUID                  `gorm:"column:ref_id;type:uuid;uniqueIndex:ux_wallet_transactions_type_ref"`
	AuctionID *uuid.UUID                  `gorm:"column:auction_id;type:uuid"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
