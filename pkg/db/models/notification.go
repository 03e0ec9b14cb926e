package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// Notification is a best-effort user-facing signal (outbid, won, sold).
// Writers treat failures as non-fatal; a lost notification never fails a
// financial operation.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type_enum;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Message   string                 `gorm:"column:message;not null"`
	AuctionID *uuid.UUID             `gorm:"column:auction_id;type:uuid"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
