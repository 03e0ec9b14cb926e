package models

import (
	"time"

	"github.com/google/uuid"
)

// Item is the read-only slice of the catalog the auction core needs: identity,
// owner and a display title. Catalog maintenance lives outside this service.
type Item struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Title     string    `gorm:"column:title;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
