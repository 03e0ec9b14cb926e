package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/pkg/db/models"
)

// Repository is the read-only view of the item catalog the auction core needs.
type Repository interface {
	FindByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an item lookup bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
