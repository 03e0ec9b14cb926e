package auctions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/pagination"
)

// ListParams filter the auction listing.
type ListParams struct {
	Status *enums.AuctionStatus
	Page   pagination.Params
}

// Repository manages persistence for auctions and their bids.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, auction *models.Auction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// FindForUpdate locks the auction row; this is the per-auction
	// serialization point every bid and the finalizer go through.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	FindOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params ListParams) ([]models.Auction, string, error)
	DueToStart(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	ExpiredOngoing(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.AuctionStatus) (bool, error)
	BumpPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error

	CreateBid(ctx context.Context, bid *models.Bid) error
	HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	BidsByStatus(ctx context.Context, auctionID uuid.UUID, statuses ...enums.BidStatus) ([]models.Bid, error)
	BidHistory(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error)
	UpdateBidStatus(ctx context.Context, bidID uuid.UUID, status enums.BidStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an auction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, auction *models.Auction) error {
	if auction.ID == uuid.Nil {
		auction.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(auction).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return r.find(ctx, id, false)
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return r.find(ctx, id, true)
}

func (r *repository) find(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Auction, error) {
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var auction models.Auction
	if err := query.Where("id = ?", id).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auction, nil
}

// FindOpenByItemID returns a non-terminal auction for the item, if any.
func (r *repository) FindOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Where("status IN ?", []enums.AuctionStatus{
			enums.AuctionStatusScheduled,
			enums.AuctionStatusOngoing,
			enums.AuctionStatusEnded,
		}).
		First(&auction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auction, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.Auction, string, error) {
	limit := pagination.NormalizeLimit(params.Page.Limit)
	query := r.db.WithContext(ctx).Model(&models.Auction{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	cursor, err := pagination.ParseCursor(params.Page.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Auction
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Page.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (r *repository) DueToStart(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.AuctionStatusScheduled).
		Where("start_time <= ?", now).
		Order("start_time ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ExpiredOngoing(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.AuctionStatusOngoing).
		Where("end_time < ?", now).
		Order("end_time ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkStatus performs a compare-and-swap on the status column. The false
// return means another worker already moved the row.
func (r *repository) MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.AuctionStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) BumpPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_price": price,
			"total_bids":    gorm.Expr("total_bids + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repository) CreateBid(ctx context.Context, bid *models.Bid) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order("bid_time ASC").
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

func (r *repository) BidsByStatus(ctx context.Context, auctionID uuid.UUID, statuses ...enums.BidStatus) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Where("status IN ?", statuses).
		Order("amount DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) BidHistory(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("bid_time DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateBidStatus(ctx context.Context, bidID uuid.UUID, status enums.BidStatus) error {
	return r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ?", bidID).
		Update("status", status).Error
}
