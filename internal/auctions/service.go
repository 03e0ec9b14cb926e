package auctions

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/internal/catalog"
	"github.com/evtrade/auctioncore/internal/wallet"
	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
	"github.com/evtrade/auctioncore/pkg/outbox"
	"github.com/evtrade/auctioncore/pkg/outbox/payloads"
)

var validate = validator.New()

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type holdReleaser interface {
	ReleaseTx(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) (bool, error)
}

// CreateAuctionInput carries the seller's listing request.
type CreateAuctionInput struct {
	ItemID        uuid.UUID       `json:"item_id" validate:"required"`
	SellerID      uuid.UUID       `json:"seller_id" validate:"required"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	StepPrice     decimal.Decimal `json:"step_price"`
	StartTime     time.Time       `json:"start_time" validate:"required"`
	EndTime       time.Time       `json:"end_time" validate:"required"`
}

// Service owns the auction lifecycle outside of bidding and settlement.
type Service interface {
	Create(ctx context.Context, input CreateAuctionInput) (*models.Auction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params ListParams) ([]models.Auction, string, error)
	BidderHistory(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error)
	Cancel(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
}

// ServiceParams wire the auction lifecycle service.
type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Items  catalog.Repository
	Ledger holdReleaser
	Outbox outboxEmitter
}

type service struct {
	db     txRunner
	repo   Repository
	items  catalog.Repository
	ledger holdReleaser
	outbox outboxEmitter
	now    func() time.Time
}

// NewService builds the auction lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("item catalog required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		db:     params.DB,
		repo:   params.Repo,
		items:  params.Items,
		ledger: params.Ledger,
		outbox: params.Outbox,
		now:    time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateAuctionInput) (*models.Auction, error) {
	if err := validate.Struct(input); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid auction input", err)
	}
	if input.StartingPrice.IsNegative() {
		return nil, errors.New(errors.CodeValidation, "starting price must not be negative")
	}
	if input.StepPrice.IsNegative() {
		return nil, errors.New(errors.CodeValidation, "step price must not be negative")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, errors.New(errors.CodeValidation, "end time must be after start time")
	}
	now := s.now().UTC()
	if !input.EndTime.After(now) {
		return nil, errors.New(errors.CodeValidation, "end time must be in the future")
	}

	item, err := s.items.FindByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New(errors.CodeNotFound, "item not found")
	}
	if item.SellerID != input.SellerID {
		return nil, errors.New(errors.CodeValidation, "item does not belong to seller")
	}

	open, err := s.repo.FindOpenByItemID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, errors.New(errors.CodeStateConflict, "item is already on auction")
	}

	status := enums.AuctionStatusScheduled
	if !input.StartTime.After(now) {
		status = enums.AuctionStatusOngoing
	}
	auction := &models.Auction{
		ItemID:        input.ItemID,
		SellerID:      input.SellerID,
		StartingPrice: input.StartingPrice,
		StepPrice:     input.StepPrice,
		StartTime:     input.StartTime.UTC(),
		EndTime:       input.EndTime.UTC(),
		Status:        status,
	}
	if err := s.repo.Create(ctx, auction); err != nil {
		return nil, err
	}
	return auction, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	if id == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "auction id is required")
	}
	auction, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, errors.New(errors.CodeNotFound, "auction not found")
	}
	return auction, nil
}

// GetOpenByItemID returns the item's non-terminal auction, if one exists.
func (s *service) GetOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Auction, error) {
	if itemID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "item id is required")
	}
	auction, err := s.repo.FindOpenByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, errors.New(errors.CodeNotFound, "no open auction for item")
	}
	return auction, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.Auction, string, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, "", errors.Newf(errors.CodeValidation, "invalid auction status %q", *params.Status)
	}
	return s.repo.List(ctx, params)
}

func (s *service) BidderHistory(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error) {
	if auctionID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "auction id is required")
	}
	return s.repo.BidHistory(ctx, auctionID, limit)
}

// Cancel is the out-of-band admin transition. Every hold still outstanding on
// the auction is released in the same transaction, winner included, since a
// cancelled auction settles nothing.
func (s *service) Cancel(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	if auctionID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "auction id is required")
	}
	var cancelled *models.Auction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction == nil {
			return errors.New(errors.CodeNotFound, "auction not found")
		}
		switch auction.Status {
		case enums.AuctionStatusScheduled, enums.AuctionStatusOngoing:
		default:
			return errors.Newf(errors.CodeStateConflict, "auction is %s", auction.Status)
		}

		held, err := repo.BidsByStatus(ctx, auctionID, enums.BidStatusActive, enums.BidStatusOutbid)
		if err != nil {
			return err
		}
		for _, bid := range held {
			if _, err := s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseInput{
				UserID:        bid.UserID,
				OriginalBidID: bid.ID,
				AuctionID:     auctionID,
				Amount:        bid.Amount,
			}); err != nil {
				return err
			}
			if err := repo.UpdateBidStatus(ctx, bid.ID, enums.BidStatusReleased); err != nil {
				return err
			}
		}

		moved, err := repo.MarkStatus(ctx, auctionID, auction.Status, enums.AuctionStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return errors.New(errors.CodeStateConflict, "auction status changed concurrently")
		}

		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionCancelled,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auctionID,
			Version:       1,
			Data: payloads.AuctionCancelledEvent{
				AuctionID:   auctionID,
				SellerID:    auction.SellerID,
				CancelledAt: s.now().UTC(),
			},
		}); err != nil {
			return err
		}

		auction.Status = enums.AuctionStatusCancelled
		cancelled = auction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}
