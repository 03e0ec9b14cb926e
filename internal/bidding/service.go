package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/internal/auctions"
	"github.com/evtrade/auctioncore/internal/notifications"
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

type holdLedger interface {
	HoldTx(ctx context.Context, tx *gorm.DB, input wallet.HoldInput) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) (bool, error)
}

// PlaceBidInput carries one bid attempt.
type PlaceBidInput struct {
	AuctionID uuid.UUID       `json:"auction_id" validate:"required"`
	UserID    uuid.UUID       `json:"user_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// Service accepts bids against open auctions.
type Service interface {
	PlaceBid(ctx context.Context, input PlaceBidInput) (*models.Bid, error)
}

// ServiceParams wire the bid placement service.
type ServiceParams struct {
	DB       txRunner
	Repo     auctions.Repository
	Ledger   holdLedger
	Outbox   outboxEmitter
	Notifier notifications.Notifier
}

type service struct {
	db       txRunner
	repo     auctions.Repository
	ledger   holdLedger
	outbox   outboxEmitter
	notifier notifications.Notifier
	now      func() time.Time
}

// NewService builds the bid placement service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		now:      time.Now,
	}, nil
}

// PlaceBid validates and records a bid in a single transaction with the
// auction row locked. Concurrent bidders on the same auction serialize on that
// lock, so price checks and the leader swap cannot interleave. A losing racer
// re-reads the bumped price after the lock and fails the minimum check the
// same way a plainly low bid does.
func (s *service) PlaceBid(ctx context.Context, input PlaceBidInput) (*models.Bid, error) {
	if err := validate.Struct(input); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid bid input", err)
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New(errors.CodeValidation, "bid amount must be positive")
	}

	var (
		placed    *models.Bid
		displaced *models.Bid
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindForUpdate(ctx, input.AuctionID)
		if err != nil {
			return err
		}
		if auction == nil {
			return errors.New(errors.CodeNotFound, "auction not found")
		}

		now := s.now().UTC()
		if auction.Status != enums.AuctionStatusOngoing || now.Before(auction.StartTime) || !now.Before(auction.EndTime) {
			return errors.New(errors.CodeStateConflict, "auction is not open for bidding")
		}
		if auction.SellerID == input.UserID {
			return errors.New(errors.CodeValidation, "seller cannot bid on own auction")
		}
		if err := checkMinimum(auction, input.Amount); err != nil {
			return err
		}

		leader, err := currentLeader(ctx, repo, input.AuctionID)
		if err != nil {
			return err
		}

		bid := &models.Bid{
			ID:        uuid.New(),
			AuctionID: input.AuctionID,
			UserID:    input.UserID,
			Amount:    input.Amount,
			Status:    enums.BidStatusActive,
			BidTime:   now,
		}

		switch {
		case leader == nil:
			if err := s.ledger.HoldTx(ctx, tx, wallet.HoldInput{
				UserID:    input.UserID,
				BidID:     bid.ID,
				AuctionID: input.AuctionID,
				Amount:    input.Amount,
			}); err != nil {
				return err
			}
		case leader.UserID == input.UserID:
			// Raising one's own leading bid: return the old hold first so
			// only the difference comes out of spendable balance.
			if _, err := s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseInput{
				UserID:        leader.UserID,
				OriginalBidID: leader.ID,
				AuctionID:     input.AuctionID,
				Amount:        leader.Amount,
			}); err != nil {
				return err
			}
			if err := repo.UpdateBidStatus(ctx, leader.ID, enums.BidStatusReleased); err != nil {
				return err
			}
			if err := s.ledger.HoldTx(ctx, tx, wallet.HoldInput{
				UserID:    input.UserID,
				BidID:     bid.ID,
				AuctionID: input.AuctionID,
				Amount:    input.Amount,
			}); err != nil {
				return err
			}
		default:
			if err := s.ledger.HoldTx(ctx, tx, wallet.HoldInput{
				UserID:    input.UserID,
				BidID:     bid.ID,
				AuctionID: input.AuctionID,
				Amount:    input.Amount,
			}); err != nil {
				return err
			}
			if err := repo.UpdateBidStatus(ctx, leader.ID, enums.BidStatusOutbid); err != nil {
				return err
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBidOutbid,
				AggregateType: enums.AggregateBid,
				AggregateID:   leader.ID,
				Version:       1,
				Data: payloads.BidOutbidEvent{
					AuctionID:       input.AuctionID,
					OutbidUserID:    leader.UserID,
					OriginalBidID:   leader.ID,
					AmountToRelease: leader.Amount,
				},
			}); err != nil {
				return err
			}
			displaced = leader
		}

		if err := repo.CreateBid(ctx, bid); err != nil {
			return err
		}
		if err := repo.BumpPrice(ctx, input.AuctionID, input.Amount); err != nil {
			return err
		}
		placed = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	if displaced != nil {
		s.notifier.Outbid(ctx, displaced.UserID, input.AuctionID, placed.Amount)
	}
	return placed, nil
}

func checkMinimum(auction *models.Auction, amount decimal.Decimal) error {
	price := auction.Price()
	if auction.StepPrice.IsPositive() {
		minimum := price.Add(auction.StepPrice)
		if amount.LessThan(minimum) {
			return errors.Newf(errors.CodeBidTooLow, "bid must be at least %s", minimum.StringFixed(2))
		}
		return nil
	}
	if !amount.GreaterThan(price) {
		return errors.Newf(errors.CodeBidTooLow, "bid must exceed %s", price.StringFixed(2))
	}
	return nil
}

func currentLeader(ctx context.Context, repo auctions.Repository, auctionID uuid.UUID) (*models.Bid, error) {
	active, err := repo.BidsByStatus(ctx, auctionID, enums.BidStatusActive)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return &active[0], nil
}
