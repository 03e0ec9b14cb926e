package settlement

import (
	"context"
	"fmt"
	"time"

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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settleLedger interface {
	SettleTx(ctx context.Context, tx *gorm.DB, input wallet.SettleInput) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) (bool, error)
}

// Service settles ended auctions.
type Service interface {
	FinalizeAuction(ctx context.Context, auctionID uuid.UUID) error
}

// ServiceParams wire the settlement service.
type ServiceParams struct {
	DB         txRunner
	Repo       auctions.Repository
	Ledger     settleLedger
	Outbox     outboxEmitter
	Notifier   notifications.Notifier
	Commission CommissionCalculator
}

type service struct {
	db         txRunner
	repo       auctions.Repository
	ledger     settleLedger
	outbox     outboxEmitter
	notifier   notifications.Notifier
	commission CommissionCalculator
	now        func() time.Time
}

// NewService builds the settlement service. A nil Commission defaults to no
// commission.
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
	if params.Commission == nil {
		params.Commission = NewBpsCalculator(0)
	}
	return &service{
		db:         params.DB,
		repo:       params.Repo,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		notifier:   params.Notifier,
		commission: params.Commission,
		now:        time.Now,
	}, nil
}

type settlementOutcome struct {
	sellerID   uuid.UUID
	winnerID   uuid.UUID
	winningBid uuid.UUID
	finalPrice decimal.Decimal
	settled    bool
}

// FinalizeAuction settles one ended auction in a single transaction. Calling
// it again after success is a no-op: the auction row is locked, and a row
// already in a terminal status is left untouched. The winner's hold becomes
// the payment, the seller is credited net of commission, and any other hold
// still outstanding on the auction is released as a safety net for outbid
// events the release worker has not consumed.
func (s *service) FinalizeAuction(ctx context.Context, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return errors.New(errors.CodeValidation, "auction id is required")
	}

	var outcome settlementOutcome
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
		case enums.AuctionStatusFinalized, enums.AuctionStatusCancelled:
			return nil
		case enums.AuctionStatusEnded:
		case enums.AuctionStatusOngoing:
			if s.now().UTC().Before(auction.EndTime) {
				return errors.New(errors.CodeStateConflict, "auction has not ended")
			}
		default:
			return errors.Newf(errors.CodeStateConflict, "auction is %s", auction.Status)
		}

		winner, err := currentLeader(ctx, repo, auctionID)
		if err != nil {
			return err
		}

		finalizedAt := s.now().UTC()
		event := payloads.AuctionFinalizedEvent{
			AuctionID:   auctionID,
			SellerID:    auction.SellerID,
			TotalBids:   auction.TotalBids,
			FinalizedAt: finalizedAt,
		}

		if winner != nil {
			commission := s.commission.Commission(winner.Amount)
			if err := s.ledger.SettleTx(ctx, tx, wallet.SettleInput{
				WinnerUserID: winner.UserID,
				SellerUserID: auction.SellerID,
				WinningBidID: winner.ID,
				AuctionID:    auctionID,
				Amount:       winner.Amount,
				Commission:   commission,
			}); err != nil {
				return err
			}
			if err := repo.UpdateBidStatus(ctx, winner.ID, enums.BidStatusWinner); err != nil {
				return err
			}
			if err := s.releaseStragglers(ctx, tx, repo, auctionID); err != nil {
				return err
			}
			event.WinnerID = &winner.UserID
			event.WinningBidID = &winner.ID
			event.FinalPrice = decimal.NewNullDecimal(winner.Amount)

			outcome = settlementOutcome{
				sellerID:   auction.SellerID,
				winnerID:   winner.UserID,
				winningBid: winner.ID,
				finalPrice: winner.Amount,
				settled:    true,
			}
		}

		moved, err := repo.MarkStatus(ctx, auctionID, auction.Status, enums.AuctionStatusFinalized)
		if err != nil {
			return err
		}
		if !moved {
			return errors.New(errors.CodeStateConflict, "auction status changed concurrently")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionFinalized,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auctionID,
			Version:       1,
			Data:          event,
		})
	})
	if err != nil {
		return err
	}

	if outcome.settled {
		s.notifier.AuctionWon(ctx, outcome.winnerID, auctionID, outcome.finalPrice)
		s.notifier.AuctionSold(ctx, outcome.sellerID, auctionID, outcome.finalPrice)
	}
	return nil
}

// releaseStragglers returns every hold left by outbid bids whose release
// event was not consumed yet. ReleaseTx is idempotent on the original bid id,
// so races with the release worker resolve to exactly one release.
func (s *service) releaseStragglers(ctx context.Context, tx *gorm.DB, repo auctions.Repository, auctionID uuid.UUID) error {
	outbid, err := repo.BidsByStatus(ctx, auctionID, enums.BidStatusOutbid)
	if err != nil {
		return err
	}
	for _, bid := range outbid {
		applied, err := s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseInput{
			UserID:        bid.UserID,
			OriginalBidID: bid.ID,
			AuctionID:     auctionID,
			Amount:        bid.Amount,
		})
		if err != nil {
			return err
		}
		if applied {
			if err := repo.UpdateBidStatus(ctx, bid.ID, enums.BidStatusReleased); err != nil {
				return err
			}
		}
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
