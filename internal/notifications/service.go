package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
	"github.com/evtrade/auctioncore/pkg/logger"
	"github.com/evtrade/auctioncore/pkg/pagination"
)

// Notifier delivers best-effort auction signals. Every method logs and
// swallows persistence errors; a lost notification never fails the caller.
type Notifier interface {
	Outbid(ctx context.Context, userID, auctionID uuid.UUID, newPrice decimal.Decimal)
	AuctionWon(ctx context.Context, userID, auctionID uuid.UUID, finalPrice decimal.Decimal)
	AuctionSold(ctx context.Context, sellerID, auctionID uuid.UUID, finalPrice decimal.Decimal)
	FundsReleased(ctx context.Context, userID, auctionID uuid.UUID, amount decimal.Decimal)
}

// Service exposes the user-facing notification feed alongside the Notifier.
type Service interface {
	Notifier
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ListParams configures pagination for the notification feed.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires notification dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New(errors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, errors.New(errors.CodeDependency, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Outbid(ctx context.Context, userID, auctionID uuid.UUID, newPrice decimal.Decimal) {
	s.persist(ctx, &models.Notification{
		UserID:    userID,
		Type:      enums.NotificationTypeOutbid,
		Title:     "You have been outbid",
		Message:   fmt.Sprintf("Another bidder raised the price to %s. Your held funds will be returned.", newPrice.StringFixed(2)),
		AuctionID: &auctionID,
	})
}

func (s *service) AuctionWon(ctx context.Context, userID, auctionID uuid.UUID, finalPrice decimal.Decimal) {
	s.persist(ctx, &models.Notification{
		UserID:    userID,
		Type:      enums.NotificationTypeAuctionWon,
		Title:     "You won the auction",
		Message:   fmt.Sprintf("Your bid of %s won. Payment has been taken from your held funds.", finalPrice.StringFixed(2)),
		AuctionID: &auctionID,
	})
}

func (s *service) AuctionSold(ctx context.Context, sellerID, auctionID uuid.UUID, finalPrice decimal.Decimal) {
	s.persist(ctx, &models.Notification{
		UserID:    sellerID,
		Type:      enums.NotificationTypeAuctionSold,
		Title:     "Your auction sold",
		Message:   fmt.Sprintf("Your item sold for %s. Proceeds have been credited to your wallet.", finalPrice.StringFixed(2)),
		AuctionID: &auctionID,
	})
}

func (s *service) FundsReleased(ctx context.Context, userID, auctionID uuid.UUID, amount decimal.Decimal) {
	s.persist(ctx, &models.Notification{
		UserID:    userID,
		Type:      enums.NotificationTypeFundsReleased,
		Title:     "Held funds returned",
		Message:   fmt.Sprintf("%s held for your bid has been returned to your balance.", amount.StringFixed(2)),
		AuctionID: &auctionID,
	})
}

func (s *service) persist(ctx context.Context, notification *models.Notification) {
	if err := s.repo.Create(ctx, notification); err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"user_id":           notification.UserID.String(),
			"notification_type": string(notification.Type),
		})
		s.logg.Error(ctx, "persist notification", err)
	}
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidation, "invalid cursor", err)
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, "list notifications", err)
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return errors.New(errors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return errors.New(errors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(errors.CodeDependency, "mark notification read", err)
	}
	if !result.Found {
		return errors.New(errors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errors.New(errors.CodeValidation, "user id required")
	}
	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(errors.CodeDependency, "mark notifications read", err)
	}
	return count, nil
}
