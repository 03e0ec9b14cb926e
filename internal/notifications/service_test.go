package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/logger"
	"github.com/evtrade/auctioncore/pkg/pagination"
)

type fakeNotificationRepo struct {
	created   []*models.Notification
	createErr error
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotificationRepo) List(_ context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	var rows []models.Notification
	for _, n := range f.created {
		if n.UserID == params.UserID {
			rows = append(rows, *n)
		}
	}
	return rows, nil, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, userID, notificationID uuid.UUID, at time.Time) (markReadResult, error) {
	for _, n := range f.created {
		if n.ID == notificationID && n.UserID == userID {
			if n.ReadAt != nil {
				return markReadResult{Found: true, AlreadyRead: true}, nil
			}
			n.ReadAt = &at
			return markReadResult{Found: true}, nil
		}
	}
	return markReadResult{}, nil
}

func (f *fakeNotificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	var count int64
	for _, n := range f.created {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func newNotifierUnderTest(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "notifications-test"}))
	require.NoError(t, err)
	return svc
}

func TestNotifierPersistsTypedRows(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := newNotifierUnderTest(t, repo)
	ctx := context.Background()

	bidder := uuid.New()
	seller := uuid.New()
	auctionID := uuid.New()
	price := decimal.RequireFromString("1200000")

	svc.Outbid(ctx, bidder, auctionID, price)
	svc.AuctionWon(ctx, bidder, auctionID, price)
	svc.AuctionSold(ctx, seller, auctionID, price)
	svc.FundsReleased(ctx, bidder, auctionID, decimal.RequireFromString("1100000"))

	require.Len(t, repo.created, 4)
	assert.Equal(t, enums.NotificationTypeOutbid, repo.created[0].Type)
	assert.Equal(t, enums.NotificationTypeAuctionWon, repo.created[1].Type)
	assert.Equal(t, enums.NotificationTypeAuctionSold, repo.created[2].Type)
	assert.Equal(t, enums.NotificationTypeFundsReleased, repo.created[3].Type)
	assert.Equal(t, seller, repo.created[2].UserID)
	require.NotNil(t, repo.created[0].AuctionID)
	assert.Equal(t, auctionID, *repo.created[0].AuctionID)
	assert.Contains(t, repo.created[0].Message, "1200000.00")
}

func TestNotifierSwallowsPersistenceErrors(t *testing.T) {
	repo := &fakeNotificationRepo{createErr: fmt.Errorf("connection reset")}
	svc := newNotifierUnderTest(t, repo)

	// Must not panic or surface the error to the caller.
	svc.Outbid(context.Background(), uuid.New(), uuid.New(), decimal.RequireFromString("1100000"))
	assert.Empty(t, repo.created)
}

func TestMarkReadFlow(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := newNotifierUnderTest(t, repo)
	ctx := context.Background()

	userID := uuid.New()
	svc.Outbid(ctx, userID, uuid.New(), decimal.RequireFromString("1100000"))
	svc.Outbid(ctx, userID, uuid.New(), decimal.RequireFromString("1200000"))
	require.Len(t, repo.created, 2)
	repo.created[0].ID = uuid.New()
	repo.created[1].ID = uuid.New()

	require.NoError(t, svc.MarkRead(ctx, userID, repo.created[0].ID))
	assert.NotNil(t, repo.created[0].ReadAt)

	count, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = svc.MarkRead(ctx, userID, uuid.New())
	require.Error(t, err)
}
