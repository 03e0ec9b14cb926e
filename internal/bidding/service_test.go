package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/internal/auctions"
	"github.com/evtrade/auctioncore/internal/wallet"
	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
	"github.com/evtrade/auctioncore/pkg/outbox"
)

type fakeBidRepo struct {
	auctions map[uuid.UUID]*models.Auction
	bids     map[uuid.UUID][]*models.Bid
}

func newFakeBidRepo() *fakeBidRepo {
	return &fakeBidRepo{
		auctions: make(map[uuid.UUID]*models.Auction),
		bids:     make(map[uuid.UUID][]*models.Bid),
	}
}

func (f *fakeBidRepo) WithTx(_ *gorm.DB) auctions.Repository { return f }

func (f *fakeBidRepo) Create(_ context.Context, auction *models.Auction) error {
	f.auctions[auction.ID] = auction
	return nil
}

func (f *fakeBidRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	return f.auctions[id], nil
}

func (f *fakeBidRepo) FindForUpdate(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	return f.auctions[id], nil
}

func (f *fakeBidRepo) FindOpenByItemID(_ context.Context, _ uuid.UUID) (*models.Auction, error) {
	return nil, nil
}

func (f *fakeBidRepo) List(_ context.Context, _ auctions.ListParams) ([]models.Auction, string, error) {
	return nil, "", nil
}

func (f *fakeBidRepo) DueToStart(_ context.Context, _ time.Time, _ int) ([]models.Auction, error) {
	return nil, nil
}

func (f *fakeBidRepo) ExpiredOngoing(_ context.Context, _ time.Time, _ int) ([]models.Auction, error) {
	return nil, nil
}

func (f *fakeBidRepo) MarkStatus(_ context.Context, id uuid.UUID, from, to enums.AuctionStatus) (bool, error) {
	auction, ok := f.auctions[id]
	if !ok || auction.Status != from {
		return false, nil
	}
	auction.Status = to
	return true, nil
}

func (f *fakeBidRepo) BumpPrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	auction := f.auctions[id]
	auction.CurrentPrice = decimal.NewNullDecimal(price)
	auction.TotalBids++
	return nil
}

func (f *fakeBidRepo) CreateBid(_ context.Context, bid *models.Bid) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	f.bids[bid.AuctionID] = append(f.bids[bid.AuctionID], bid)
	return nil
}

func (f *fakeBidRepo) HighestBid(_ context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	var highest *models.Bid
	for _, bid := range f.bids[auctionID] {
		if highest == nil || bid.Amount.GreaterThan(highest.Amount) {
			highest = bid
		}
	}
	return highest, nil
}

func (f *fakeBidRepo) BidsByStatus(_ context.Context, auctionID uuid.UUID, statuses ...enums.BidStatus) ([]models.Bid, error) {
	var rows []models.Bid
	for _, bid := range f.bids[auctionID] {
		for _, status := range statuses {
			if bid.Status == status {
				rows = append(rows, *bid)
				break
			}
		}
	}
	return rows, nil
}

func (f *fakeBidRepo) BidHistory(_ context.Context, auctionID uuid.UUID, _ int) ([]models.Bid, error) {
	var rows []models.Bid
	for _, bid := range f.bids[auctionID] {
		rows = append(rows, *bid)
	}
	return rows, nil
}

func (f *fakeBidRepo) UpdateBidStatus(_ context.Context, bidID uuid.UUID, status enums.BidStatus) error {
	for _, bids := range f.bids {
		for _, bid := range bids {
			if bid.ID == bidID {
				bid.Status = status
				return nil
			}
		}
	}
	return nil
}

type fakeLedger struct {
	holds    []wallet.HoldInput
	releases []wallet.ReleaseInput
	holdErr  error
}

func (f *fakeLedger) HoldTx(_ context.Context, _ *gorm.DB, input wallet.HoldInput) error {
	if f.holdErr != nil {
		return f.holdErr
	}
	f.holds = append(f.holds, input)
	return nil
}

func (f *fakeLedger) ReleaseTx(_ context.Context, _ *gorm.DB, input wallet.ReleaseInput) (bool, error) {
	f.releases = append(f.releases, input)
	return true, nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeNotifier struct {
	outbid []uuid.UUID
}

func (f *fakeNotifier) Outbid(_ context.Context, userID, _ uuid.UUID, _ decimal.Decimal) {
	f.outbid = append(f.outbid, userID)
}

func (f *fakeNotifier) AuctionWon(_ context.Context, _, _ uuid.UUID, _ decimal.Decimal)    {}
func (f *fakeNotifier) AuctionSold(_ context.Context, _, _ uuid.UUID, _ decimal.Decimal)   {}
func (f *fakeNotifier) FundsReleased(_ context.Context, _, _ uuid.UUID, _ decimal.Decimal) {}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type bidFixture struct {
	svc      Service
	repo     *fakeBidRepo
	ledger   *fakeLedger
	emitter  *fakeEmitter
	notifier *fakeNotifier
	auction  *models.Auction
}

func newBidFixture(t *testing.T) *bidFixture {
	t.Helper()
	now := time.Now().UTC()
	f := &bidFixture{
		repo:     newFakeBidRepo(),
		ledger:   &fakeLedger{},
		emitter:  &fakeEmitter{},
		notifier: &fakeNotifier{},
		auction: &models.Auction{
			ID:            uuid.New(),
			ItemID:        uuid.New(),
			SellerID:      uuid.New(),
			StartingPrice: decimal.RequireFromString("1000000"),
			StepPrice:     decimal.Zero,
			StartTime:     now.Add(-time.Hour),
			EndTime:       now.Add(time.Hour),
			Status:        enums.AuctionStatusOngoing,
		},
	}
	f.repo.auctions[f.auction.ID] = f.auction

	svc, err := NewService(ServiceParams{
		DB:       fakeTxRunner{},
		Repo:     f.repo,
		Ledger:   f.ledger,
		Outbox:   f.emitter,
		Notifier: f.notifier,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *bidFixture) place(t *testing.T, userID uuid.UUID, amount string) *models.Bid {
	t.Helper()
	bid, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: f.auction.ID,
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return bid
}

func TestPlaceBidFirstBidBecomesLeader(t *testing.T) {
	f := newBidFixture(t)
	bidder := uuid.New()

	bid := f.place(t, bidder, "1100000")

	assert.Equal(t, enums.BidStatusActive, bid.Status)
	require.Len(t, f.ledger.holds, 1)
	assert.Equal(t, bid.ID, f.ledger.holds[0].BidID)
	assert.True(t, f.ledger.holds[0].Amount.Equal(decimal.RequireFromString("1100000")))
	assert.True(t, f.auction.Price().Equal(decimal.RequireFromString("1100000")))
	assert.Equal(t, 1, f.auction.TotalBids)
	assert.Empty(t, f.emitter.events)
	assert.Empty(t, f.notifier.outbid)
}

func TestPlaceBidDisplacesLeaderAndEmitsOutbidEvent(t *testing.T) {
	f := newBidFixture(t)
	first := uuid.New()
	second := uuid.New()

	firstBid := f.place(t, first, "1100000")
	f.place(t, second, "1200000")

	assert.Equal(t, enums.BidStatusOutbid, firstBid.Status)
	assert.True(t, f.auction.Price().Equal(decimal.RequireFromString("1200000")))
	assert.Equal(t, 2, f.auction.TotalBids)

	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	assert.Equal(t, enums.EventBidOutbid, event.EventType)
	assert.Equal(t, enums.AggregateBid, event.AggregateType)
	assert.Equal(t, firstBid.ID, event.AggregateID)

	// The displaced bidder is told after commit; the hold itself is only
	// returned once the release worker consumes the event.
	assert.Equal(t, []uuid.UUID{first}, f.notifier.outbid)
	assert.Empty(t, f.ledger.releases)
}

func TestPlaceBidRejectsAmountAtOrBelowPrice(t *testing.T) {
	f := newBidFixture(t)
	f.place(t, uuid.New(), "1100000")

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: f.auction.ID,
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("1100000"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeBidTooLow))
	assert.Equal(t, 1, f.auction.TotalBids)
}

func TestPlaceBidHonorsStepPrice(t *testing.T) {
	f := newBidFixture(t)
	f.auction.StepPrice = decimal.RequireFromString("100000")
	f.place(t, uuid.New(), "1100000")

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: f.auction.ID,
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("1150000"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeBidTooLow))

	f.place(t, uuid.New(), "1200000")
}

func TestPlaceBidOwnRaiseSwapsHold(t *testing.T) {
	f := newBidFixture(t)
	bidder := uuid.New()

	firstBid := f.place(t, bidder, "1100000")
	raised := f.place(t, bidder, "1200000")

	// The old hold comes back before the new one is taken, so the bidder
	// only needs the difference in spendable funds.
	require.Len(t, f.ledger.releases, 1)
	assert.Equal(t, firstBid.ID, f.ledger.releases[0].OriginalBidID)
	assert.True(t, f.ledger.releases[0].Amount.Equal(decimal.RequireFromString("1100000")))
	require.Len(t, f.ledger.holds, 2)
	assert.Equal(t, raised.ID, f.ledger.holds[1].BidID)
	assert.True(t, f.ledger.holds[1].Amount.Equal(decimal.RequireFromString("1200000")))

	assert.Equal(t, enums.BidStatusReleased, firstBid.Status)
	assert.Equal(t, enums.BidStatusActive, raised.Status)
	assert.Empty(t, f.emitter.events)
	assert.Empty(t, f.notifier.outbid)
}

func TestPlaceBidRejectsClosedAuction(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Auction)
	}{
		{"scheduled", func(a *models.Auction) { a.Status = enums.AuctionStatusScheduled }},
		{"ended", func(a *models.Auction) { a.Status = enums.AuctionStatusEnded }},
		{"cancelled", func(a *models.Auction) { a.Status = enums.AuctionStatusCancelled }},
		{"past end time", func(a *models.Auction) {
			a.EndTime = time.Now().UTC().Add(-time.Minute)
		}},
		{"before start time", func(a *models.Auction) {
			a.StartTime = time.Now().UTC().Add(time.Minute)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newBidFixture(t)
			tc.mutate(f.auction)

			_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
				AuctionID: f.auction.ID,
				UserID:    uuid.New(),
				Amount:    decimal.RequireFromString("1100000"),
			})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeStateConflict))
			assert.Empty(t, f.ledger.holds)
		})
	}
}

func TestPlaceBidRejectsSeller(t *testing.T) {
	f := newBidFixture(t)

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: f.auction.ID,
		UserID:    f.auction.SellerID,
		Amount:    decimal.RequireFromString("1100000"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeValidation))
}

func TestPlaceBidStopsWhenHoldFails(t *testing.T) {
	f := newBidFixture(t)
	f.ledger.holdErr = errors.New(errors.CodeInsufficientFunds, "insufficient funds")

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: f.auction.ID,
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("1100000"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientFunds))
	assert.Empty(t, f.repo.bids[f.auction.ID])
	assert.Equal(t, 0, f.auction.TotalBids)
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	f := newBidFixture(t)

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: uuid.New(),
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("1100000"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
