package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/logger"
)

type fakeLifecycleRepo struct {
	due        []models.Auction
	expired    []models.Auction
	statuses   map[uuid.UUID]enums.AuctionStatus
	markErrFor uuid.UUID
}

func newFakeLifecycleRepo() *fakeLifecycleRepo {
	return &fakeLifecycleRepo{statuses: make(map[uuid.UUID]enums.AuctionStatus)}
}

func (f *fakeLifecycleRepo) DueToStart(_ context.Context, _ time.Time, _ int) ([]models.Auction, error) {
	return f.due, nil
}

func (f *fakeLifecycleRepo) ExpiredOngoing(_ context.Context, _ time.Time, _ int) ([]models.Auction, error) {
	return f.expired, nil
}

func (f *fakeLifecycleRepo) MarkStatus(_ context.Context, id uuid.UUID, from, to enums.AuctionStatus) (bool, error) {
	if id == f.markErrFor {
		return false, fmt.Errorf("deadlock detected")
	}
	if f.statuses[id] != from {
		return false, nil
	}
	f.statuses[id] = to
	return true, nil
}

type fakeFinalizer struct {
	finalized []uuid.UUID
	failFor   uuid.UUID
}

func (f *fakeFinalizer) FinalizeAuction(_ context.Context, auctionID uuid.UUID) error {
	if auctionID == f.failFor {
		return fmt.Errorf("settlement failed")
	}
	f.finalized = append(f.finalized, auctionID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "scheduler-test"})
}

func TestPromoteJobOpensDueAuctions(t *testing.T) {
	repo := newFakeLifecycleRepo()
	first := models.Auction{ID: uuid.New()}
	second := models.Auction{ID: uuid.New()}
	repo.due = []models.Auction{first, second}
	repo.statuses[first.ID] = enums.AuctionStatusScheduled
	// The second row was promoted by another replica between the query and
	// the swap.
	repo.statuses[second.ID] = enums.AuctionStatusOngoing

	job, err := NewPromoteJob(PromoteJobParams{Logger: testLogger(), Repo: repo})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, enums.AuctionStatusOngoing, repo.statuses[first.ID])
	assert.Equal(t, enums.AuctionStatusOngoing, repo.statuses[second.ID])
}

func TestFinalizeJobSettlesExpiredAuctions(t *testing.T) {
	repo := newFakeLifecycleRepo()
	finalizer := &fakeFinalizer{}
	auction := models.Auction{ID: uuid.New()}
	repo.expired = []models.Auction{auction}
	repo.statuses[auction.ID] = enums.AuctionStatusOngoing

	job, err := NewFinalizeJob(FinalizeJobParams{
		Logger: testLogger(), Repo: repo, Settlement: finalizer,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, enums.AuctionStatusEnded, repo.statuses[auction.ID])
	assert.Equal(t, []uuid.UUID{auction.ID}, finalizer.finalized)
}

func TestFinalizeJobIsolatesPerAuctionFailures(t *testing.T) {
	repo := newFakeLifecycleRepo()
	finalizer := &fakeFinalizer{}
	broken := models.Auction{ID: uuid.New()}
	healthy := models.Auction{ID: uuid.New()}
	repo.expired = []models.Auction{broken, healthy}
	repo.statuses[broken.ID] = enums.AuctionStatusOngoing
	repo.statuses[healthy.ID] = enums.AuctionStatusOngoing
	finalizer.failFor = broken.ID

	job, err := NewFinalizeJob(FinalizeJobParams{
		Logger: testLogger(), Repo: repo, Settlement: finalizer,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.ID.String())

	// The healthy auction still went through.
	assert.Equal(t, []uuid.UUID{healthy.ID}, finalizer.finalized)
	assert.Equal(t, enums.AuctionStatusEnded, repo.statuses[healthy.ID])
}

func TestFinalizeJobSkipsRowsLostToAnotherReplica(t *testing.T) {
	repo := newFakeLifecycleRepo()
	finalizer := &fakeFinalizer{}
	auction := models.Auction{ID: uuid.New()}
	repo.expired = []models.Auction{auction}
	repo.statuses[auction.ID] = enums.AuctionStatusEnded

	job, err := NewFinalizeJob(FinalizeJobParams{
		Logger: testLogger(), Repo: repo, Settlement: finalizer,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, finalizer.finalized)
}
