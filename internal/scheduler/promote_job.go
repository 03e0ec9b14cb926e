package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/logger"
)

const promoteBatchSize = 100

type lifecycleReader interface {
	DueToStart(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	ExpiredOngoing(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.AuctionStatus) (bool, error)
}

// PromoteJobParams configure the scheduled-to-ongoing transition job.
type PromoteJobParams struct {
	Logger *logger.Logger
	Repo   lifecycleReader
	Batch  int
}

// NewPromoteJob builds the job that opens scheduled auctions whose start time
// has passed.
func NewPromoteJob(params PromoteJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = promoteBatchSize
	}
	return &promoteJob{
		logg:  params.Logger,
		repo:  params.Repo,
		batch: batch,
		now:   time.Now,
	}, nil
}

type promoteJob struct {
	logg  *logger.Logger
	repo  lifecycleReader
	batch int
	now   func() time.Time
}

func (j *promoteJob) Name() string { return "auction-promote" }

func (j *promoteJob) Run(ctx context.Context) error {
	due, err := j.repo.DueToStart(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query auctions due to start: %w", err)
	}

	var errs []error
	for _, auction := range due {
		moved, err := j.repo.MarkStatus(ctx, auction.ID, enums.AuctionStatusScheduled, enums.AuctionStatusOngoing)
		if err != nil {
			errs = append(errs, fmt.Errorf("promote auction %s: %w", auction.ID, err))
			continue
		}
		if moved {
			j.logg.Info(j.logg.WithAuctionID(ctx, auction.ID.String()), "auction opened for bidding")
		}
	}
	return multierr.Combine(errs...)
}
