package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/logger"
)

const finalizeBatchSize = 100

type auctionFinalizer interface {
	FinalizeAuction(ctx context.Context, auctionID uuid.UUID) error
}

// FinalizeJobParams configure the ongoing-to-ended-to-finalized job.
type FinalizeJobParams struct {
	Logger     *logger.Logger
	Repo       lifecycleReader
	Settlement auctionFinalizer
	Batch      int
}

// NewFinalizeJob builds the job that closes expired auctions and settles
// them. One auction failing leaves the rest of the batch untouched; errors
// are combined and surfaced once per run.
func NewFinalizeJob(params FinalizeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = finalizeBatchSize
	}
	return &finalizeJob{
		logg:       params.Logger,
		repo:       params.Repo,
		settlement: params.Settlement,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type finalizeJob struct {
	logg       *logger.Logger
	repo       lifecycleReader
	settlement auctionFinalizer
	batch      int
	now        func() time.Time
}

func (j *finalizeJob) Name() string { return "auction-finalize" }

func (j *finalizeJob) Run(ctx context.Context) error {
	expired, err := j.repo.ExpiredOngoing(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query expired auctions: %w", err)
	}

	var errs []error
	for _, auction := range expired {
		auctionCtx := j.logg.WithAuctionID(ctx, auction.ID.String())
		moved, err := j.repo.MarkStatus(ctx, auction.ID, enums.AuctionStatusOngoing, enums.AuctionStatusEnded)
		if err != nil {
			errs = append(errs, fmt.Errorf("end auction %s: %w", auction.ID, err))
			continue
		}
		if !moved {
			// Another replica got here first; it owns the settlement too.
			continue
		}
		j.logg.Info(auctionCtx, "auction ended")

		if err := j.settlement.FinalizeAuction(ctx, auction.ID); err != nil {
			j.logg.Error(auctionCtx, "finalize auction", err)
			errs = append(errs, fmt.Errorf("finalize auction %s: %w", auction.ID, err))
		}
	}
	return multierr.Combine(errs...)
}
