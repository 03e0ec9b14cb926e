package release

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/internal/auctions"
	"github.com/evtrade/auctioncore/internal/notifications"
	"github.com/evtrade/auctioncore/internal/wallet"
	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
	"github.com/evtrade/auctioncore/pkg/logger"
	"github.com/evtrade/auctioncore/pkg/metrics"
	"github.com/evtrade/auctioncore/pkg/outbox"
	"github.com/evtrade/auctioncore/pkg/outbox/idempotency"
	"github.com/evtrade/auctioncore/pkg/outbox/payloads"
)

const (
	releaseFundsConsumer = "release-funds-worker"
	redeliveryScope      = "release-redelivery"

	defaultMaxRedeliveries = 6
	defaultNackDelay       = 5 * time.Second
	redeliveryCounterTTL   = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type releaseLedger interface {
	HasReleaseForBid(ctx context.Context, bidID uuid.UUID) (bool, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) (bool, error)
}

type dlqRecorder interface {
	Insert(ctx context.Context, entry models.OutboxDLQ) error
}

type redeliveryCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(scope, id string) string
}

// ConsumerParams wire the release-funds worker.
type ConsumerParams struct {
	Subscription    *pubsub.Subscriber
	DB              txRunner
	Ledger          releaseLedger
	Bids            auctions.Repository
	DLQ             dlqRecorder
	Idempotency     *idempotency.Manager
	Redeliveries    redeliveryCounter
	Notifier        notifications.Notifier
	Metrics         *metrics.ConsumerMetrics
	Logger          *logger.Logger
	MaxRedeliveries int
	NackDelay       time.Duration
}

// Consumer returns held funds to outbid bidders. It consumes
// auction.bid.outbid events, acks everything that must never be retried
// (foreign events, malformed or duplicate payloads) and nacks transient
// failures so the broker redelivers them.
type Consumer struct {
	subscription    *pubsub.Subscriber
	db              txRunner
	ledger          releaseLedger
	bids            auctions.Repository
	dlq             dlqRecorder
	idempotency     *idempotency.Manager
	redeliveries    redeliveryCounter
	notifier        notifications.Notifier
	metrics         *metrics.ConsumerMetrics
	logg            *logger.Logger
	maxRedeliveries int
	nackDelay       time.Duration
}

// NewConsumer builds the release-funds worker.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("release subscription required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Bids == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dead letter repository required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Redeliveries == nil {
		return nil, fmt.Errorf("redelivery counter required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxRedeliveries := params.MaxRedeliveries
	if maxRedeliveries <= 0 {
		maxRedeliveries = defaultMaxRedeliveries
	}
	nackDelay := params.NackDelay
	if nackDelay <= 0 {
		nackDelay = defaultNackDelay
	}
	return &Consumer{
		subscription:    params.Subscription,
		db:              params.DB,
		ledger:          params.Ledger,
		bids:            params.Bids,
		dlq:             params.DLQ,
		idempotency:     params.Idempotency,
		redeliveries:    params.Redeliveries,
		notifier:        params.Notifier,
		metrics:         params.Metrics,
		logg:            params.Logger,
		maxRedeliveries: maxRedeliveries,
		nackDelay:       nackDelay,
	}, nil
}

// Run starts the consumer loop until the context is canceled. Nacks are
// delayed so a persistently failing message does not hot-loop through the
// broker.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		start := time.Now()
		result := c.process(ctx, msg)
		if c.metrics != nil {
			c.metrics.ObserveHandle(releaseFundsConsumer, time.Since(start))
		}
		if result.nack {
			c.recordOutcome(metrics.OutcomeNack)
			select {
			case <-ctx.Done():
			case <-time.After(c.nackDelay):
			}
			msg.Nack()
			return
		}
		if result.skipped {
			c.recordOutcome(metrics.OutcomeSkipped)
		} else {
			c.recordOutcome(metrics.OutcomeAck)
		}
		msg.Ack()
	})
}

type processResult struct {
	ack     bool
	nack    bool
	skipped bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventBidOutbid) {
		return processResult{ack: true, skipped: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.deadLetter(logCtx, msg, uuid.Nil, enums.OutboxDLQReasonMalformedPayload, err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		c.deadLetter(logCtx, msg, uuid.Nil, enums.OutboxDLQReasonMalformedPayload, err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, releaseFundsConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true, skipped: true}
	}

	payload, err := decodePayload(envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		c.deadLetter(logCtx, msg, eventID, enums.OutboxDLQReasonMalformedPayload, err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithBidID(logCtx, payload.OriginalBidID.String())
	logCtx = c.logg.WithAuctionID(logCtx, payload.AuctionID.String())

	// The unique (type, ref_id) ledger index is the authoritative duplicate
	// guard; the redis mark only short-circuits the common case.
	released, err := c.ledger.HasReleaseForBid(ctx, payload.OriginalBidID)
	if err != nil {
		c.logg.Error(logCtx, "release lookup failed", err)
		_ = c.idempotency.Delete(ctx, releaseFundsConsumer, eventID)
		return processResult{nack: true}
	}
	if released {
		c.logg.Info(logCtx, "funds already released for bid")
		return processResult{ack: true, skipped: true}
	}

	if err := c.releaseFunds(ctx, payload); err != nil {
		return c.handleFailure(ctx, logCtx, msg, eventID, payload, err)
	}

	c.notifier.FundsReleased(ctx, payload.OutbidUserID, payload.AuctionID, payload.AmountToRelease)
	c.logg.Info(logCtx, "held funds returned to outbid bidder")
	return processResult{ack: true}
}

func (c *Consumer) releaseFunds(ctx context.Context, payload payloads.BidOutbidEvent) error {
	return c.db.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := c.ledger.ReleaseTx(ctx, tx, wallet.ReleaseInput{
			UserID:        payload.OutbidUserID,
			OriginalBidID: payload.OriginalBidID,
			AuctionID:     payload.AuctionID,
			Amount:        payload.AmountToRelease,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return c.bids.WithTx(tx).UpdateBidStatus(ctx, payload.OriginalBidID, enums.BidStatusReleased)
	})
}

// handleFailure decides between redelivery and the dead letter table. A
// missing wallet is retried in case wallet creation is lagging, but only
// maxRedeliveries times; everything else is retried indefinitely as
// transient.
func (c *Consumer) handleFailure(ctx context.Context, logCtx context.Context, msg *pubsub.Message, eventID uuid.UUID, payload payloads.BidOutbidEvent, failure error) processResult {
	c.logg.Error(logCtx, "release funds failed", failure)

	if errors.HasCode(failure, errors.CodeNotFound) {
		key := c.redeliveries.CounterKey(redeliveryScope, eventID.String())
		deliveries, err := c.redeliveries.IncrWithTTL(ctx, key, redeliveryCounterTTL)
		if err != nil {
			c.logg.Error(logCtx, "redelivery count failed", err)
			_ = c.idempotency.Delete(ctx, releaseFundsConsumer, eventID)
			return processResult{nack: true}
		}
		if deliveries >= int64(c.maxRedeliveries) {
			c.logg.Warn(logCtx, "max redeliveries exceeded; dead lettering")
			c.deadLetter(logCtx, msg, eventID, enums.OutboxDLQReasonMaxRedeliveries, failure)
			return processResult{ack: true}
		}
	}

	_ = c.idempotency.Delete(ctx, releaseFundsConsumer, eventID)
	return processResult{nack: true}
}

func (c *Consumer) deadLetter(logCtx context.Context, msg *pubsub.Message, eventID uuid.UUID, reason enums.OutboxDLQErrorReason, failure error) {
	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventBidOutbid,
		AggregateType: enums.AggregateBid,
		Payload:       json.RawMessage(msg.Data),
		ErrorReason:   reason,
	}
	if aggregateID, err := uuid.Parse(msg.Attributes["aggregate_id"]); err == nil {
		entry.AggregateID = aggregateID
	}
	if failure != nil {
		message := failure.Error()
		entry.ErrorMessage = &message
	}
	if err := c.dlq.Insert(context.WithoutCancel(logCtx), entry); err != nil {
		c.logg.Error(logCtx, "dead letter insert failed", err)
	}
	if c.metrics != nil {
		c.metrics.IncDeadLetter(releaseFundsConsumer, string(reason))
	}
}

func (c *Consumer) recordOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.IncOutcome(releaseFundsConsumer, outcome)
	}
}

var payloadDecoders = func() *outbox.DecoderRegistry {
	r := outbox.NewDecoderRegistry()
	r.Register(enums.EventBidOutbid, 1, func(data json.RawMessage) (interface{}, error) {
		var p payloads.BidOutbidEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	})
	return r
}()

func decodePayload(envelope outbox.PayloadEnvelope) (payloads.BidOutbidEvent, error) {
	var payload payloads.BidOutbidEvent
	if len(envelope.Data) == 0 {
		return payload, fmt.Errorf("empty payload")
	}
	decoded, err := payloadDecoders.Decode(enums.EventBidOutbid, envelope.Version, envelope.Data)
	if err != nil {
		return payload, err
	}
	typed, ok := decoded.(*payloads.BidOutbidEvent)
	if !ok {
		return payload, fmt.Errorf("unexpected payload type %T", decoded)
	}
	payload = *typed
	if payload.OriginalBidID == uuid.Nil {
		return payload, fmt.Errorf("original bid id missing")
	}
	if payload.OutbidUserID == uuid.Nil {
		return payload, fmt.Errorf("outbid user id missing")
	}
	if payload.AuctionID == uuid.Nil {
		return payload, fmt.Errorf("auction id missing")
	}
	if !payload.AmountToRelease.IsPositive() {
		return payload, fmt.Errorf("amount to release must be positive")
	}
	return payload, nil
}
