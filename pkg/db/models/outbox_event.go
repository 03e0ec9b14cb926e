package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/evtrade/auctioncore/pkg/enums"
)

// OutboxEvent is a domain event queued in the same transaction as the state
// change it describes. The publisher drains rows where PublishedAt is null;
// the (event_type, aggregate_type, aggregate_id) unique index keeps emission
// at-most-once per aggregate.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Published reports whether the event has been handed to the broker.
func (e OutboxEvent) Published() bool {
	return e.PublishedAt != nil
}
