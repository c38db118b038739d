package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/enums"
)

// OutboxEvent is one row of outbox_events. Rows are written in the same
// transaction as the order change they describe and are only ever updated by
// the publisher (published_at, attempt_count, last_error).
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// BeforeCreate assigns the id client-side; sqlite has no gen_random_uuid.
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Attributes are the Pub/Sub message attributes for this row. Subscribers
// route on event_type without decoding the payload.
func (e OutboxEvent) Attributes(eventID string) map[string]string {
	attrs := map[string]string{
		"event_type":     string(e.EventType),
		"aggregate_type": string(e.AggregateType),
		"aggregate_id":   e.AggregateID.String(),
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if eventID != "" {
		attrs["event_id"] = eventID
	}
	return attrs
}

func (e OutboxEvent) LogFields() map[string]any {
	fields := map[string]any{
		"outbox_id":      e.ID.String(),
		"event_type":     string(e.EventType),
		"aggregate_type": string(e.AggregateType),
		"aggregate_id":   e.AggregateID.String(),
		"attempt_count":  e.AttemptCount,
	}
	if e.LastError != nil {
		fields["last_error"] = *e.LastError
	}
	return fields
}
