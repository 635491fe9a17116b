package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventGiftReceived    = "gift.received"
	EventCallSettled     = "call.settled"
	EventPayoutInitiated = "payout.initiated"
	EventRefundIssued    = "refund.issued"
)

// Event is an outbound notification appended inside the same transaction as
// the ledger write it describes.
type Event struct {
	Type      string
	UserID    snowflake.ID
	Payload   map[string]any
	DedupeKey string
}

// OutboxEvent is the persisted form of an Event.
type OutboxEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"type:text;not null"`
	UserID      snowflake.ID      `gorm:"not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb"`
	DedupeKey   string            `gorm:"type:text;not null;uniqueIndex"`
	PublishedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
