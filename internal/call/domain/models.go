package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CallStatus string

const (
	StatusPending   CallStatus = "pending"
	StatusActive    CallStatus = "active"
	StatusEnded     CallStatus = "ended"
	StatusCancelled CallStatus = "cancelled"
)

// Call is one pay-per-minute session between a viewer and a streamer.
type Call struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	StreamerID      snowflake.ID `gorm:"not null;index:ix_calls_streamer"`
	ViewerID        snowflake.ID `gorm:"not null;index:ix_calls_viewer"`
	RatePerMinute   int64        `gorm:"not null"`
	Status          CallStatus   `gorm:"type:text;not null;default:pending"`
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int64 `gorm:"not null;default:0"`
	TotalCost       int64 `gorm:"not null;default:0"`
	SettledAmount   int64 `gorm:"not null;default:0"`
	PaymentEntryID  *snowflake.ID
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Call) TableName() string { return "calls" }

// Settlement is the outcome of ending a call.
type Settlement struct {
	Call    *Call
	Partial bool
}
