package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusPaid      PaymentStatus = "paid"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// ScheduledPayment is one payout produced by the sweep for a streamer's
// matured earnings. Failed payments stay as history; the underlying entries
// are picked up again by the next sweep.
type ScheduledPayment struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	StreamerID       snowflake.ID  `gorm:"not null;index"`
	Amount           int64         `gorm:"not null"`
	PeriodStart      time.Time     `gorm:"not null"`
	PeriodEnd        time.Time     `gorm:"not null"`
	DueDate          time.Time     `gorm:"not null"`
	Status           PaymentStatus `gorm:"type:text;not null;default:pending"`
	PayoutEntryID    *snowflake.ID `gorm:"index"`
	PaymentReference *string       `gorm:"type:text"`
	LastError        *string       `gorm:"type:text"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ScheduledPayment) TableName() string { return "scheduled_payments" }

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Eligible int
	Paid     int
	Failed   int
}
