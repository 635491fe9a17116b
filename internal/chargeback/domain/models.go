package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusInvestigating Status = "investigating"
	StatusAccepted      Status = "accepted"
	StatusRejected      Status = "rejected"
)

type Decision string

const (
	DecisionRefund  Decision = "refund"
	DecisionKeep    Decision = "keep"
	DecisionPartial Decision = "partial"
)

// Chargeback is a dispute against a single ledger entry. Accepted and
// rejected are terminal.
type Chargeback struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	EntryID       snowflake.ID `gorm:"not null;index"`
	UserID        snowflake.ID `gorm:"not null;index"`
	Amount        int64        `gorm:"not null"`
	Reason        string       `gorm:"type:text;not null"`
	Status        Status       `gorm:"type:text;not null;default:pending"`
	AdminDecision *Decision    `gorm:"type:text"`
	Notes         *string      `gorm:"type:text"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Chargeback) TableName() string { return "chargebacks" }
