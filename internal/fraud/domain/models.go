package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type FlagType string

const (
	FlagRapidDeposits          FlagType = "rapid_deposits"
	FlagWithdrawalVelocity     FlagType = "withdrawal_velocity"
	FlagLargeWithdrawal        FlagType = "large_withdrawal"
	FlagLargeGift              FlagType = "large_gift"
	FlagInsufficientSettlement FlagType = "insufficient_settlement"
	FlagManualReport           FlagType = "manual_report"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type ReviewAction string

const (
	ReviewDismiss  ReviewAction = "dismiss"
	ReviewEscalate ReviewAction = "escalate"
	ReviewBlock    ReviewAction = "block"
)

// OpClass is the operation class tracked by the rolling window counters.
type OpClass string

const (
	OpDeposit    OpClass = "deposit"
	OpWithdrawal OpClass = "withdrawal"
	OpGift       OpClass = "gift"
)

// FraudFlag records a suspicion against a user, auto raised by detection or
// filed manually by an operator.
type FraudFlag struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	UserID        snowflake.ID  `gorm:"not null;index"`
	FlagType      FlagType      `gorm:"type:text;not null"`
	Severity      Severity      `gorm:"type:text;not null"`
	Reviewed      bool          `gorm:"not null;default:false"`
	AutoGenerated bool          `gorm:"not null;default:true"`
	ReviewAction  *ReviewAction `gorm:"type:text"`
	ReviewedBy    *snowflake.ID
	ReviewedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FraudFlag) TableName() string { return "fraud_flags" }

// WindowStats is the rolling count and absolute amount for one account and
// operation class, including the operation under evaluation.
type WindowStats struct {
	Count  int64
	Amount int64
}
