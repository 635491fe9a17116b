package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/pkg/db/pagination"
)

// PlatformUserID owns the platform revenue account. Commission postings
// credit it so every transfer stays fully double entry.
const PlatformUserID snowflake.ID = 1

// EntryKind classifies what a ledger entry represents.
type EntryKind string

const (
	KindCallPayment  EntryKind = "call_payment"
	KindCallEarning  EntryKind = "call_earning"
	KindGiftSent     EntryKind = "gift_sent"
	KindGiftReceived EntryKind = "gift_received"
	KindPlatformFee  EntryKind = "platform_fee"
	KindDeposit      EntryKind = "deposit"
	KindWithdrawal   EntryKind = "withdrawal"
	KindRefund       EntryKind = "refund"
	KindPayout       EntryKind = "payout"
)

// ValidKind reports whether kind is one of the known entry kinds.
func ValidKind(kind EntryKind) bool {
	switch kind {
	case KindCallPayment, KindCallEarning, KindGiftSent, KindGiftReceived,
		KindPlatformFee, KindDeposit, KindWithdrawal, KindRefund, KindPayout:
		return true
	}
	return false
}

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusReversed  EntryStatus = "reversed"
)

// Account holds a user's wallet balance in the smallest currency unit.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex"`
	Balance   int64        `gorm:"not null;default:0"`
	IsBlocked bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// LedgerEntry is an immutable posting against an account. Negative amounts
// debit the account, positive amounts credit it.
type LedgerEntry struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	AccountID      snowflake.ID  `gorm:"not null;index"`
	Amount         int64         `gorm:"not null"`
	Kind           EntryKind     `gorm:"type:text;not null;index"`
	RelatedEntryID *snowflake.ID `gorm:"index"`
	Status         EntryStatus   `gorm:"type:text;not null"`
	Paid           bool          `gorm:"not null;default:false"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// PairLeg is one posting of an atomic multi-leg transfer.
type PairLeg struct {
	AccountID snowflake.ID
	Amount    int64
	Kind      EntryKind
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	Kind   EntryKind
	Status EntryStatus
	From   time.Time
	To     time.Time

	Pagination pagination.Pagination
}
