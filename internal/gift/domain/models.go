package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
)

// Gift is a catalog item viewers can send to streamers.
type Gift struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      string       `gorm:"type:text;not null;uniqueIndex"`
	Name      string       `gorm:"type:text;not null"`
	Price     int64        `gorm:"not null"`
	Active    bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Gift) TableName() string { return "gifts" }

// Transfer is the ledger outcome of a sent gift.
type Transfer struct {
	Gift           *Gift
	SenderEntry    ledgerdomain.LedgerEntry
	ReceiverEntry  ledgerdomain.LedgerEntry
	ReceiverAmount int64
	FeeAmount      int64
}
