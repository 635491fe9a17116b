package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service moves gift purchases through the ledger and keeps the catalog.
type Service interface {
	Send(ctx context.Context, senderID, receiverID, giftID snowflake.ID, message string) (*Transfer, error)
	GetGift(ctx context.Context, giftID snowflake.ID) (*Gift, error)
	ListActive(ctx context.Context) ([]*Gift, error)
	CreateGift(ctx context.Context, code, name string, price int64) (*Gift, error)
}
