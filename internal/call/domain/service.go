package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/internal/billing"
)

// Service drives the call lifecycle and settles the session against the
// ledger when it ends.
type Service interface {
	Create(ctx context.Context, viewerID, streamerID snowflake.ID, ratePerMinute int64) (*Call, error)
	Start(ctx context.Context, callID snowflake.ID) (*Call, error)
	Cancel(ctx context.Context, callID snowflake.ID) (*Call, error)
	End(ctx context.Context, callID snowflake.ID) (*Settlement, error)
	Quote(ctx context.Context, callID snowflake.ID) (billing.Quote, error)
	Get(ctx context.Context, callID snowflake.ID) (*Call, error)
}
