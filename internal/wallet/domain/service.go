package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"github.com/minutepay/minutepay/pkg/db/pagination"
)

var ErrInvalidAmount = errors.New("invalid_amount")

// Service is the user facing wallet surface: top ups, withdrawal requests
// and statement reads. All postings go through the ledger.
type Service interface {
	Deposit(ctx context.Context, userID snowflake.ID, amount int64) (*ledgerdomain.LedgerEntry, error)
	Withdraw(ctx context.Context, userID snowflake.ID, amount int64) (*ledgerdomain.LedgerEntry, error)
	Balance(ctx context.Context, userID snowflake.ID) (int64, error)
	Entries(ctx context.Context, userID snowflake.ID, filter ledgerdomain.EntryFilter) ([]*ledgerdomain.LedgerEntry, *pagination.PageInfo, error)
}
