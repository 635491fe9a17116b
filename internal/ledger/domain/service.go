package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/pkg/db/pagination"
	"gorm.io/gorm"
)

// Service is the single writer for accounts and ledger entries. All money
// movement in the engine goes through it.
type Service interface {
	CreateAccount(ctx context.Context, userID snowflake.ID) (*Account, error)
	GetAccount(ctx context.Context, accountID snowflake.ID) (*Account, error)
	GetAccountByUser(ctx context.Context, userID snowflake.ID) (*Account, error)
	GetBalance(ctx context.Context, accountID snowflake.ID) (int64, error)
	SetAccountBlocked(ctx context.Context, accountID snowflake.ID, blocked bool) error

	PostEntry(ctx context.Context, accountID snowflake.ID, amount int64, kind EntryKind, relatedEntryID *snowflake.ID) (*LedgerEntry, error)
	PostPair(ctx context.Context, debit PairLeg, credit PairLeg, extra ...PairLeg) ([]LedgerEntry, error)
	ReverseEntry(ctx context.Context, entryID snowflake.ID) (*LedgerEntry, error)

	GetEntry(ctx context.Context, entryID snowflake.ID) (*LedgerEntry, error)
	ListEntries(ctx context.Context, accountID snowflake.ID, filter EntryFilter) ([]*LedgerEntry, *pagination.PageInfo, error)

	// PostEntryTx posts inside the caller's transaction so domain services
	// can combine a posting with their own state transition atomically.
	PostEntryTx(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, amount int64, kind EntryKind, relatedEntryID *snowflake.ID) (*LedgerEntry, error)
	PostPairTx(ctx context.Context, tx *gorm.DB, debit PairLeg, credit PairLeg, extra ...PairLeg) ([]LedgerEntry, error)
	ReverseEntryTx(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) (*LedgerEntry, error)
}
