package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	"github.com/minutepay/minutepay/internal/clock"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	obsmetrics "github.com/minutepay/minutepay/internal/observability/metrics"
	"github.com/minutepay/minutepay/pkg/db"
	"github.com/minutepay/minutepay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTxAttempts = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateAccount(ctx context.Context, userID snowflake.ID) (*ledgerdomain.Account, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}

	now := s.clock.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, user_id, balance, is_blocked, created_at, updated_at)
		 VALUES (?, ?, 0, FALSE, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		s.genID.Generate(),
		userID,
		now,
		now,
	).Error; err != nil {
		return nil, err
	}
	return s.GetAccountByUser(ctx, userID)
}

func (s *Service) GetAccount(ctx context.Context, accountID snowflake.ID) (*ledgerdomain.Account, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	var account ledgerdomain.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetAccountByUser(ctx context.Context, userID snowflake.ID) (*ledgerdomain.Account, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	var account ledgerdomain.Account
	if err := s.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetBalance(ctx context.Context, accountID snowflake.ID) (int64, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) SetAccountBlocked(ctx context.Context, accountID snowflake.ID, blocked bool) error {
	if accountID == 0 {
		return ledgerdomain.ErrInvalidAccount
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE accounts SET is_blocked = ?, updated_at = ? WHERE id = ?`,
		blocked,
		s.clock.Now().UTC(),
		accountID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrAccountNotFound
	}
	return nil
}

func (s *Service) PostEntry(ctx context.Context, accountID snowflake.ID, amount int64, kind ledgerdomain.EntryKind, relatedEntryID *snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	var entry *ledgerdomain.LedgerEntry
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			posted, err := s.postEntryTx(ctx, tx, accountID, amount, kind, relatedEntryID)
			if err != nil {
				return err
			}
			entry = posted
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordPosted(string(kind))
	return entry, nil
}

func (s *Service) PostEntryTx(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, amount int64, kind ledgerdomain.EntryKind, relatedEntryID *snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	return s.postEntryTx(ctx, tx, accountID, amount, kind, relatedEntryID)
}

func (s *Service) PostPair(ctx context.Context, debit ledgerdomain.PairLeg, credit ledgerdomain.PairLeg, extra ...ledgerdomain.PairLeg) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			posted, err := s.postPairTx(ctx, tx, debit, credit, extra...)
			if err != nil {
				return err
			}
			entries = posted
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		s.recordPosted(string(entry.Kind))
	}
	return entries, nil
}

func (s *Service) PostPairTx(ctx context.Context, tx *gorm.DB, debit ledgerdomain.PairLeg, credit ledgerdomain.PairLeg, extra ...ledgerdomain.PairLeg) ([]ledgerdomain.LedgerEntry, error) {
	return s.postPairTx(ctx, tx, debit, credit, extra...)
}

// ReverseEntry posts the exact negation of an existing entry as a new refund
// entry and marks the original reversed. The original row is never edited
// beyond its status.
func (s *Service) ReverseEntry(ctx context.Context, entryID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	if entryID == 0 {
		return nil, ledgerdomain.ErrEntryNotFound
	}

	var reversal *ledgerdomain.LedgerEntry
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			posted, err := s.reverseEntryTx(ctx, tx, entryID)
			if err != nil {
				return err
			}
			reversal = posted
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordPosted(string(ledgerdomain.KindRefund))
	return reversal, nil
}

func (s *Service) ReverseEntryTx(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	return s.reverseEntryTx(ctx, tx, entryID)
}

func (s *Service) reverseEntryTx(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	var original ledgerdomain.LedgerEntry
	if err := tx.WithContext(ctx).First(&original, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrEntryNotFound
		}
		return nil, err
	}
	if original.Status == ledgerdomain.StatusReversed {
		return nil, ledgerdomain.ErrEntryReversed
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE ledger_entries SET status = ? WHERE id = ? AND status <> ?`,
		ledgerdomain.StatusReversed,
		original.ID,
		ledgerdomain.StatusReversed,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ledgerdomain.ErrEntryReversed
	}

	return s.postEntryTx(ctx, tx, original.AccountID, -original.Amount, ledgerdomain.KindRefund, &original.ID)
}

func (s *Service) GetEntry(ctx context.Context, entryID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	if entryID == 0 {
		return nil, ledgerdomain.ErrEntryNotFound
	}
	var entry ledgerdomain.LedgerEntry
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Service) ListEntries(ctx context.Context, accountID snowflake.ID, filter ledgerdomain.EntryFilter) ([]*ledgerdomain.LedgerEntry, *pagination.PageInfo, error) {
	if accountID == 0 {
		return nil, nil, ledgerdomain.ErrInvalidAccount
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	query := s.db.WithContext(ctx).
		Model(&ledgerdomain.LedgerEntry{}).
		Where("account_id = ?", accountID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if filter.Pagination.PageToken != "" {
		cursor, err := pagination.DecodeCursor(filter.Pagination.PageToken)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []*ledgerdomain.LedgerEntry
	if err := query.
		Order("created_at desc, id desc").
		Limit(int(pageSize) + 1).
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, pageSize, func(entry *ledgerdomain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(entries) > int(pageSize) {
		entries = entries[:pageSize]
	}
	return entries, pageInfo, nil
}

func (s *Service) postPairTx(ctx context.Context, tx *gorm.DB, debit ledgerdomain.PairLeg, credit ledgerdomain.PairLeg, extra ...ledgerdomain.PairLeg) ([]ledgerdomain.LedgerEntry, error) {
	if debit.Amount >= 0 || credit.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	sum := debit.Amount + credit.Amount
	for _, leg := range extra {
		sum += leg.Amount
	}
	if sum != 0 {
		return nil, ledgerdomain.ErrUnbalancedPair
	}

	debitEntry, err := s.postEntryTx(ctx, tx, debit.AccountID, debit.Amount, debit.Kind, nil)
	if err != nil {
		return nil, err
	}

	entries := []ledgerdomain.LedgerEntry{*debitEntry}
	for _, leg := range append([]ledgerdomain.PairLeg{credit}, extra...) {
		posted, err := s.postEntryTx(ctx, tx, leg.AccountID, leg.Amount, leg.Kind, &debitEntry.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *posted)
	}
	return entries, nil
}

// postEntryTx applies the balance delta and appends the entry. The conditional
// UPDATE is the only balance write path, so two concurrent debits of the same
// account cannot both pass the non-negative guard.
func (s *Service) postEntryTx(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, amount int64, kind ledgerdomain.EntryKind, relatedEntryID *snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if amount == 0 {
		s.recordReject("invalid_amount")
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if !ledgerdomain.ValidKind(kind) {
		s.recordReject("invalid_kind")
		return nil, ledgerdomain.ErrInvalidKind
	}

	now := s.clock.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET balance = balance + ?, updated_at = ?
		 WHERE id = ? AND balance + ? >= 0 AND (is_blocked = FALSE OR ? = TRUE)`,
		amount,
		now,
		accountID,
		amount,
		kind == ledgerdomain.KindRefund,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, s.diagnoseRejection(ctx, tx, accountID, amount)
	}

	entry := ledgerdomain.LedgerEntry{
		ID:             s.genID.Generate(),
		AccountID:      accountID,
		Amount:         amount,
		Kind:           kind,
		RelatedEntryID: relatedEntryID,
		Status:         ledgerdomain.StatusCompleted,
		CreatedAt:      now,
	}
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, account_id, amount, kind, related_entry_id, status, paid, created_at
		) VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)`,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		string(entry.Kind),
		entry.RelatedEntryID,
		string(entry.Status),
		entry.CreatedAt,
	).Error; err != nil {
		return nil, err
	}

	entryIDStr := entry.ID.String()
	if err := s.auditSvc.AuditLogTx(ctx, tx, string(auditdomain.ActorTypeSystem), nil, "ledger.entry_posted", "ledger_entry", &entryIDStr, map[string]any{
		"account_id": accountID.String(),
		"amount":     amount,
		"kind":       string(kind),
	}); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}

	return &entry, nil
}

func (s *Service) diagnoseRejection(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, amount int64) error {
	var account ledgerdomain.Account
	if err := tx.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordReject("account_not_found")
			return ledgerdomain.ErrAccountNotFound
		}
		return err
	}
	if account.IsBlocked {
		s.recordReject("account_blocked")
		return ledgerdomain.ErrAccountBlocked
	}
	if amount < 0 {
		s.recordReject("insufficient_funds")
		return ledgerdomain.ErrInsufficientFunds
	}
	s.recordReject("unknown")
	return ledgerdomain.ErrConcurrencyConflict
}

func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		if err == nil || !db.IsSerializationErr(err) {
			return err
		}
		s.log.Debug("retrying ledger transaction", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	s.recordReject("concurrency_conflict")
	return ledgerdomain.ErrConcurrencyConflict
}

func (s *Service) recordPosted(kind string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(kind)
	}
}

func (s *Service) recordReject(reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerReject(reason)
	}
}
