package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	auditrepository "github.com/minutepay/minutepay/internal/audit/repository"
	auditservice "github.com/minutepay/minutepay/internal/audit/service"
	"github.com/minutepay/minutepay/internal/clock"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"github.com/minutepay/minutepay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	svc   ledgerdomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&ledgerdomain.Account{}, &ledgerdomain.LedgerEntry{}, &auditdomain.AuditLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	fakeClock := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		AuditSvc: auditSvc,
	})
	return &ledgerFixture{svc: svc, db: dbConn, clock: fakeClock}
}

func newTestService(t *testing.T) ledgerdomain.Service {
	return newLedgerFixture(t).svc
}

func mustAccount(t *testing.T, svc ledgerdomain.Service, userID snowflake.ID) *ledgerdomain.Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

func mustDeposit(t *testing.T, svc ledgerdomain.Service, accountID snowflake.ID, amount int64) {
	t.Helper()
	if _, err := svc.PostEntry(context.Background(), accountID, amount, ledgerdomain.KindDeposit, nil); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}
}

func TestCreateAccountIdempotent(t *testing.T) {
	svc := newTestService(t)

	first := mustAccount(t, svc, 101)
	second := mustAccount(t, svc, 101)
	if first.ID != second.ID {
		t.Fatalf("expected one account per user, got %s and %s", first.ID, second.ID)
	}
	if first.Balance != 0 {
		t.Fatalf("expected zero opening balance, got %d", first.Balance)
	}
}

func TestPostEntryUpdatesBalance(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 102)

	mustDeposit(t, svc, account.ID, 5000)
	entry, err := svc.PostEntry(context.Background(), account.ID, -1200, ledgerdomain.KindCallPayment, nil)
	if err != nil {
		t.Fatalf("failed to post debit: %v", err)
	}
	if entry.Amount != -1200 {
		t.Fatalf("expected amount -1200, got %d", entry.Amount)
	}
	if entry.Status != ledgerdomain.StatusCompleted {
		t.Fatalf("expected completed status, got %s", entry.Status)
	}

	balance, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != 3800 {
		t.Fatalf("expected balance 3800, got %d", balance)
	}
}

func TestPostEntryRejectsZeroAmountAndUnknownKind(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 103)

	if _, err := svc.PostEntry(context.Background(), account.ID, 0, ledgerdomain.KindDeposit, nil); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.PostEntry(context.Background(), account.ID, 100, ledgerdomain.EntryKind("bonus"), nil); !errors.Is(err, ledgerdomain.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestDebitNeverOverdraws(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 104)
	mustDeposit(t, svc, account.ID, 1000)

	if _, err := svc.PostEntry(context.Background(), account.ID, -1001, ledgerdomain.KindWithdrawal, nil); !errors.Is(err, ledgerdomain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance unchanged at 1000, got %d", balance)
	}
}

func TestBlockedAccountAcceptsOnlyRefund(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 105)
	mustDeposit(t, svc, account.ID, 1000)

	if err := svc.SetAccountBlocked(context.Background(), account.ID, true); err != nil {
		t.Fatalf("failed to block account: %v", err)
	}

	if _, err := svc.PostEntry(context.Background(), account.ID, 500, ledgerdomain.KindDeposit, nil); !errors.Is(err, ledgerdomain.ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked for deposit, got %v", err)
	}
	if _, err := svc.PostEntry(context.Background(), account.ID, -500, ledgerdomain.KindWithdrawal, nil); !errors.Is(err, ledgerdomain.ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked for withdrawal, got %v", err)
	}
	if _, err := svc.PostEntry(context.Background(), account.ID, 500, ledgerdomain.KindRefund, nil); err != nil {
		t.Fatalf("expected refund to pass on blocked account, got %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != 1500 {
		t.Fatalf("expected balance 1500, got %d", balance)
	}
}

func TestPostPairConservesTotal(t *testing.T) {
	svc := newTestService(t)
	viewer := mustAccount(t, svc, 106)
	streamer := mustAccount(t, svc, 107)
	mustDeposit(t, svc, viewer.ID, 10_000)

	entries, err := svc.PostPair(context.Background(),
		ledgerdomain.PairLeg{AccountID: viewer.ID, Amount: -3000, Kind: ledgerdomain.KindCallPayment},
		ledgerdomain.PairLeg{AccountID: streamer.ID, Amount: 3000, Kind: ledgerdomain.KindCallEarning},
	)
	if err != nil {
		t.Fatalf("failed to post pair: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].RelatedEntryID == nil || *entries[1].RelatedEntryID != entries[0].ID {
		t.Fatal("expected credit to reference the debit entry")
	}

	viewerBalance, _ := svc.GetBalance(context.Background(), viewer.ID)
	streamerBalance, _ := svc.GetBalance(context.Background(), streamer.ID)
	if viewerBalance+streamerBalance != 10_000 {
		t.Fatalf("expected total conserved at 10000, got %d", viewerBalance+streamerBalance)
	}
}

func TestPostPairRejectsUnbalancedLegs(t *testing.T) {
	svc := newTestService(t)
	viewer := mustAccount(t, svc, 108)
	streamer := mustAccount(t, svc, 109)
	mustDeposit(t, svc, viewer.ID, 10_000)

	_, err := svc.PostPair(context.Background(),
		ledgerdomain.PairLeg{AccountID: viewer.ID, Amount: -3000, Kind: ledgerdomain.KindCallPayment},
		ledgerdomain.PairLeg{AccountID: streamer.ID, Amount: 2000, Kind: ledgerdomain.KindCallEarning},
	)
	if !errors.Is(err, ledgerdomain.ErrUnbalancedPair) {
		t.Fatalf("expected ErrUnbalancedPair, got %v", err)
	}
}

func TestPostPairAtomicOnInsufficientFunds(t *testing.T) {
	svc := newTestService(t)
	viewer := mustAccount(t, svc, 110)
	streamer := mustAccount(t, svc, 111)
	mustDeposit(t, svc, viewer.ID, 100)

	_, err := svc.PostPair(context.Background(),
		ledgerdomain.PairLeg{AccountID: viewer.ID, Amount: -500, Kind: ledgerdomain.KindCallPayment},
		ledgerdomain.PairLeg{AccountID: streamer.ID, Amount: 500, Kind: ledgerdomain.KindCallEarning},
	)
	if !errors.Is(err, ledgerdomain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	streamerBalance, _ := svc.GetBalance(context.Background(), streamer.ID)
	if streamerBalance != 0 {
		t.Fatalf("expected streamer untouched, got %d", streamerBalance)
	}
	entries, _, err := svc.ListEntries(context.Background(), streamer.ID, ledgerdomain.EntryFilter{})
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries for streamer, got %d", len(entries))
	}
}

func TestReverseEntry(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 112)
	mustDeposit(t, svc, account.ID, 2000)

	debit, err := svc.PostEntry(context.Background(), account.ID, -700, ledgerdomain.KindGiftSent, nil)
	if err != nil {
		t.Fatalf("failed to post debit: %v", err)
	}

	reversal, err := svc.ReverseEntry(context.Background(), debit.ID)
	if err != nil {
		t.Fatalf("failed to reverse: %v", err)
	}
	if reversal.Amount != 700 {
		t.Fatalf("expected reversal amount 700, got %d", reversal.Amount)
	}
	if reversal.Kind != ledgerdomain.KindRefund {
		t.Fatalf("expected refund kind, got %s", reversal.Kind)
	}
	if reversal.RelatedEntryID == nil || *reversal.RelatedEntryID != debit.ID {
		t.Fatal("expected reversal to reference the original entry")
	}

	original, err := svc.GetEntry(context.Background(), debit.ID)
	if err != nil {
		t.Fatalf("failed to reload original: %v", err)
	}
	if original.Status != ledgerdomain.StatusReversed {
		t.Fatalf("expected original status reversed, got %s", original.Status)
	}
	if original.Amount != -700 {
		t.Fatalf("expected original amount untouched, got %d", original.Amount)
	}

	balance, _ := svc.GetBalance(context.Background(), account.ID)
	if balance != 2000 {
		t.Fatalf("expected balance restored to 2000, got %d", balance)
	}

	if _, err := svc.ReverseEntry(context.Background(), debit.ID); !errors.Is(err, ledgerdomain.ErrEntryReversed) {
		t.Fatalf("expected ErrEntryReversed on second reversal, got %v", err)
	}
}

func TestReverseDebitCreditsBlockedAccount(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 113)
	mustDeposit(t, svc, account.ID, 2000)

	debit, err := svc.PostEntry(context.Background(), account.ID, -900, ledgerdomain.KindCallPayment, nil)
	if err != nil {
		t.Fatalf("failed to post debit: %v", err)
	}
	if err := svc.SetAccountBlocked(context.Background(), account.ID, true); err != nil {
		t.Fatalf("failed to block account: %v", err)
	}

	if _, err := svc.ReverseEntry(context.Background(), debit.ID); err != nil {
		t.Fatalf("expected reversal to credit blocked account, got %v", err)
	}
	balance, _ := svc.GetBalance(context.Background(), account.ID)
	if balance != 2000 {
		t.Fatalf("expected balance restored to 2000, got %d", balance)
	}
}

func TestListEntriesFiltersByKind(t *testing.T) {
	svc := newTestService(t)
	account := mustAccount(t, svc, 114)
	mustDeposit(t, svc, account.ID, 5000)
	mustDeposit(t, svc, account.ID, 1000)
	if _, err := svc.PostEntry(context.Background(), account.ID, -500, ledgerdomain.KindWithdrawal, nil); err != nil {
		t.Fatalf("failed to withdraw: %v", err)
	}

	deposits, _, err := svc.ListEntries(context.Background(), account.ID, ledgerdomain.EntryFilter{Kind: ledgerdomain.KindDeposit})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(deposits) != 2 {
		t.Fatalf("expected 2 deposits, got %d", len(deposits))
	}
	for _, entry := range deposits {
		if entry.Kind != ledgerdomain.KindDeposit {
			t.Fatalf("unexpected kind %s", entry.Kind)
		}
	}
}

func TestPostEntryStampsInjectedClock(t *testing.T) {
	f := newLedgerFixture(t)
	account := mustAccount(t, f.svc, 115)

	f.clock.Advance(48 * time.Hour)
	entry, err := f.svc.PostEntry(context.Background(), account.ID, 300, ledgerdomain.KindDeposit, nil)
	if err != nil {
		t.Fatalf("failed to post entry: %v", err)
	}

	want := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)
	if !entry.CreatedAt.Equal(want) {
		t.Fatalf("expected created_at %s, got %s", want, entry.CreatedAt)
	}
}

func TestPostEntryWritesAuditRow(t *testing.T) {
	f := newLedgerFixture(t)
	account := mustAccount(t, f.svc, 116)

	entry, err := f.svc.PostEntry(context.Background(), account.ID, 400, ledgerdomain.KindDeposit, nil)
	if err != nil {
		t.Fatalf("failed to post entry: %v", err)
	}

	var count int64
	if err := f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ? AND target_id = ?", "ledger.entry_posted", entry.ID.String()).
		Count(&count).Error; err != nil {
		t.Fatalf("failed to count audit rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one audit row for the entry, got %d", count)
	}
}

func TestPostEntryUnknownAccount(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.PostEntry(context.Background(), 999999, 100, ledgerdomain.KindDeposit, nil); !errors.Is(err, ledgerdomain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.GetEntry(context.Background(), 0); !errors.Is(err, ledgerdomain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}
