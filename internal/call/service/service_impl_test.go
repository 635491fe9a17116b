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
	calldomain "github.com/minutepay/minutepay/internal/call/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	fraudservice "github.com/minutepay/minutepay/internal/fraud/service"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	ledgerservice "github.com/minutepay/minutepay/internal/ledger/service"
	"github.com/minutepay/minutepay/pkg/db"
	"go.uber.org/zap"
)

type callFixture struct {
	svc       calldomain.Service
	ledgerSvc ledgerdomain.Service
	fraudSvc  frauddomain.Service
	clock     *clock.FakeClock
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.LedgerEntry{},
		&calldomain.Call{},
		&frauddomain.FraudFlag{},
		&auditdomain.AuditLog{},
	); err != nil {
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
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		AuditSvc: auditSvc,
	})
	fraudSvc := fraudservice.NewService(fraudservice.Params{
		DB:        dbConn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Config:    config.Config{Fraud: config.FraudConfig{Window: 24 * time.Hour, MaxWithdrawals: 100, MaxWithdrawalAmount: 1 << 40, MaxDeposits: 100, LargeGiftAmount: 1 << 40}},
		LedgerSvc: ledgerSvc,
		AuditSvc:  auditSvc,
	})

	callSvc := NewService(Params{
		DB:        dbConn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		LedgerSvc: ledgerSvc,
		FraudSvc:  fraudSvc,
		AuditSvc:  auditSvc,
	})

	return &callFixture{svc: callSvc, ledgerSvc: ledgerSvc, fraudSvc: fraudSvc, clock: fakeClock}
}

func (f *callFixture) fundViewer(t *testing.T, userID snowflake.ID, amount int64) snowflake.ID {
	t.Helper()
	account, err := f.ledgerSvc.CreateAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	if amount > 0 {
		if _, err := f.ledgerSvc.PostEntry(context.Background(), account.ID, amount, ledgerdomain.KindDeposit, nil); err != nil {
			t.Fatalf("failed to fund: %v", err)
		}
	}
	return account.ID
}

func TestCallLifecycleFullSettlement(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	viewerAccount := f.fundViewer(t, 301, 10_000)
	streamerAccount := f.fundViewer(t, 302, 0)

	call, err := f.svc.Create(ctx, 301, 302, 1000)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if call.Status != calldomain.StatusPending {
		t.Fatalf("expected pending, got %s", call.Status)
	}

	if _, err := f.svc.Start(ctx, call.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.clock.Advance(61 * time.Second)
	settlement, err := f.svc.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if settlement.Partial {
		t.Fatal("expected full settlement")
	}
	if settlement.Call.DurationSeconds != 61 {
		t.Fatalf("expected 61 seconds, got %d", settlement.Call.DurationSeconds)
	}
	if settlement.Call.TotalCost != 2000 {
		t.Fatalf("expected cost 2000, got %d", settlement.Call.TotalCost)
	}
	if settlement.Call.SettledAmount != 2000 {
		t.Fatalf("expected settled 2000, got %d", settlement.Call.SettledAmount)
	}

	viewerBalance, _ := f.ledgerSvc.GetBalance(ctx, viewerAccount)
	streamerBalance, _ := f.ledgerSvc.GetBalance(ctx, streamerAccount)
	if viewerBalance != 8000 || streamerBalance != 2000 {
		t.Fatalf("expected balances 8000/2000, got %d/%d", viewerBalance, streamerBalance)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	viewerAccount := f.fundViewer(t, 303, 10_000)
	f.fundViewer(t, 304, 0)

	call, err := f.svc.Create(ctx, 303, 304, 1000)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.svc.Start(ctx, call.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	first, err := f.svc.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("first end failed: %v", err)
	}

	f.clock.Advance(time.Hour)
	second, err := f.svc.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("second end failed: %v", err)
	}
	if second.Call.TotalCost != first.Call.TotalCost || second.Call.SettledAmount != first.Call.SettledAmount {
		t.Fatalf("expected stored settlement, got %+v vs %+v", second.Call, first.Call)
	}

	viewerBalance, _ := f.ledgerSvc.GetBalance(ctx, viewerAccount)
	if viewerBalance != 8000 {
		t.Fatalf("expected single charge, balance %d", viewerBalance)
	}
}

func TestEndPartialSettlementFlagsViewer(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	viewerAccount := f.fundViewer(t, 305, 1500)
	streamerAccount := f.fundViewer(t, 306, 0)

	call, err := f.svc.Create(ctx, 305, 306, 1000)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.svc.Start(ctx, call.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.clock.Advance(5 * time.Minute)
	settlement, err := f.svc.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if !settlement.Partial {
		t.Fatal("expected partial settlement")
	}
	if settlement.Call.TotalCost != 5000 {
		t.Fatalf("expected cost 5000, got %d", settlement.Call.TotalCost)
	}
	if settlement.Call.SettledAmount != 1500 {
		t.Fatalf("expected settled 1500, got %d", settlement.Call.SettledAmount)
	}

	viewerBalance, _ := f.ledgerSvc.GetBalance(ctx, viewerAccount)
	streamerBalance, _ := f.ledgerSvc.GetBalance(ctx, streamerAccount)
	if viewerBalance != 0 || streamerBalance != 1500 {
		t.Fatalf("expected balances 0/1500, got %d/%d", viewerBalance, streamerBalance)
	}

	flags, err := f.fraudSvc.ListOpenFlags(ctx, 305)
	if err != nil {
		t.Fatalf("list flags failed: %v", err)
	}
	if len(flags) != 1 || flags[0].FlagType != frauddomain.FlagInsufficientSettlement {
		t.Fatalf("expected insufficient_settlement flag, got %+v", flags)
	}
}

func TestLifecycleGuards(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	f.fundViewer(t, 307, 1000)
	f.fundViewer(t, 308, 0)

	call, err := f.svc.Create(ctx, 307, 308, 500)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Ending a pending call is not allowed.
	if _, err := f.svc.End(ctx, call.ID); !errors.Is(err, calldomain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, call.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != calldomain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if _, err := f.svc.Start(ctx, call.ID); !errors.Is(err, calldomain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState starting cancelled call, got %v", err)
	}
}

func TestCreateRejectsBlockedViewerAndBadRate(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	viewerAccount := f.fundViewer(t, 309, 1000)
	f.fundViewer(t, 310, 0)

	if _, err := f.svc.Create(ctx, 309, 310, 0); !errors.Is(err, calldomain.ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := f.svc.Create(ctx, 309, 309, 500); !errors.Is(err, calldomain.ErrInvalidParticipants) {
		t.Fatalf("expected ErrInvalidParticipants, got %v", err)
	}

	if err := f.ledgerSvc.SetAccountBlocked(ctx, viewerAccount, true); err != nil {
		t.Fatalf("failed to block: %v", err)
	}
	if _, err := f.svc.Create(ctx, 309, 310, 500); !errors.Is(err, ledgerdomain.ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
}

func TestQuoteLiveAndStored(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	f.fundViewer(t, 311, 10_000)
	f.fundViewer(t, 312, 0)

	call, err := f.svc.Create(ctx, 311, 312, 1000)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	quote, err := f.svc.Quote(ctx, call.ID)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.TotalCost != 0 {
		t.Fatalf("expected zero quote for pending call, got %d", quote.TotalCost)
	}

	if _, err := f.svc.Start(ctx, call.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(90 * time.Second)

	quote, err = f.svc.Quote(ctx, call.ID)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.DurationSeconds != 90 || quote.BilledMinutes != 2 || quote.TotalCost != 2000 {
		t.Fatalf("unexpected live quote %+v", quote)
	}

	if _, err := f.svc.End(ctx, call.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	f.clock.Advance(time.Hour)
	quote, err = f.svc.Quote(ctx, call.ID)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.TotalCost != 2000 {
		t.Fatalf("expected stored quote 2000, got %d", quote.TotalCost)
	}
}
