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
	"github.com/minutepay/minutepay/internal/config"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	ledgerservice "github.com/minutepay/minutepay/internal/ledger/service"
	"github.com/minutepay/minutepay/pkg/db"
	"go.uber.org/zap"
)

func newTestServices(t *testing.T) (frauddomain.Service, ledgerdomain.Service) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.LedgerEntry{},
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
	fakeClock := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		AuditSvc: auditSvc,
	})

	cfg := config.Config{
		Fraud: config.FraudConfig{
			Window:              24 * time.Hour,
			MaxWithdrawals:      2,
			MaxWithdrawalAmount: 1000,
			MaxDeposits:         3,
			LargeGiftAmount:     5000,
		},
	}
	fraudSvc := NewService(Params{
		DB:        dbConn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Config:    cfg,
		LedgerSvc: ledgerSvc,
		AuditSvc:  auditSvc,
	})
	return fraudSvc, ledgerSvc
}

func TestEvaluateWithdrawalVelocity(t *testing.T) {
	fraudSvc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, 201)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	if _, err := ledgerSvc.PostEntry(ctx, account.ID, 10_000, ledgerdomain.KindDeposit, nil); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}

	// Two prior withdrawals in the window, the third crosses the limit.
	for i := 0; i < 2; i++ {
		if _, err := ledgerSvc.PostEntry(ctx, account.ID, -100, ledgerdomain.KindWithdrawal, nil); err != nil {
			t.Fatalf("failed to withdraw: %v", err)
		}
	}

	raised, err := fraudSvc.Evaluate(ctx, 201, account.ID, frauddomain.OpWithdrawal, 100)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(raised) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(raised))
	}
	if raised[0].FlagType != frauddomain.FlagWithdrawalVelocity {
		t.Fatalf("expected withdrawal_velocity, got %s", raised[0].FlagType)
	}
	if !raised[0].AutoGenerated {
		t.Fatal("expected auto generated flag")
	}
}

func TestEvaluateBelowThresholdRaisesNothing(t *testing.T) {
	fraudSvc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, 202)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	raised, err := fraudSvc.Evaluate(ctx, 202, account.ID, frauddomain.OpDeposit, 100)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(raised) != 0 {
		t.Fatalf("expected no flags, got %d", len(raised))
	}
}

func TestEvaluateLargeWithdrawalSeverity(t *testing.T) {
	fraudSvc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, 203)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	// 4x the single-withdrawal limit escalates to critical.
	raised, err := fraudSvc.Evaluate(ctx, 203, account.ID, frauddomain.OpWithdrawal, 4000)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(raised) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(raised))
	}
	if raised[0].FlagType != frauddomain.FlagLargeWithdrawal {
		t.Fatalf("expected large_withdrawal, got %s", raised[0].FlagType)
	}
	if raised[0].Severity != frauddomain.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", raised[0].Severity)
	}
}

func TestEvaluateLargeGift(t *testing.T) {
	fraudSvc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, 204)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	raised, err := fraudSvc.Evaluate(ctx, 204, account.ID, frauddomain.OpGift, 5000)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(raised) != 1 || raised[0].FlagType != frauddomain.FlagLargeGift {
		t.Fatalf("expected large_gift flag, got %+v", raised)
	}
}

func TestCreateFlagManual(t *testing.T) {
	fraudSvc, _ := newTestServices(t)
	ctx := context.Background()

	flag, err := fraudSvc.CreateFlag(ctx, 205, frauddomain.FlagManualReport, frauddomain.SeverityHigh, 900)
	if err != nil {
		t.Fatalf("create flag failed: %v", err)
	}
	if flag.AutoGenerated {
		t.Fatal("expected manual flag")
	}

	if _, err := fraudSvc.CreateFlag(ctx, 205, frauddomain.FlagManualReport, frauddomain.Severity("weird"), 900); !errors.Is(err, frauddomain.ErrInvalidSeverity) {
		t.Fatalf("expected ErrInvalidSeverity, got %v", err)
	}
}

func TestReviewFlagTerminal(t *testing.T) {
	fraudSvc, _ := newTestServices(t)
	ctx := context.Background()

	flag, err := fraudSvc.CreateFlag(ctx, 206, frauddomain.FlagManualReport, frauddomain.SeverityLow, 900)
	if err != nil {
		t.Fatalf("create flag failed: %v", err)
	}

	reviewed, err := fraudSvc.ReviewFlag(ctx, flag.ID, 901, frauddomain.ReviewDismiss)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if !reviewed.Reviewed || reviewed.ReviewAction == nil || *reviewed.ReviewAction != frauddomain.ReviewDismiss {
		t.Fatalf("expected dismissed flag, got %+v", reviewed)
	}

	if _, err := fraudSvc.ReviewFlag(ctx, flag.ID, 901, frauddomain.ReviewEscalate); !errors.Is(err, frauddomain.ErrFlagReviewed) {
		t.Fatalf("expected ErrFlagReviewed, got %v", err)
	}
}

func TestReviewBlockBlocksAccount(t *testing.T) {
	fraudSvc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, 207)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	flag, err := fraudSvc.CreateFlag(ctx, 207, frauddomain.FlagManualReport, frauddomain.SeverityCritical, 900)
	if err != nil {
		t.Fatalf("create flag failed: %v", err)
	}

	if _, err := fraudSvc.ReviewFlag(ctx, flag.ID, 901, frauddomain.ReviewBlock); err != nil {
		t.Fatalf("review failed: %v", err)
	}

	if _, err := ledgerSvc.PostEntry(ctx, account.ID, 100, ledgerdomain.KindDeposit, nil); !errors.Is(err, ledgerdomain.ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked after review block, got %v", err)
	}
}
