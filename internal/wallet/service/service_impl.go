package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	walletdomain "github.com/minutepay/minutepay/internal/wallet/domain"
	"github.com/minutepay/minutepay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	LedgerSvc ledgerdomain.Service
	FraudSvc  frauddomain.Service
}

type Service struct {
	log       *zap.Logger
	ledgerSvc ledgerdomain.Service
	fraudSvc  frauddomain.Service
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		log:       p.Log.Named("wallet.service"),
		ledgerSvc: p.LedgerSvc,
		fraudSvc:  p.FraudSvc,
	}
}

func (s *Service) Deposit(ctx context.Context, userID snowflake.ID, amount int64) (*ledgerdomain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	account, err := s.ledgerSvc.GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, userID, account.ID, frauddomain.OpDeposit, amount)
	return s.ledgerSvc.PostEntry(ctx, account.ID, amount, ledgerdomain.KindDeposit, nil)
}

func (s *Service) Withdraw(ctx context.Context, userID snowflake.ID, amount int64) (*ledgerdomain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	account, err := s.ledgerSvc.GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, userID, account.ID, frauddomain.OpWithdrawal, amount)
	return s.ledgerSvc.PostEntry(ctx, account.ID, -amount, ledgerdomain.KindWithdrawal, nil)
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	account, err := s.ledgerSvc.GetAccountByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) Entries(ctx context.Context, userID snowflake.ID, filter ledgerdomain.EntryFilter) ([]*ledgerdomain.LedgerEntry, *pagination.PageInfo, error) {
	account, err := s.ledgerSvc.GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.ledgerSvc.ListEntries(ctx, account.ID, filter)
}

// evaluate flags suspicious velocity but never rejects the operation itself.
func (s *Service) evaluate(ctx context.Context, userID, accountID snowflake.ID, op frauddomain.OpClass, amount int64) {
	if _, err := s.fraudSvc.Evaluate(ctx, userID, accountID, op, amount); err != nil {
		s.log.Warn("fraud evaluation failed",
			zap.String("user_id", userID.String()),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
}
