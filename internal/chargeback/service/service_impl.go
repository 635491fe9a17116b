package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	chargebackdomain "github.com/minutepay/minutepay/internal/chargeback/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/events"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service
	Outbox    *events.Outbox `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
	outbox    *events.Outbox
}

func NewService(p Params) chargebackdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("chargeback.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
		outbox:    p.Outbox,
	}
}

func (s *Service) File(ctx context.Context, entryID snowflake.ID, reason string) (*chargebackdomain.Chargeback, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, chargebackdomain.ErrInvalidReason
	}

	entry, err := s.ledgerSvc.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	account, err := s.ledgerSvc.GetAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}

	var open int64
	if err := s.db.WithContext(ctx).
		Model(&chargebackdomain.Chargeback{}).
		Where("entry_id = ? AND status IN ?", entryID, []string{
			string(chargebackdomain.StatusPending),
			string(chargebackdomain.StatusInvestigating),
		}).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, chargebackdomain.ErrDuplicateChargeback
	}

	amount := entry.Amount
	if amount < 0 {
		amount = -amount
	}
	chargeback := chargebackdomain.Chargeback{
		ID:        s.genID.Generate(),
		EntryID:   entryID,
		UserID:    account.UserID,
		Amount:    amount,
		Reason:    reason,
		Status:    chargebackdomain.StatusPending,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO chargebacks (id, entry_id, user_id, amount, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chargeback.ID,
		chargeback.EntryID,
		chargeback.UserID,
		chargeback.Amount,
		chargeback.Reason,
		string(chargeback.Status),
		chargeback.CreatedAt,
	).Error; err != nil {
		return nil, err
	}

	chargebackIDStr := chargeback.ID.String()
	userIDStr := account.UserID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &userIDStr, "chargeback.filed", "chargeback", &chargebackIDStr, map[string]any{
		"entry_id": entryID.String(),
		"amount":   amount,
		"reason":   reason,
	}); err != nil {
		s.log.Warn("failed to write chargeback audit log", zap.Error(err))
	}

	return &chargeback, nil
}

func (s *Service) Investigate(ctx context.Context, chargebackID, operatorID snowflake.ID) (*chargebackdomain.Chargeback, error) {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE chargebacks SET status = ? WHERE id = ? AND status = ?`,
		string(chargebackdomain.StatusInvestigating),
		chargebackID,
		string(chargebackdomain.StatusPending),
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, chargebackID); err != nil {
			return nil, err
		}
		return nil, chargebackdomain.ErrInvalidState
	}
	return s.Get(ctx, chargebackID)
}

func (s *Service) Decide(ctx context.Context, chargebackID snowflake.ID, decision chargebackdomain.Decision, partialAmount int64, deciderID snowflake.ID, notes string) (*chargebackdomain.Chargeback, error) {
	switch decision {
	case chargebackdomain.DecisionRefund, chargebackdomain.DecisionKeep:
	case chargebackdomain.DecisionPartial:
		if partialAmount <= 0 {
			return nil, chargebackdomain.ErrInvalidAmount
		}
	default:
		return nil, chargebackdomain.ErrInvalidDecision
	}

	chargeback, err := s.Get(ctx, chargebackID)
	if err != nil {
		return nil, err
	}
	if decision == chargebackdomain.DecisionPartial && partialAmount > chargeback.Amount {
		return nil, chargebackdomain.ErrInvalidAmount
	}

	finalStatus := chargebackdomain.StatusAccepted
	if decision == chargebackdomain.DecisionKeep {
		finalStatus = chargebackdomain.StatusRejected
	}

	notes = strings.TrimSpace(notes)
	var refundEntryID *snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		// Terminal guard: a decided chargeback can never be decided again.
		result := tx.WithContext(ctx).Exec(
			`UPDATE chargebacks
			 SET status = ?, admin_decision = ?, notes = ?, resolved_at = ?
			 WHERE id = ? AND status IN (?, ?)`,
			string(finalStatus),
			string(decision),
			notes,
			now,
			chargebackID,
			string(chargebackdomain.StatusPending),
			string(chargebackdomain.StatusInvestigating),
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return chargebackdomain.ErrInvalidState
		}

		switch decision {
		case chargebackdomain.DecisionRefund:
			reversal, err := s.ledgerSvc.ReverseEntryTx(ctx, tx, chargeback.EntryID)
			if err != nil {
				return err
			}
			refundEntryID = &reversal.ID
		case chargebackdomain.DecisionPartial:
			original, err := s.ledgerSvc.GetEntry(ctx, chargeback.EntryID)
			if err != nil {
				return err
			}
			refundAmount := partialAmount
			if original.Amount > 0 {
				refundAmount = -partialAmount
			}
			posted, err := s.ledgerSvc.PostEntryTx(ctx, tx, original.AccountID, refundAmount, ledgerdomain.KindRefund, &original.ID)
			if err != nil {
				return err
			}
			refundEntryID = &posted.ID
		}

		if refundEntryID != nil && s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				Type:   events.EventRefundIssued,
				UserID: chargeback.UserID,
				Payload: map[string]any{
					"chargeback_id": chargebackID.String(),
					"entry_id":      chargeback.EntryID.String(),
					"decision":      string(decision),
				},
				DedupeKey: "chargeback_refund:" + chargebackID.String(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chargebackIDStr := chargebackID.String()
	deciderStr := deciderID.String()
	metadata := map[string]any{
		"decision": string(decision),
		"status":   string(finalStatus),
	}
	if decision == chargebackdomain.DecisionPartial {
		metadata["partial_amount"] = partialAmount
	}
	if refundEntryID != nil {
		metadata["refund_entry_id"] = refundEntryID.String()
	}
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeOperator), &deciderStr, "chargeback.decided", "chargeback", &chargebackIDStr, metadata); err != nil {
		s.log.Warn("failed to write chargeback audit log", zap.Error(err))
	}

	return s.Get(ctx, chargebackID)
}

func (s *Service) Get(ctx context.Context, chargebackID snowflake.ID) (*chargebackdomain.Chargeback, error) {
	if chargebackID == 0 {
		return nil, chargebackdomain.ErrChargebackNotFound
	}
	var chargeback chargebackdomain.Chargeback
	if err := s.db.WithContext(ctx).First(&chargeback, "id = ?", chargebackID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chargebackdomain.ErrChargebackNotFound
		}
		return nil, err
	}
	return &chargeback, nil
}
