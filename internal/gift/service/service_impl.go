package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	"github.com/minutepay/minutepay/internal/events"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	giftdomain "github.com/minutepay/minutepay/internal/gift/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"github.com/minutepay/minutepay/pkg/db"
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
	Config    config.Config
	LedgerSvc ledgerdomain.Service
	FraudSvc  frauddomain.Service
	AuditSvc  auditdomain.Service
	Outbox    *events.Outbox `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	shareBps  int64
	ledgerSvc ledgerdomain.Service
	fraudSvc  frauddomain.Service
	auditSvc  auditdomain.Service
	outbox    *events.Outbox
}

func NewService(p Params) giftdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("gift.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		shareBps:  p.Config.Billing.GiftReceiverShareBps,
		ledgerSvc: p.LedgerSvc,
		fraudSvc:  p.FraudSvc,
		auditSvc:  p.AuditSvc,
		outbox:    p.Outbox,
	}
}

// Send debits the sender the full price and splits it between the receiver
// and the platform revenue account in one transaction.
func (s *Service) Send(ctx context.Context, senderID, receiverID, giftID snowflake.ID, message string) (*giftdomain.Transfer, error) {
	if senderID == 0 || receiverID == 0 || senderID == receiverID {
		return nil, giftdomain.ErrInvalidParticipants
	}

	gift, err := s.GetGift(ctx, giftID)
	if err != nil {
		return nil, err
	}

	senderAccount, err := s.ledgerSvc.GetAccountByUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	receiverAccount, err := s.ledgerSvc.GetAccountByUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	platformAccount, err := s.ledgerSvc.CreateAccount(ctx, ledgerdomain.PlatformUserID)
	if err != nil {
		return nil, err
	}

	if _, err := s.fraudSvc.Evaluate(ctx, senderID, senderAccount.ID, frauddomain.OpGift, gift.Price); err != nil {
		s.log.Warn("gift fraud evaluation failed", zap.String("sender_id", senderID.String()), zap.Error(err))
	}

	receiverAmount := gift.Price * s.shareBps / 10_000
	if receiverAmount == 0 {
		// The share floor would zero out the receiver leg for very cheap
		// gifts. Credit the full price instead of rejecting the send.
		receiverAmount = gift.Price
	}
	feeAmount := gift.Price - receiverAmount

	legs := []ledgerdomain.PairLeg{
		{AccountID: receiverAccount.ID, Amount: receiverAmount, Kind: ledgerdomain.KindGiftReceived},
	}
	if feeAmount > 0 {
		legs = append(legs, ledgerdomain.PairLeg{AccountID: platformAccount.ID, Amount: feeAmount, Kind: ledgerdomain.KindPlatformFee})
	}

	transferID := s.genID.Generate()
	var entries []ledgerdomain.LedgerEntry
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			posted, err := s.ledgerSvc.PostPairTx(ctx, tx,
				ledgerdomain.PairLeg{AccountID: senderAccount.ID, Amount: -gift.Price, Kind: ledgerdomain.KindGiftSent},
				legs[0],
				legs[1:]...,
			)
			if err != nil {
				return err
			}
			entries = posted

			if s.outbox != nil {
				return s.outbox.PublishTx(ctx, tx, events.Event{
					Type:   events.EventGiftReceived,
					UserID: receiverID,
					Payload: map[string]any{
						"gift_code": gift.Code,
						"sender_id": senderID.String(),
						"amount":    receiverAmount,
						"message":   strings.TrimSpace(message),
					},
					DedupeKey: "gift_received:" + transferID.String(),
				})
			}
			return nil
		})
		if err == nil || !db.IsSerializationErr(err) || attempt >= 3 {
			break
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	if err != nil {
		if db.IsSerializationErr(err) {
			return nil, ledgerdomain.ErrConcurrencyConflict
		}
		return nil, err
	}

	giftIDStr := gift.ID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), ptr(senderID.String()), "gift.sent", "gift", &giftIDStr, map[string]any{
		"receiver_id":     receiverID.String(),
		"price":           gift.Price,
		"receiver_amount": receiverAmount,
		"fee_amount":      feeAmount,
	}); err != nil {
		s.log.Warn("failed to write gift audit log", zap.Error(err))
	}

	return &giftdomain.Transfer{
		Gift:           gift,
		SenderEntry:    entries[0],
		ReceiverEntry:  entries[1],
		ReceiverAmount: receiverAmount,
		FeeAmount:      feeAmount,
	}, nil
}

func (s *Service) GetGift(ctx context.Context, giftID snowflake.ID) (*giftdomain.Gift, error) {
	if giftID == 0 {
		return nil, giftdomain.ErrGiftNotFound
	}
	var gift giftdomain.Gift
	if err := s.db.WithContext(ctx).First(&gift, "id = ? AND active = ?", giftID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, giftdomain.ErrGiftNotFound
		}
		return nil, err
	}
	return &gift, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*giftdomain.Gift, error) {
	var gifts []*giftdomain.Gift
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("price asc, code asc").
		Find(&gifts).Error; err != nil {
		return nil, err
	}
	return gifts, nil
}

func (s *Service) CreateGift(ctx context.Context, code, name string, price int64) (*giftdomain.Gift, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" || price <= 0 {
		return nil, giftdomain.ErrInvalidGift
	}
	// A price whose receiver share floors to zero cannot be split.
	if price*s.shareBps/10_000 < 1 {
		return nil, giftdomain.ErrInvalidGift
	}

	gift := giftdomain.Gift{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Price:     price,
		Active:    true,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&gift).Error; err != nil {
		return nil, err
	}
	return &gift, nil
}

func ptr(s string) *string { return &s }
