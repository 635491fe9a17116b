package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	"github.com/minutepay/minutepay/internal/billing"
	calldomain "github.com/minutepay/minutepay/internal/call/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/events"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	obsmetrics "github.com/minutepay/minutepay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	FraudSvc   frauddomain.Service
	AuditSvc   auditdomain.Service
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	fraudSvc   frauddomain.Service
	auditSvc   auditdomain.Service
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) calldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("call.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		fraudSvc:   p.FraudSvc,
		auditSvc:   p.AuditSvc,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, viewerID, streamerID snowflake.ID, ratePerMinute int64) (*calldomain.Call, error) {
	if viewerID == 0 || streamerID == 0 || viewerID == streamerID {
		return nil, calldomain.ErrInvalidParticipants
	}
	if ratePerMinute <= 0 {
		return nil, calldomain.ErrInvalidRate
	}

	viewerAccount, err := s.ledgerSvc.GetAccountByUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if viewerAccount.IsBlocked {
		return nil, ledgerdomain.ErrAccountBlocked
	}
	if _, err := s.ledgerSvc.GetAccountByUser(ctx, streamerID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	call := calldomain.Call{
		ID:            s.genID.Generate(),
		StreamerID:    streamerID,
		ViewerID:      viewerID,
		RatePerMinute: ratePerMinute,
		Status:        calldomain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO calls (
			id, streamer_id, viewer_id, rate_per_minute, status,
			duration_seconds, total_cost, settled_amount, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		call.ID,
		call.StreamerID,
		call.ViewerID,
		call.RatePerMinute,
		string(call.Status),
		call.CreatedAt,
		call.UpdatedAt,
	).Error; err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *Service) Start(ctx context.Context, callID snowflake.ID) (*calldomain.Call, error) {
	now := s.clock.Now().UTC()
	return s.transition(ctx, callID, calldomain.StatusPending, calldomain.StatusActive, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Exec(
			`UPDATE calls SET started_at = ? WHERE id = ?`, now, callID,
		).Error
	})
}

func (s *Service) Cancel(ctx context.Context, callID snowflake.ID) (*calldomain.Call, error) {
	return s.transition(ctx, callID, calldomain.StatusPending, calldomain.StatusCancelled, nil)
}

// End settles the call. Ending an already ended call returns the stored
// settlement without touching the ledger again.
func (s *Service) End(ctx context.Context, callID snowflake.ID) (*calldomain.Settlement, error) {
	var (
		settled      *calldomain.Call
		partial      bool
		flagged      snowflake.ID
		alreadyEnded bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var call calldomain.Call
		if err := tx.WithContext(ctx).First(&call, "id = ?", callID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return calldomain.ErrCallNotFound
			}
			return err
		}
		if call.Status == calldomain.StatusEnded {
			settled = &call
			partial = call.SettledAmount < call.TotalCost
			alreadyEnded = true
			return nil
		}
		if call.Status != calldomain.StatusActive || call.StartedAt == nil {
			return calldomain.ErrInvalidState
		}

		now := s.clock.Now().UTC()
		quote := billing.Compute(*call.StartedAt, now, call.RatePerMinute)

		// The status guard makes a concurrent End lose the race cleanly.
		result := tx.WithContext(ctx).Exec(
			`UPDATE calls
			 SET status = ?, ended_at = ?, duration_seconds = ?, total_cost = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(calldomain.StatusEnded),
			now,
			quote.DurationSeconds,
			quote.TotalCost,
			now,
			call.ID,
			string(calldomain.StatusActive),
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return calldomain.ErrInvalidState
		}

		settleAmount, paymentEntryID, err := s.settle(ctx, tx, &call, quote.TotalCost)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE calls SET settled_amount = ?, payment_entry_id = ? WHERE id = ?`,
			settleAmount,
			paymentEntryID,
			call.ID,
		).Error; err != nil {
			return err
		}

		partial = settleAmount < quote.TotalCost
		if partial {
			flagged = call.ViewerID
		}

		if s.outbox != nil {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type:   events.EventCallSettled,
				UserID: call.StreamerID,
				Payload: map[string]any{
					"call_id":        call.ID.String(),
					"total_cost":     quote.TotalCost,
					"settled_amount": settleAmount,
				},
				DedupeKey: "call_settled:" + call.ID.String(),
			}); err != nil {
				return err
			}
		}

		call.Status = calldomain.StatusEnded
		call.EndedAt = &now
		call.DurationSeconds = quote.DurationSeconds
		call.TotalCost = quote.TotalCost
		call.SettledAmount = settleAmount
		call.PaymentEntryID = paymentEntryID
		settled = &call

		callIDStr := call.ID.String()
		if err := s.auditSvc.AuditLogTx(ctx, tx, string(auditdomain.ActorTypeSystem), nil, "call.settled", "call", &callIDStr, map[string]any{
			"total_cost":     quote.TotalCost,
			"settled_amount": settleAmount,
			"partial":        partial,
		}); err != nil {
			s.log.Warn("failed to write call audit log", zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if flagged != 0 {
		if _, err := s.fraudSvc.RaiseFlag(ctx, flagged, frauddomain.FlagInsufficientSettlement, frauddomain.SeverityMedium); err != nil {
			s.log.Warn("failed to raise settlement flag", zap.String("call_id", settled.ID.String()), zap.Error(err))
		}
	}
	if s.obsMetrics != nil && !alreadyEnded {
		result := "full"
		if partial {
			result = "partial"
		}
		s.obsMetrics.RecordCallSettlement(result)
	}

	return &calldomain.Settlement{Call: settled, Partial: partial}, nil
}

// settle debits the viewer and credits the streamer. When the viewer cannot
// cover the full cost, the available balance is settled instead and the
// shortfall is left unrecovered.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, call *calldomain.Call, totalCost int64) (int64, *snowflake.ID, error) {
	if totalCost <= 0 {
		return 0, nil, nil
	}

	viewerAccount, err := s.ledgerSvc.GetAccountByUser(ctx, call.ViewerID)
	if err != nil {
		return 0, nil, err
	}
	streamerAccount, err := s.ledgerSvc.GetAccountByUser(ctx, call.StreamerID)
	if err != nil {
		return 0, nil, err
	}

	post := func(amount int64) ([]ledgerdomain.LedgerEntry, error) {
		return s.ledgerSvc.PostPairTx(ctx, tx,
			ledgerdomain.PairLeg{AccountID: viewerAccount.ID, Amount: -amount, Kind: ledgerdomain.KindCallPayment},
			ledgerdomain.PairLeg{AccountID: streamerAccount.ID, Amount: amount, Kind: ledgerdomain.KindCallEarning},
		)
	}

	entries, err := post(totalCost)
	if err == nil {
		return totalCost, &entries[0].ID, nil
	}
	if !errors.Is(err, ledgerdomain.ErrInsufficientFunds) && !errors.Is(err, ledgerdomain.ErrAccountBlocked) {
		return 0, nil, err
	}

	var available int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT balance FROM accounts WHERE id = ? AND is_blocked = FALSE`, viewerAccount.ID,
	).Scan(&available).Error; err != nil {
		return 0, nil, err
	}
	if available <= 0 {
		return 0, nil, nil
	}

	entries, err = post(available)
	if err != nil {
		return 0, nil, err
	}
	return available, &entries[0].ID, nil
}

func (s *Service) Quote(ctx context.Context, callID snowflake.ID) (billing.Quote, error) {
	call, err := s.Get(ctx, callID)
	if err != nil {
		return billing.Quote{}, err
	}
	switch call.Status {
	case calldomain.StatusActive:
		return billing.Compute(*call.StartedAt, s.clock.Now().UTC(), call.RatePerMinute), nil
	case calldomain.StatusEnded:
		return billing.Quote{
			DurationSeconds: call.DurationSeconds,
			BilledMinutes:   (call.DurationSeconds + 59) / 60,
			TotalCost:       call.TotalCost,
		}, nil
	default:
		return billing.Quote{}, nil
	}
}

func (s *Service) Get(ctx context.Context, callID snowflake.ID) (*calldomain.Call, error) {
	if callID == 0 {
		return nil, calldomain.ErrCallNotFound
	}
	var call calldomain.Call
	if err := s.db.WithContext(ctx).First(&call, "id = ?", callID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, calldomain.ErrCallNotFound
		}
		return nil, err
	}
	return &call, nil
}

func (s *Service) transition(ctx context.Context, callID snowflake.ID, from, to calldomain.CallStatus, apply func(tx *gorm.DB) error) (*calldomain.Call, error) {
	if callID == 0 {
		return nil, calldomain.ErrCallNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE calls SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to),
			s.clock.Now().UTC(),
			callID,
			string(from),
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var exists int64
			if err := tx.WithContext(ctx).Model(&calldomain.Call{}).Where("id = ?", callID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return calldomain.ErrCallNotFound
			}
			return calldomain.ErrInvalidState
		}
		if apply != nil {
			return apply(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, callID)
}
