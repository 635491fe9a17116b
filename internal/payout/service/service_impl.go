package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	"github.com/minutepay/minutepay/internal/events"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	obsmetrics "github.com/minutepay/minutepay/internal/observability/metrics"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
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
	Config     config.Config
	Gateway    payoutdomain.Gateway
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.PayoutConfig
	gateway    payoutdomain.Gateway
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config.Payout,
		gateway:    p.Gateway,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// errNoEligibleEntries marks a group whose entries were claimed by a
// concurrent sweep between grouping and reservation.
var errNoEligibleEntries = errors.New("no_eligible_entries")

// The period bounds come from MIN/MAX over a timestamp column, which loses
// the time type on the way out of the driver. They scan as text and are
// parsed with whatever layout the driver emitted.
type earningGroup struct {
	AccountID   snowflake.ID
	StreamerID  snowflake.ID
	Amount      int64
	PeriodStart string
	PeriodEnd   string
}

var entryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseEntryTime(value string) (time.Time, error) {
	for _, layout := range entryTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable entry timestamp %q", value)
}

// RunSweep groups matured unpaid earnings per streamer and pays each group
// through the gateway. A failed group is recorded and left for the next run,
// so re-running with nothing eligible produces no new rows.
func (s *Service) RunSweep(ctx context.Context) (*payoutdomain.SweepResult, error) {
	start := s.clock.Now().UTC()
	cutoff := start.Add(-s.cfg.MaturationWindow)

	var groups []earningGroup
	if err := s.db.WithContext(ctx).Raw(
		`SELECT le.account_id AS account_id,
		        a.user_id AS streamer_id,
		        SUM(le.amount) AS amount,
		        MIN(le.created_at) AS period_start,
		        MAX(le.created_at) AS period_end
		 FROM ledger_entries le
		 JOIN accounts a ON a.id = le.account_id
		 WHERE le.kind = ? AND le.paid = FALSE AND le.status = ? AND le.created_at <= ?
		 GROUP BY le.account_id, a.user_id
		 HAVING SUM(le.amount) > 0
		 ORDER BY a.user_id`,
		string(ledgerdomain.KindCallEarning),
		string(ledgerdomain.StatusCompleted),
		cutoff,
	).Scan(&groups).Error; err != nil {
		s.recordRun("error", start)
		return nil, err
	}

	result := &payoutdomain.SweepResult{Eligible: len(groups)}
	var errs error
	for _, group := range groups {
		if ctx.Err() != nil {
			errs = errors.Join(errs, ctx.Err())
			break
		}
		if err := s.payGroup(ctx, group, cutoff); err != nil {
			if errors.Is(err, errNoEligibleEntries) {
				continue
			}
			result.Failed++
			errs = errors.Join(errs, err)
			continue
		}
		result.Paid++
	}

	outcome := "ok"
	if errs != nil {
		outcome = "partial"
	}
	s.recordRun(outcome, start)

	s.log.Info("payout sweep finished",
		zap.Int("eligible", result.Eligible),
		zap.Int("paid", result.Paid),
		zap.Int("failed", result.Failed),
	)
	return result, errs
}

// payGroup reserves the group's earnings before any money moves. One
// transaction posts the payout debit, marks the covered entries paid and
// records the pending payment, so a balance already drained by a withdrawal
// fails the group without a transfer. The gateway is called only once the
// reservation holds; a gateway failure releases it for the next run.
func (s *Service) payGroup(ctx context.Context, group earningGroup, cutoff time.Time) error {
	periodStart, err := parseEntryTime(group.PeriodStart)
	if err != nil {
		return err
	}
	periodEnd, err := parseEntryTime(group.PeriodEnd)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	payment := payoutdomain.ScheduledPayment{
		ID:          s.genID.Generate(),
		StreamerID:  group.StreamerID,
		Amount:      group.Amount,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		DueDate:     now.Add(s.cfg.DueDelay),
		Status:      payoutdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var entryIDs []snowflake.ID
	var payoutEntryID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Raw(
			`SELECT id FROM ledger_entries
			 WHERE account_id = ? AND kind = ? AND paid = FALSE AND status = ? AND created_at <= ?`,
			group.AccountID,
			string(ledgerdomain.KindCallEarning),
			string(ledgerdomain.StatusCompleted),
			cutoff,
		).Scan(&entryIDs).Error; err != nil {
			return err
		}
		if len(entryIDs) == 0 {
			return errNoEligibleEntries
		}

		debit, err := s.ledgerSvc.PostEntryTx(ctx, tx, group.AccountID, -group.Amount, ledgerdomain.KindPayout, nil)
		if err != nil {
			return err
		}
		payoutEntryID = debit.ID
		payment.PayoutEntryID = &debit.ID

		if err := tx.WithContext(ctx).Exec(
			`UPDATE ledger_entries SET paid = TRUE WHERE id IN ?`,
			entryIDs,
		).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO scheduled_payments (
				id, streamer_id, amount, period_start, period_end, due_date,
				status, payout_entry_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			payment.ID,
			payment.StreamerID,
			payment.Amount,
			payment.PeriodStart,
			payment.PeriodEnd,
			payment.DueDate,
			string(payment.Status),
			payment.PayoutEntryID,
			payment.CreatedAt,
			payment.UpdatedAt,
		).Error
	})
	if errors.Is(err, errNoEligibleEntries) {
		return err
	}
	if err != nil {
		s.recordReservationFailure(ctx, &payment, err)
		s.recordPayment("failed")
		return fmt.Errorf("payout %s: %w", payment.ID, err)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	reference, err := s.gateway.InitiateTransfer(
		gatewayCtx,
		group.StreamerID.String(),
		group.Amount,
		fmt.Sprintf("payout %s", payment.ID),
	)
	cancel()
	if err != nil {
		s.releaseReservation(ctx, payment.ID, payoutEntryID, entryIDs, err)
		s.recordPayment("failed")
		return fmt.Errorf("payout %s: %w", payment.ID, errors.Join(payoutdomain.ErrGateway, err))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE scheduled_payments
			 SET status = ?, payment_reference = ?, last_error = NULL, updated_at = ?
			 WHERE id = ?`,
			string(payoutdomain.StatusPaid),
			reference,
			s.clock.Now().UTC(),
			payment.ID,
		).Error; err != nil {
			return err
		}
		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				Type:   events.EventPayoutInitiated,
				UserID: group.StreamerID,
				Payload: map[string]any{
					"payment_id": payment.ID.String(),
					"amount":     group.Amount,
					"reference":  reference,
				},
				DedupeKey: "payout_initiated:" + payment.ID.String(),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordPayment("paid")
	paymentIDStr := payment.ID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "payout.initiated", "scheduled_payment", &paymentIDStr, map[string]any{
		"streamer_id": group.StreamerID.String(),
		"amount":      group.Amount,
		"reference":   reference,
	}); err != nil {
		s.log.Warn("failed to write payout audit log", zap.Error(err))
	}
	return nil
}

// recordReservationFailure keeps a failed payment row after the reserve
// transaction rolled back, so the shortfall stays visible to operators.
func (s *Service) recordReservationFailure(ctx context.Context, payment *payoutdomain.ScheduledPayment, cause error) {
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO scheduled_payments (
			id, streamer_id, amount, period_start, period_end, due_date,
			status, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.StreamerID,
		payment.Amount,
		payment.PeriodStart,
		payment.PeriodEnd,
		payment.DueDate,
		string(payoutdomain.StatusFailed),
		cause.Error(),
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error; err != nil {
		s.log.Error("failed to record payout reservation failure",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}
}

// releaseReservation undoes a reserved group after the gateway declined. The
// payout debit is reversed and exactly the entries this reservation marked
// are unmarked, never entries covered by earlier payments.
func (s *Service) releaseReservation(ctx context.Context, paymentID, payoutEntryID snowflake.ID, entryIDs []snowflake.ID, cause error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE scheduled_payments SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(payoutdomain.StatusFailed),
			cause.Error(),
			s.clock.Now().UTC(),
			paymentID,
		).Error; err != nil {
			return err
		}
		if _, err := s.ledgerSvc.ReverseEntryTx(ctx, tx, payoutEntryID); err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE ledger_entries SET paid = FALSE WHERE id IN ?`,
			entryIDs,
		).Error
	})
	if err != nil {
		s.log.Error("failed to release payout reservation",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) GetPayment(ctx context.Context, paymentID snowflake.ID) (*payoutdomain.ScheduledPayment, error) {
	if paymentID == 0 {
		return nil, payoutdomain.ErrPaymentNotFound
	}
	var payment payoutdomain.ScheduledPayment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payoutdomain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Service) ListPayments(ctx context.Context, streamerID snowflake.ID) ([]*payoutdomain.ScheduledPayment, error) {
	var payments []*payoutdomain.ScheduledPayment
	if err := s.db.WithContext(ctx).
		Where("streamer_id = ?", streamerID).
		Order("created_at desc, id desc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) recordRun(outcome string, start time.Time) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSweepRun(outcome, s.clock.Now().UTC().Sub(start))
	}
}

func (s *Service) recordPayment(status string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSweepPayment(status)
	}
}
