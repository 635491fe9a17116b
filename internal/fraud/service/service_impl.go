package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/minutepay/minutepay/internal/audit/domain"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	obsmetrics "github.com/minutepay/minutepay/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
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
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.FraudConfig
	counter    *windowCounter
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) frauddomain.Service {
	var client *redis.Client
	if addr := strings.TrimSpace(p.Config.RedisAddr); addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(p.Config.RedisPassword),
			DB:       p.Config.RedisDB,
		})
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fraud.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config.Fraud,
		counter:    newWindowCounter(client, p.DB, p.Clock, p.Config.Fraud.Window),
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, userID, accountID snowflake.ID, op frauddomain.OpClass, amount int64) ([]*frauddomain.FraudFlag, error) {
	if userID == 0 || accountID == 0 {
		return nil, frauddomain.ErrInvalidUser
	}

	stats, err := s.counter.Observe(ctx, accountID, op, s.genID.Generate(), amount)
	if err != nil {
		return nil, err
	}

	var raised []*frauddomain.FraudFlag
	raise := func(flagType frauddomain.FlagType, severity frauddomain.Severity) error {
		flag, err := s.insertFlag(ctx, userID, flagType, severity, true, nil)
		if err != nil {
			return err
		}
		raised = append(raised, flag)
		return nil
	}

	switch op {
	case frauddomain.OpWithdrawal:
		if amount > s.cfg.MaxWithdrawalAmount {
			if err := raise(frauddomain.FlagLargeWithdrawal, severityFor(amount, s.cfg.MaxWithdrawalAmount)); err != nil {
				return raised, err
			}
		}
		if stats.Count > s.cfg.MaxWithdrawals {
			if err := raise(frauddomain.FlagWithdrawalVelocity, severityFor(stats.Count, s.cfg.MaxWithdrawals)); err != nil {
				return raised, err
			}
		}
	case frauddomain.OpDeposit:
		if stats.Count > s.cfg.MaxDeposits {
			if err := raise(frauddomain.FlagRapidDeposits, severityFor(stats.Count, s.cfg.MaxDeposits)); err != nil {
				return raised, err
			}
		}
	case frauddomain.OpGift:
		if amount >= s.cfg.LargeGiftAmount {
			if err := raise(frauddomain.FlagLargeGift, severityFor(amount, s.cfg.LargeGiftAmount)); err != nil {
				return raised, err
			}
		}
	}

	return raised, nil
}

func (s *Service) RaiseFlag(ctx context.Context, userID snowflake.ID, flagType frauddomain.FlagType, severity frauddomain.Severity) (*frauddomain.FraudFlag, error) {
	if userID == 0 {
		return nil, frauddomain.ErrInvalidUser
	}
	if flagType == "" {
		return nil, frauddomain.ErrInvalidFlagType
	}
	if !frauddomain.ValidSeverity(severity) {
		return nil, frauddomain.ErrInvalidSeverity
	}
	return s.insertFlag(ctx, userID, flagType, severity, true, nil)
}

func (s *Service) CreateFlag(ctx context.Context, userID snowflake.ID, flagType frauddomain.FlagType, severity frauddomain.Severity, reporterID snowflake.ID) (*frauddomain.FraudFlag, error) {
	if userID == 0 {
		return nil, frauddomain.ErrInvalidUser
	}
	if flagType == "" {
		return nil, frauddomain.ErrInvalidFlagType
	}
	if !frauddomain.ValidSeverity(severity) {
		return nil, frauddomain.ErrInvalidSeverity
	}
	return s.insertFlag(ctx, userID, flagType, severity, false, &reporterID)
}

func (s *Service) ReviewFlag(ctx context.Context, flagID, reviewerID snowflake.ID, action frauddomain.ReviewAction) (*frauddomain.FraudFlag, error) {
	switch action {
	case frauddomain.ReviewDismiss, frauddomain.ReviewEscalate, frauddomain.ReviewBlock:
	default:
		return nil, frauddomain.ErrInvalidAction
	}

	flag, err := s.GetFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE fraud_flags
		 SET reviewed = TRUE, review_action = ?, reviewed_by = ?, reviewed_at = ?
		 WHERE id = ? AND reviewed = FALSE`,
		string(action),
		reviewerID,
		now,
		flagID,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, frauddomain.ErrFlagReviewed
	}

	if action == frauddomain.ReviewBlock {
		account, err := s.ledgerSvc.GetAccountByUser(ctx, flag.UserID)
		if err != nil {
			return nil, err
		}
		if err := s.ledgerSvc.SetAccountBlocked(ctx, account.ID, true); err != nil {
			return nil, err
		}
	}

	reviewerStr := reviewerID.String()
	flagIDStr := flagID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeOperator), &reviewerStr, "fraud.flag_reviewed", "fraud_flag", &flagIDStr, map[string]any{
		"action":    string(action),
		"user_id":   flag.UserID.String(),
		"flag_type": string(flag.FlagType),
	}); err != nil {
		s.log.Warn("failed to write fraud audit log", zap.Error(err))
	}

	return s.GetFlag(ctx, flagID)
}

func (s *Service) GetFlag(ctx context.Context, flagID snowflake.ID) (*frauddomain.FraudFlag, error) {
	if flagID == 0 {
		return nil, frauddomain.ErrFlagNotFound
	}
	var flag frauddomain.FraudFlag
	if err := s.db.WithContext(ctx).First(&flag, "id = ?", flagID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, frauddomain.ErrFlagNotFound
		}
		return nil, err
	}
	return &flag, nil
}

func (s *Service) ListOpenFlags(ctx context.Context, userID snowflake.ID) ([]*frauddomain.FraudFlag, error) {
	if userID == 0 {
		return nil, frauddomain.ErrInvalidUser
	}
	var flags []*frauddomain.FraudFlag
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND reviewed = FALSE", userID).
		Order("created_at desc, id desc").
		Find(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

func (s *Service) insertFlag(ctx context.Context, userID snowflake.ID, flagType frauddomain.FlagType, severity frauddomain.Severity, autoGenerated bool, reporterID *snowflake.ID) (*frauddomain.FraudFlag, error) {
	flag := frauddomain.FraudFlag{
		ID:            s.genID.Generate(),
		UserID:        userID,
		FlagType:      flagType,
		Severity:      severity,
		AutoGenerated: autoGenerated,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO fraud_flags (id, user_id, flag_type, severity, reviewed, auto_generated, created_at)
		 VALUES (?, ?, ?, ?, FALSE, ?, ?)`,
		flag.ID,
		flag.UserID,
		string(flag.FlagType),
		string(flag.Severity),
		flag.AutoGenerated,
		flag.CreatedAt,
	).Error; err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordFraudFlag(string(flagType), string(severity))
	}

	flagIDStr := flag.ID.String()
	actorType := string(auditdomain.ActorTypeSystem)
	var actorID *string
	if reporterID != nil {
		actorType = string(auditdomain.ActorTypeOperator)
		reporterStr := reporterID.String()
		actorID = &reporterStr
	}
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, "fraud.flag_created", "fraud_flag", &flagIDStr, map[string]any{
		"user_id":        userID.String(),
		"flag_type":      string(flagType),
		"severity":       string(severity),
		"auto_generated": autoGenerated,
	}); err != nil {
		s.log.Warn("failed to write fraud audit log", zap.Error(err))
	}

	s.log.Info("fraud flag raised",
		zap.String("user_id", userID.String()),
		zap.String("flag_type", string(flagType)),
		zap.String("severity", string(severity)),
		zap.Bool("auto_generated", autoGenerated),
	)
	return &flag, nil
}

// severityFor escalates with how far past the threshold the value landed.
func severityFor(value, threshold int64) frauddomain.Severity {
	if threshold <= 0 {
		return frauddomain.SeverityCritical
	}
	switch ratio := value / threshold; {
	case ratio >= 4:
		return frauddomain.SeverityCritical
	case ratio >= 3:
		return frauddomain.SeverityHigh
	case ratio >= 2:
		return frauddomain.SeverityMedium
	default:
		return frauddomain.SeverityLow
	}
}
