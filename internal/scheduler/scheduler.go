package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/events"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	PayoutSvc payoutdomain.Service
	Outbox    *events.Outbox `optional:"true"`
	Config    Config         `optional:"true"`
}

// Scheduler drives the recurring jobs: the daily payout sweep and the
// notification outbox drain.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	payoutSvc payoutdomain.Service
	outbox    *events.Outbox
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.PayoutSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler"),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		payoutSvc: p.PayoutSvc,
		outbox:    p.Outbox,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	log.Debug("job started")

	err := fn(ctx)
	took := s.clock.Now().Sub(start)
	if err == nil {
		log.Debug("job finished", zap.Duration("took", took))
		return nil
	}

	// A deadline is a soft timeout; the next run picks the work back up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	log.Warn("job failed", zap.Duration("took", took), zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.cfg.isJobEnabled("payout_sweep") {
		err = errors.Join(err, s.runJob(parent, "payout_sweep", s.cfg.SweepTimeout, func(ctx context.Context) error {
			_, sweepErr := s.payoutSvc.RunSweep(ctx)
			return sweepErr
		}))
	}

	if s.outbox != nil && s.cfg.isJobEnabled("outbox_drain") {
		err = errors.Join(err, s.runJob(parent, "outbox_drain", s.cfg.DrainTimeout, func(ctx context.Context) error {
			_, drainErr := s.outbox.Drain(ctx, s.cfg.DrainBatch)
			return drainErr
		}))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
