package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notifier delivers a published event to the external notification
// collaborator. Delivery failures are logged and retried on the next drain,
// never surfaced to the financial operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, userID snowflake.ID, eventType string, payload map[string]any) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Notifier Notifier `optional:"true"`
}

type Outbox struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	notifier Notifier
}

func NewOutbox(p Params) *Outbox {
	return &Outbox{
		db:       p.DB,
		log:      p.Log.Named("events.outbox"),
		genID:    p.GenID,
		notifier: p.Notifier,
	}
}

// PublishTx appends the event inside the caller's transaction. Duplicate
// dedupe keys are dropped silently so retried operations stay idempotent.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if event.Type == "" || event.DedupeKey == "" {
		return nil
	}
	payload := map[string]any{}
	for key, value := range event.Payload {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, event_type, user_id, payload, dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.Type,
		event.UserID,
		datatypes.JSONMap(payload),
		event.DedupeKey,
		time.Now().UTC(),
	).Error
}

// Drain delivers up to limit unpublished events. A delivery error stops the
// batch; the remaining rows are picked up by the next drain.
func (o *Outbox) Drain(ctx context.Context, limit int) (int, error) {
	if o.notifier == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var pending []OutboxEvent
	if err := o.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := o.notifier.Notify(ctx, event.UserID, event.EventType, event.Payload); err != nil {
			o.log.Warn("notification delivery failed",
				zap.String("event_type", event.EventType),
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			return delivered, err
		}
		now := time.Now().UTC()
		if err := o.db.WithContext(ctx).Exec(
			`UPDATE outbox_events SET published_at = ? WHERE id = ? AND published_at IS NULL`,
			now,
			event.ID,
		).Error; err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// RunDrainLoop drains the outbox on a fixed cadence until ctx is cancelled.
func (o *Outbox) RunDrainLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Drain(ctx, 100); err != nil && ctx.Err() == nil {
				o.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}
