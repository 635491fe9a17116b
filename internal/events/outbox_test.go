package events

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	delivered []string
	failWith  error
}

func (n *recordingNotifier) Notify(ctx context.Context, userID snowflake.ID, eventType string, payload map[string]any) error {
	if n.failWith != nil {
		err := n.failWith
		n.failWith = nil
		return err
	}
	n.delivered = append(n.delivered, eventType)
	return nil
}

func newTestOutbox(t *testing.T, notifier Notifier) *Outbox {
	t.Helper()

	gdb, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&OutboxEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewOutbox(Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Notifier: notifier,
	})
}

func TestPublishTxDeduplicates(t *testing.T) {
	outbox := newTestOutbox(t, &recordingNotifier{})
	ctx := context.Background()

	event := Event{
		Type:      EventGiftReceived,
		UserID:    snowflake.ID(7),
		Payload:   map[string]any{"amount": int64(800)},
		DedupeKey: "gift_received:1",
	}
	require.NoError(t, outbox.PublishTx(ctx, outbox.db, event))
	require.NoError(t, outbox.PublishTx(ctx, outbox.db, event))

	var count int64
	require.NoError(t, outbox.db.Model(&OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPublishTxIgnoresEmptyEvents(t *testing.T) {
	outbox := newTestOutbox(t, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, outbox.PublishTx(ctx, outbox.db, Event{Type: "", DedupeKey: "x"}))
	require.NoError(t, outbox.PublishTx(ctx, outbox.db, Event{Type: EventCallSettled, DedupeKey: ""}))

	var count int64
	require.NoError(t, outbox.db.Model(&OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDrainDeliversOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	outbox := newTestOutbox(t, notifier)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, outbox.PublishTx(ctx, outbox.db, Event{
			Type:      EventCallSettled,
			UserID:    snowflake.ID(7),
			DedupeKey: "call_settled:" + snowflake.ID(i+1).String(),
		}))
	}

	delivered, err := outbox.Drain(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Len(t, notifier.delivered, 3)

	delivered, err = outbox.Drain(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Len(t, notifier.delivered, 3)
}

func TestDrainStopsOnDeliveryFailure(t *testing.T) {
	notifier := &recordingNotifier{failWith: errors.New("webhook down")}
	outbox := newTestOutbox(t, notifier)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, outbox.PublishTx(ctx, outbox.db, Event{
			Type:      EventPayoutInitiated,
			UserID:    snowflake.ID(9),
			DedupeKey: "payout_initiated:" + snowflake.ID(i+1).String(),
		}))
	}

	delivered, err := outbox.Drain(ctx, 100)
	require.Error(t, err)
	assert.Zero(t, delivered)

	// the failed batch stays pending and is retried in full
	delivered, err = outbox.Drain(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
}

func TestDrainWithoutNotifierIsNoop(t *testing.T) {
	outbox := newTestOutbox(t, nil)
	ctx := context.Background()

	require.NoError(t, outbox.PublishTx(ctx, outbox.db, Event{
		Type:      EventRefundIssued,
		UserID:    snowflake.ID(3),
		DedupeKey: "refund_issued:1",
	}))

	delivered, err := outbox.Drain(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}
