package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/internal/clock"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// slidingWindowScript trims a per-account sorted set to the window, records
// the new observation and returns the surviving count and amount sum. Running
// inside redis keeps the read-modify-write isolated without any lock.
const slidingWindowScript = `
local window = tonumber(ARGV[1])
local member = ARGV[2]
local amount = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
redis.call("ZADD", KEYS[1], now, member .. ":" .. amount)
redis.call("PEXPIRE", KEYS[1], window)

local entries = redis.call("ZRANGE", KEYS[1], 0, -1)
local count = 0
local total = 0
for _, e in ipairs(entries) do
  count = count + 1
  local a = string.match(e, ":(%d+)$")
  if a then
    total = total + tonumber(a)
  end
end

return {count, total}
`

// windowCounter maintains rolling per-account operation counters in redis,
// falling back to recomputing from recent ledger entries when redis is not
// configured. State never lives in process memory.
type windowCounter struct {
	client *redis.Client
	script *redis.Script
	db     *gorm.DB
	clock  clock.Clock
	window time.Duration
}

func newWindowCounter(client *redis.Client, db *gorm.DB, clk clock.Clock, window time.Duration) *windowCounter {
	counter := &windowCounter{
		client: client,
		db:     db,
		clock:  clk,
		window: window,
	}
	if client != nil {
		counter.script = redis.NewScript(slidingWindowScript)
	}
	return counter
}

// Observe records the operation and returns the window stats including it.
func (c *windowCounter) Observe(ctx context.Context, accountID snowflake.ID, op frauddomain.OpClass, memberID snowflake.ID, amount int64) (frauddomain.WindowStats, error) {
	if amount < 0 {
		amount = -amount
	}
	if c.client != nil {
		stats, err := c.observeRedis(ctx, accountID, op, memberID, amount)
		if err == nil {
			return stats, nil
		}
		// Fall through to the ledger on redis failure.
	}
	return c.recomputeFromLedger(ctx, accountID, op, amount)
}

func (c *windowCounter) observeRedis(ctx context.Context, accountID snowflake.ID, op frauddomain.OpClass, memberID snowflake.ID, amount int64) (frauddomain.WindowStats, error) {
	key := fmt.Sprintf("fraud:window:%s:%s", accountID, op)
	res, err := c.script.Run(
		ctx,
		c.client,
		[]string{key},
		int64(c.window/time.Millisecond),
		memberID.String(),
		amount,
	).Slice()
	if err != nil {
		return frauddomain.WindowStats{}, err
	}
	if len(res) < 2 {
		return frauddomain.WindowStats{}, fmt.Errorf("unexpected window script response")
	}
	count, _ := res[0].(int64)
	total, _ := res[1].(int64)
	return frauddomain.WindowStats{Count: count, Amount: total}, nil
}

func (c *windowCounter) recomputeFromLedger(ctx context.Context, accountID snowflake.ID, op frauddomain.OpClass, amount int64) (frauddomain.WindowStats, error) {
	kinds := kindsForOp(op)
	if len(kinds) == 0 {
		return frauddomain.WindowStats{Count: 1, Amount: amount}, nil
	}

	since := c.clock.Now().UTC().Add(-c.window)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, 0, len(kinds)+2)
	args = append(args, accountID)
	for _, kind := range kinds {
		args = append(args, string(kind))
	}
	args = append(args, since)

	var row struct {
		Count int64
		Total int64
	}
	if err := c.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(ABS(amount)), 0) AS total
		 FROM ledger_entries
		 WHERE account_id = ? AND kind IN (`+placeholders+`) AND created_at >= ?`,
		args...,
	).Scan(&row).Error; err != nil {
		return frauddomain.WindowStats{}, err
	}

	// The operation under evaluation has not been posted yet.
	return frauddomain.WindowStats{Count: row.Count + 1, Amount: row.Total + amount}, nil
}

func kindsForOp(op frauddomain.OpClass) []ledgerdomain.EntryKind {
	switch op {
	case frauddomain.OpDeposit:
		return []ledgerdomain.EntryKind{ledgerdomain.KindDeposit}
	case frauddomain.OpWithdrawal:
		return []ledgerdomain.EntryKind{ledgerdomain.KindWithdrawal}
	case frauddomain.OpGift:
		return []ledgerdomain.EntryKind{ledgerdomain.KindGiftSent}
	}
	return nil
}
