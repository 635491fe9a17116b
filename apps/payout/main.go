package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/internal/audit"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	"github.com/minutepay/minutepay/internal/events"
	"github.com/minutepay/minutepay/internal/ledger"
	"github.com/minutepay/minutepay/internal/observability"
	"github.com/minutepay/minutepay/internal/payout"
	"github.com/minutepay/minutepay/internal/scheduler"
	"github.com/minutepay/minutepay/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweeper. Runs the payout sweep and outbox drain on the
// scheduler interval without serving HTTP.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		events.Module,
		ledger.Module,
		payout.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
