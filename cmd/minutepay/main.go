package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/minutepay/minutepay/internal/clock"
	"github.com/minutepay/minutepay/internal/config"
	"github.com/minutepay/minutepay/internal/migration"
	"github.com/minutepay/minutepay/internal/observability"
	"github.com/minutepay/minutepay/internal/scheduler"
	"github.com/minutepay/minutepay/internal/server"
	"github.com/minutepay/minutepay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus all domain services
		server.Module,

		// Background payout sweep and outbox drain
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
