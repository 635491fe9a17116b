package payout

import (
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
	"github.com/minutepay/minutepay/internal/payout/gateway"
	"github.com/minutepay/minutepay/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(func() payoutdomain.Gateway { return gateway.NewFake() }),
	fx.Provide(service.NewService),
)
