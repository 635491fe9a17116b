package chargeback

import (
	"github.com/minutepay/minutepay/internal/chargeback/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chargeback.service",
	fx.Provide(service.NewService),
)
