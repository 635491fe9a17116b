package call

import (
	"github.com/minutepay/minutepay/internal/call/service"
	"go.uber.org/fx"
)

var Module = fx.Module("call.service",
	fx.Provide(service.NewService),
)
