package audit

import (
	"github.com/minutepay/minutepay/internal/audit/repository"
	"github.com/minutepay/minutepay/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
