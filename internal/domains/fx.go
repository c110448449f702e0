package domains

import (
	"github.com/tomxwilliam/studioportal/internal/domains/service"
	"go.uber.org/fx"
)

var Module = fx.Module("domains.service",
	fx.Provide(service.NewService),
)
