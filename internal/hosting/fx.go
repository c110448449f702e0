package hosting

import (
	"github.com/tomxwilliam/studioportal/internal/hosting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("hosting",
	fx.Provide(service.NewService),
)
