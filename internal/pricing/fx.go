package pricing

import (
	"github.com/tomxwilliam/studioportal/internal/fxrate"
	"github.com/tomxwilliam/studioportal/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fxrate.Module,
	fx.Provide(service.NewService),
)
