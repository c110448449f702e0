package ticket

import (
	"github.com/tomxwilliam/studioportal/internal/ticket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket",
	fx.Provide(service.NewService),
)
