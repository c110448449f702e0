package customer

import (
	"github.com/tomxwilliam/studioportal/internal/customer/repository"
	"github.com/tomxwilliam/studioportal/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
