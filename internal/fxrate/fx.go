package fxrate

import "go.uber.org/fx"

var Module = fx.Module("fxrate",
	fx.Provide(NewService),
)
