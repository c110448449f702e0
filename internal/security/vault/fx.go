package vault

import (
	"github.com/tomxwilliam/studioportal/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("security.vault",
	fx.Provide(func(cfg config.Config) (Provider, error) {
		return New(cfg.Vault.EncryptionKey)
	}),
)
