package providers

import (
	"fmt"

	"github.com/tomxwilliam/studioportal/internal/config"
	"github.com/tomxwilliam/studioportal/internal/hostingapi"
	hostingmock "github.com/tomxwilliam/studioportal/internal/hostingapi/mock"
	"github.com/tomxwilliam/studioportal/internal/hostingapi/whm"
	"github.com/tomxwilliam/studioportal/internal/payment"
	paymentmock "github.com/tomxwilliam/studioportal/internal/payment/mock"
	"github.com/tomxwilliam/studioportal/internal/payment/stripeapi"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"github.com/tomxwilliam/studioportal/internal/registrar/httpapi"
	registrarmock "github.com/tomxwilliam/studioportal/internal/registrar/mock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module selects the live or sandbox implementation of each upstream
// collaborator once, at startup, from configuration. Downstream services only
// ever see the interface.
var Module = fx.Module("providers",
	fx.Provide(NewRegistrar),
	fx.Provide(NewHostingProvider),
	fx.Provide(NewPaymentProvider),
)

func NewRegistrar(cfg config.Config, log *zap.Logger) (registrar.Provider, error) {
	switch cfg.Registrar.Mode {
	case "live":
		return httpapi.NewClient(cfg.Registrar.BaseURL, cfg.Registrar.APIKey, cfg.Registrar.APISecret)
	case "mock", "":
		log.Warn("registrar running in mock mode, registrations will not be real")
		return registrarmock.New(), nil
	default:
		return nil, fmt.Errorf("providers: unknown registrar mode %q", cfg.Registrar.Mode)
	}
}

func NewHostingProvider(cfg config.Config, log *zap.Logger) (hostingapi.Provider, error) {
	switch cfg.Hosting.Mode {
	case "live":
		return whm.NewClient(cfg.Hosting.BaseURL, cfg.Hosting.APIToken)
	case "mock", "":
		log.Warn("hosting provider running in mock mode, accounts will not be real")
		return hostingmock.New(), nil
	default:
		return nil, fmt.Errorf("providers: unknown hosting mode %q", cfg.Hosting.Mode)
	}
}

func NewPaymentProvider(cfg config.Config, log *zap.Logger) (payment.Provider, error) {
	switch cfg.Payment.Mode {
	case "live":
		return stripeapi.NewClient(cfg.Payment.APIKey), nil
	case "mock", "":
		log.Warn("payment provider running in mock mode, checkout sessions will not be real")
		return paymentmock.New(), nil
	default:
		return nil, fmt.Errorf("providers: unknown payment mode %q", cfg.Payment.Mode)
	}
}
