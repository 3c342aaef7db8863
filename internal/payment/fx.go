package payment

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/smallbiznis/mediavault/internal/payment/adapters/paymob"
	"github.com/smallbiznis/mediavault/internal/payment/domain"
	"github.com/smallbiznis/mediavault/internal/payment/repository"
	paymentservice "github.com/smallbiznis/mediavault/internal/payment/service"
	"github.com/smallbiznis/mediavault/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) (domain.Gateway, error) {
		return NewGateway(cfg, paymob.NewFactory())
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewGateway builds the adapter for the configured provider, matched without
// regard to case. Startup fails on an unknown provider or incomplete config.
func NewGateway(cfg config.Config, factories ...domain.AdapterFactory) (domain.Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Payment.Provider))
	for _, factory := range factories {
		if factory == nil || strings.ToLower(factory.Provider()) != provider {
			continue
		}
		return factory.NewAdapter(domain.AdapterConfig{
			BaseURL:       cfg.Payment.BaseURL,
			APIKey:        cfg.Payment.APIKey,
			HMACSecret:    cfg.Payment.HMACSecret,
			IntegrationID: cfg.Payment.IntegrationID,
			IframeID:      cfg.Payment.IframeID,
			Currency:      cfg.Payment.Currency,
			Timeout:       cfg.Payment.Timeout,
		})
	}
	return nil, fmt.Errorf("payment provider %q: %w", cfg.Payment.Provider, domain.ErrProviderNotFound)
}
