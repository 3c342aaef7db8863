package payment

import (
	"testing"

	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/smallbiznis/mediavault/internal/payment/adapters/paymob"
	"github.com/smallbiznis/mediavault/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentConfig(provider string) config.Config {
	return config.Config{Payment: config.PaymentConfig{
		Provider:      provider,
		BaseURL:       "http://gateway.invalid",
		APIKey:        "key",
		HMACSecret:    "secret",
		IntegrationID: 1,
		IframeID:      "1",
	}}
}

func TestNewGatewaySelectsProvider(t *testing.T) {
	gw, err := NewGateway(paymentConfig(" PayMob "), paymob.NewFactory())
	require.NoError(t, err)
	assert.Equal(t, "paymob", gw.Provider())
}

func TestNewGatewayUnknownProvider(t *testing.T) {
	_, err := NewGateway(paymentConfig("stripe"), paymob.NewFactory())
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Contains(t, err.Error(), "stripe")
}

func TestNewGatewayIncompleteConfig(t *testing.T) {
	cfg := paymentConfig("paymob")
	cfg.Payment.APIKey = ""

	_, err := NewGateway(cfg, paymob.NewFactory())
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
