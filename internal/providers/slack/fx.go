package slack

import (
	"github.com/smallbiznis/mediavault/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Alert.SlackWebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Alert.SlackWebhookURL, cfg.Alert.Timeout)
}
