package identity

import (
	"strings"

	"github.com/smallbiznis/mediavault/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.identity",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if strings.TrimSpace(cfg.Identity.Domain) == "" {
		return &NoOpProvider{}
	}
	return NewManagementClient(Config{
		Domain:          cfg.Identity.Domain,
		ManagementToken: cfg.Identity.ManagementToken,
		Timeout:         cfg.Identity.Timeout,
	})
}
