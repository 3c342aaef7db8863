package usage

import (
	"github.com/smallbiznis/mediavault/internal/usage/repository"
	"github.com/smallbiznis/mediavault/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
