package media

import (
	"github.com/smallbiznis/mediavault/internal/media/repository"
	"github.com/smallbiznis/mediavault/internal/media/service"
	"go.uber.org/fx"
)

var Module = fx.Module("media.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
