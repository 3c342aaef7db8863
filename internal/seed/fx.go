package seed

import (
	"context"
	"time"

	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(Register),
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Cfg     config.Config
	Catalog *config.PlanCatalogHolder
	Repo    plandomain.Repository
	Plans   plandomain.Service
}

// Register seeds the catalog at startup and again after every catalog reload.
func Register(p Params) error {
	log := p.Log.Named("seed")

	apply := func(ctx context.Context, catalog config.PlanCatalog) error {
		n, err := EnsurePlans(ctx, p.DB, p.Repo, catalog, p.Cfg.Payment.Currency, p.Clock.Now())
		if err != nil {
			return err
		}
		p.Plans.Invalidate()
		log.Info("plan catalog seeded", zap.Int("plans", n))
		return nil
	}

	if err := apply(context.Background(), p.Catalog.Get()); err != nil {
		return err
	}

	p.Catalog.OnChange(func(catalog config.PlanCatalog) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apply(ctx, catalog); err != nil {
			log.Error("plan catalog reseed failed", zap.Error(err))
		}
	})
	return nil
}
