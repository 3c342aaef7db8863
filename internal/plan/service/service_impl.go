package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/mediavault/internal/cache"
	"github.com/smallbiznis/mediavault/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	planCacheTTL  = 5 * time.Minute
	planCacheSize = 64
	catalogKey    = "catalog"
)

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository

	plans   *cache.LoaderCache[domain.Plan]
	catalog *cache.LoaderCache[[]domain.Plan]
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("plan.service"),
		repo: p.Repo,

		plans:   cache.NewLoaderCache[domain.Plan](planCacheSize, planCacheTTL),
		catalog: cache.NewLoaderCache[[]domain.Plan](1, planCacheTTL),
	}
}

func (s *Service) LimitsFor(ctx context.Context, planID *string) (domain.PlanLimits, error) {
	if planID == nil || strings.TrimSpace(*planID) == "" {
		free, err := s.Free(ctx)
		if err != nil {
			return domain.PlanLimits{}, err
		}
		return free.Limits(), nil
	}

	plan, err := s.Get(ctx, *planID)
	switch {
	case err == nil:
		return plan.Limits(), nil
	case errors.Is(err, domain.ErrPlanNotFound):
		// A subscription pointing at a retired plan degrades to the Free floor.
		s.log.Warn("subscribed plan missing from catalog, using free limits", zap.String("plan_id", *planID))
		free, freeErr := s.Free(ctx)
		if freeErr != nil {
			return domain.PlanLimits{}, freeErr
		}
		return free.Limits(), nil
	default:
		return domain.PlanLimits{}, err
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Plan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return domain.Plan{}, domain.ErrInvalidPlan
	}

	return s.plans.GetOrLoad(ctx, id, func(ctx context.Context) (domain.Plan, error) {
		item, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return domain.Plan{}, err
		}
		if item == nil {
			return domain.Plan{}, domain.ErrPlanNotFound
		}
		return *item, nil
	})
}

func (s *Service) List(ctx context.Context) ([]domain.Plan, error) {
	items, err := s.catalog.GetOrLoad(ctx, catalogKey, func(ctx context.Context) ([]domain.Plan, error) {
		return s.repo.List(ctx, s.db)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Plan, len(items))
	copy(out, items)
	return out, nil
}

func (s *Service) Free(ctx context.Context) (domain.Plan, error) {
	plan, err := s.Get(ctx, domain.FreePlanID)
	if errors.Is(err, domain.ErrPlanNotFound) {
		s.log.Error("free plan is not configured")
		return domain.Plan{}, domain.ErrFreePlanNotFound
	}
	return plan, err
}

func (s *Service) Invalidate() {
	s.plans.Purge()
	s.catalog.Purge()
}
