package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/providers/identity"
	"github.com/smallbiznis/mediavault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultActivationWindow = 10 * time.Minute
	defaultIdentityTimeout  = 5 * time.Second
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository

	plans    plandomain.Service
	identity identity.Provider

	activationWindow time.Duration
	identityTimeout  time.Duration
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Plans    plandomain.Service
	Identity identity.Provider
	Cfg      config.Config
}

func NewService(p Params) domain.Service {
	window := p.Cfg.Subscription.ActivationWindow
	if window <= 0 {
		window = defaultActivationWindow
	}
	identityTimeout := p.Cfg.Identity.Timeout
	if identityTimeout <= 0 {
		identityTimeout = defaultIdentityTimeout
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		plans:    p.Plans,
		identity: p.Identity,

		activationWindow: window,
		identityTimeout:  identityTimeout,
	}
}

func (s *Service) Activate(ctx context.Context, userID, planID string) (domain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Subscription{}, domain.ErrInvalidUser
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return domain.Subscription{}, domain.ErrInvalidPlan
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return domain.Subscription{}, err
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    domain.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}

	written, err := s.repo.Upsert(ctx, s.db, sub, now.Add(-s.activationWindow))
	if err != nil {
		return domain.Subscription{}, err
	}

	current, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if current == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}

	if !written {
		s.log.Debug("activation inside idempotency window, skipped",
			zap.String("user_id", userID),
			zap.String("plan_id", plan.ID),
		)
		return *current, nil
	}

	s.log.Info("subscription activated",
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.Time("end_date", current.EndDate),
	)
	s.propagate(ctx, userID, map[string]any{
		"plan":                plan.ID,
		"planName":            plan.Name,
		"subscriptionStatus":  string(current.Status),
		"subscriptionEndDate": current.EndDate.Format(time.RFC3339),
	})
	return *current, nil
}

func (s *Service) GetActive(ctx context.Context, userID string) (domain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Subscription{}, domain.ErrInvalidUser
	}

	sub, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil || !sub.IsActiveAt(s.clock.Now()) {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *Service) Cancel(ctx context.Context, userID string) (domain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Subscription{}, domain.ErrInvalidUser
	}

	canceled, err := s.repo.Cancel(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return domain.Subscription{}, err
	}

	sub, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	if !canceled {
		return domain.Subscription{}, domain.ErrSubscriptionNotActive
	}

	s.log.Info("subscription canceled", zap.String("user_id", userID), zap.String("plan_id", sub.PlanID))
	s.propagate(ctx, userID, map[string]any{
		"plan":               plandomain.FreePlanID,
		"subscriptionStatus": string(sub.Status),
	})
	return *sub, nil
}

func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDue(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range due {
		ok, err := s.repo.MarkExpired(ctx, s.db, sub.ID, now)
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++
		s.propagate(ctx, sub.UserID, map[string]any{
			"plan":               plandomain.FreePlanID,
			"subscriptionStatus": string(domain.SubscriptionStatusExpired),
		})
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int("count", expired))
	}
	return expired, nil
}

// propagate pushes plan state to the identity provider. The datastore stays the
// source of truth, so failures are only logged.
func (s *Service) propagate(ctx context.Context, userID string, metadata map[string]any) {
	if s.identity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.identityTimeout)
	defer cancel()

	if err := s.identity.UpdateAppMetadata(ctx, userID, metadata); err != nil {
		s.log.Warn("identity metadata propagation failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
