package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/mediavault/internal/observability/metrics"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log     *zap.Logger
	plans   plandomain.Service
	subs    subscriptiondomain.Service
	usage   usagedomain.Service
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Plans   plandomain.Service
	Subs    subscriptiondomain.Service
	Usage   usagedomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("quota.service"),
		plans:   p.Plans,
		subs:    p.Subs,
		usage:   p.Usage,
		metrics: p.Metrics,
	}
}

func (s *Service) Authorize(ctx context.Context, userID string, kind domain.OperationKind, sizeBytes int64) (domain.Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Decision{}, domain.ErrInvalidUser
	}
	if !kind.Valid() {
		return domain.Decision{}, domain.ErrInvalidOperation
	}
	if sizeBytes < 0 {
		return domain.Decision{}, domain.ErrInvalidSize
	}

	limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Decision{
		Outcome:   domain.OutcomeAllow,
		Kind:      kind,
		SizeBytes: sizeBytes,
		Limits:    limits,
	}

	if maxUpload := limits.MaxUploadSizeBytes(); maxUpload >= 0 && sizeBytes > maxUpload {
		return s.finish(ctx, userID, reject(decision, domain.ReasonFileTooLarge)), nil
	}

	usage, err := s.usage.Peek(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	decision.Usage = usage

	if storageLimit := limits.StorageLimitBytes(); storageLimit >= 0 && usage.StorageUsed+sizeBytes > storageLimit {
		return s.finish(ctx, userID, reject(decision, domain.ReasonStorageLimitExceeded)), nil
	}

	units := kind.TransformationUnits()
	decision.TransformationUnits = units
	if units > 0 && !limits.UnlimitedTransformations() && usage.TransformationsUsed+units > limits.TransformationsLimit {
		if kind == domain.OperationTransform {
			return s.finish(ctx, userID, reject(decision, domain.ReasonTransformationLimitExceeded)), nil
		}
		decision.Outcome = domain.OutcomeAllowWithWarning
		decision.Reason = domain.ReasonTransformationLimitExceeded
		decision.TransformationUnits = 0
	}

	return s.finish(ctx, userID, decision), nil
}

func (s *Service) limitsFor(ctx context.Context, userID string) (plandomain.PlanLimits, error) {
	var planID *string
	sub, err := s.subs.GetActive(ctx, userID)
	switch {
	case err == nil:
		planID = &sub.PlanID
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
	default:
		return plandomain.PlanLimits{}, err
	}
	return s.plans.LimitsFor(ctx, planID)
}

func (s *Service) finish(ctx context.Context, userID string, decision domain.Decision) domain.Decision {
	s.metrics.RecordQuotaDecision(ctx, string(decision.Kind), string(decision.Outcome), string(decision.Reason))
	if decision.Outcome != domain.OutcomeAllow {
		s.log.Info("quota decision",
			zap.String("user_id", userID),
			zap.String("kind", string(decision.Kind)),
			zap.String("outcome", string(decision.Outcome)),
			zap.String("reason", string(decision.Reason)),
			zap.String("plan_id", decision.Limits.PlanID),
			zap.Int64("size_bytes", decision.SizeBytes),
		)
	}
	return decision
}

func reject(decision domain.Decision, reason domain.Reason) domain.Decision {
	decision.Outcome = domain.OutcomeReject
	decision.Reason = reason
	decision.TransformationUnits = 0
	return decision
}
