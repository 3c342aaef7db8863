package domain

import (
	"context"
	"errors"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// LimitsFor resolves the limits of planID, or of the Free plan when planID is nil.
	LimitsFor(ctx context.Context, planID *string) (PlanLimits, error)
	Get(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Free(ctx context.Context) (Plan, error)
	// Invalidate drops cached plans after the catalog changes.
	Invalidate()
}

var (
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrPlanNotFound     = errors.New("plan_not_found")
	ErrFreePlanNotFound = errors.New("free_plan_not_found")
)
