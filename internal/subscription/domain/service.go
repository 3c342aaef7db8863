package domain

import (
	"context"
	"errors"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Activate sets the user's single subscription to ACTIVE on planID for one period.
	Activate(ctx context.Context, userID, planID string) (Subscription, error)
	GetActive(ctx context.Context, userID string) (Subscription, error)
	Cancel(ctx context.Context, userID string) (Subscription, error)
	// ExpireDue moves lapsed ACTIVE subscriptions to EXPIRED and returns how many moved.
	ExpireDue(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidPlan           = errors.New("invalid_plan")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrSubscriptionNotActive = errors.New("subscription_not_active")
)
