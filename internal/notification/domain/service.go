package domain

import (
	"context"
	"time"
)

// PaymentNotice describes a settled payment for the user-facing emails.
type PaymentNotice struct {
	PaymentID string
	UserID    string
	PlanID    string
	PlanName  string
	Amount    int64
	Currency  string
	EndDate   time.Time
}

// ConsistencyAlert reports a payment that was charged but could not be activated.
type ConsistencyAlert struct {
	PaymentID string
	UserID    string
	PlanID    string
	Provider  string
	OrderID   string
	Cause     string
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	PaymentSucceeded(ctx context.Context, notice PaymentNotice) error
	PaymentFailed(ctx context.Context, notice PaymentNotice) error
	ActivationFailed(ctx context.Context, alert ConsistencyAlert) error
}
