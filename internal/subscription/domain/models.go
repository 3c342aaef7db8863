// Package domain contains the single-row-per-user subscription model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// Subscription is unique per user. A user without one is on the Free plan.
type Subscription struct {
	ID        snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID    string             `json:"user_id" gorm:"type:text;not null;uniqueIndex"`
	PlanID    string             `json:"plan_id" gorm:"type:text;not null"`
	Status    SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	StartDate time.Time          `json:"start_date" gorm:"not null"`
	EndDate   time.Time          `json:"end_date" gorm:"not null"`
	CreatedAt time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time          `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsActiveAt reports whether the subscription grants its plan at t.
func (s Subscription) IsActiveAt(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(t)
}
