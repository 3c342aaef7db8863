package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status         PaymentStatus
	NeedsAttention bool
	UserID         string
	BeforeID       snowflake.ID
	Limit          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByProviderTxn(ctx context.Context, db *gorm.DB, provider, providerTxnID string) (*Payment, error)
	// TransitionFromPending is the compare-and-set out of PENDING. It reports
	// false when the payment was no longer PENDING.
	TransitionFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus, metadata datatypes.JSON, now time.Time) (bool, error)
	// ForceFailed moves a SUCCESS payment to FAILED and flags it for an operator.
	ForceFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSON, now time.Time) (bool, error)
	// Reactivate moves a flagged FAILED payment back to SUCCESS.
	Reactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSON, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Payment, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time, processingError *string) error
}
