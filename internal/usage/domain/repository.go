package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// UploadGuard bounds an upload write. A negative limit disables that check.
type UploadGuard struct {
	StorageLimit         int64
	TransformationsLimit int64
}

type Repository interface {
	// EnsurePeriod inserts row unless the (user, month, year) row already exists.
	EnsurePeriod(ctx context.Context, db *gorm.DB, row *UsageTracking) error
	FindPeriod(ctx context.Context, db *gorm.DB, userID string, period Period) (*UsageTracking, error)
	// IncrementUpload adds to the counters in one statement. It reports false when
	// the guard rejected the write.
	IncrementUpload(ctx context.Context, db *gorm.DB, userID string, period Period, sizeBytes, transformations int64, guard UploadGuard, now time.Time) (bool, error)
	// DecrementStorage subtracts sizeBytes clamped at zero.
	DecrementStorage(ctx context.Context, db *gorm.DB, userID string, period Period, sizeBytes int64, now time.Time) error
	ListRange(ctx context.Context, db *gorm.DB, userID string, from, to Period) ([]UsageTracking, error)
}
