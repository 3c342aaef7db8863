package domain

import (
	"context"
	"errors"
)

const (
	DefaultAnalyticsMonths = 6
	MaxAnalyticsMonths     = 24
)

type RecordUploadRequest struct {
	UserID          string
	SizeBytes       int64
	Transformations int64

	// StorageLimitBytes and TransformationsLimit guard the write; plandomain.Unlimited
	// skips the respective check.
	StorageLimitBytes    int64
	TransformationsLimit int64
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	CurrentPeriod(ctx context.Context, userID string) (UsageTracking, error)
	// Peek reads the current period without creating it. A missing row reads as zero usage.
	Peek(ctx context.Context, userID string) (UsageTracking, error)
	RecordUpload(ctx context.Context, req RecordUploadRequest) (UsageTracking, error)
	RecordDeletion(ctx context.Context, userID string, sizeBytes int64) (UsageTracking, error)
	Analytics(ctx context.Context, userID string, months int) (Analytics, error)
}

var (
	ErrInvalidUser                 = errors.New("invalid_user")
	ErrInvalidSize                 = errors.New("invalid_size")
	ErrInvalidTransformations      = errors.New("invalid_transformations")
	ErrStorageLimitExceeded        = errors.New("storage_limit_exceeded")
	ErrTransformationLimitExceeded = errors.New("transformation_limit_exceeded")
	ErrUsageNotFound               = errors.New("usage_not_found")
)
