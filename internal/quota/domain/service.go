package domain

import (
	"context"
	"errors"

	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Authorize never mutates state. A user with no subscription or usage row is
	// evaluated as zero usage against the Free limits.
	Authorize(ctx context.Context, userID string, kind OperationKind, sizeBytes int64) (Decision, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidOperation = errors.New("invalid_operation")
	ErrInvalidSize      = errors.New("invalid_size")
	ErrQuotaExceeded    = errors.New("quota_exceeded")
	ErrFileTooLarge     = errors.New("file_too_large")

	// Shared with the ledger guard so both paths map alike.
	ErrStorageLimitExceeded        = usagedomain.ErrStorageLimitExceeded
	ErrTransformationLimitExceeded = usagedomain.ErrTransformationLimitExceeded
)
