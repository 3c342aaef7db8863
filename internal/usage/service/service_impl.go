package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/observability/metrics"
	"github.com/smallbiznis/mediavault/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) CurrentPeriod(ctx context.Context, userID string) (domain.UsageTracking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UsageTracking{}, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	period := domain.PeriodOf(now)
	if err := s.ensure(ctx, userID, period, now); err != nil {
		return domain.UsageTracking{}, err
	}
	return s.load(ctx, userID, period)
}

func (s *Service) Peek(ctx context.Context, userID string) (domain.UsageTracking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UsageTracking{}, domain.ErrInvalidUser
	}

	period := domain.PeriodOf(s.clock.Now())
	row, err := s.repo.FindPeriod(ctx, s.db, userID, period)
	if err != nil {
		return domain.UsageTracking{}, err
	}
	if row == nil {
		return domain.UsageTracking{UserID: userID, Month: period.Month, Year: period.Year}, nil
	}
	return *row, nil
}

func (s *Service) RecordUpload(ctx context.Context, req domain.RecordUploadRequest) (domain.UsageTracking, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.UsageTracking{}, domain.ErrInvalidUser
	}
	if req.SizeBytes < 0 {
		return domain.UsageTracking{}, domain.ErrInvalidSize
	}
	if req.Transformations < 0 {
		return domain.UsageTracking{}, domain.ErrInvalidTransformations
	}

	now := s.clock.Now()
	period := domain.PeriodOf(now)
	if err := s.ensure(ctx, userID, period, now); err != nil {
		return domain.UsageTracking{}, err
	}

	guard := domain.UploadGuard{
		StorageLimit:         req.StorageLimitBytes,
		TransformationsLimit: req.TransformationsLimit,
	}
	applied, err := s.repo.IncrementUpload(ctx, s.db, userID, period, req.SizeBytes, req.Transformations, guard, now)
	if err != nil {
		return domain.UsageTracking{}, fmt.Errorf("record upload: %w", err)
	}
	if !applied {
		cause := s.rejectionCause(ctx, userID, period, req)
		s.log.Info("upload rejected by usage guard",
			zap.String("user_id", userID),
			zap.Int64("size_bytes", req.SizeBytes),
			zap.Int64("transformations", req.Transformations),
			zap.Error(cause),
		)
		return domain.UsageTracking{}, cause
	}
	s.metrics.RecordUsageUpdate(ctx, "upload")

	return s.load(ctx, userID, period)
}

// rejectionCause tells which guard refused an upload. Storage wins when both
// would have failed.
func (s *Service) rejectionCause(ctx context.Context, userID string, period domain.Period, req domain.RecordUploadRequest) error {
	row, err := s.repo.FindPeriod(ctx, s.db, userID, period)
	if err != nil || row == nil {
		return domain.ErrStorageLimitExceeded
	}
	if req.StorageLimitBytes >= 0 && row.StorageUsed+req.SizeBytes > req.StorageLimitBytes {
		return domain.ErrStorageLimitExceeded
	}
	if req.TransformationsLimit >= 0 && req.Transformations > 0 &&
		row.TransformationsUsed+req.Transformations > req.TransformationsLimit {
		return domain.ErrTransformationLimitExceeded
	}
	return domain.ErrStorageLimitExceeded
}

func (s *Service) RecordDeletion(ctx context.Context, userID string, sizeBytes int64) (domain.UsageTracking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UsageTracking{}, domain.ErrInvalidUser
	}
	if sizeBytes < 0 {
		return domain.UsageTracking{}, domain.ErrInvalidSize
	}

	now := s.clock.Now()
	period := domain.PeriodOf(now)
	if err := s.ensure(ctx, userID, period, now); err != nil {
		return domain.UsageTracking{}, err
	}
	if err := s.repo.DecrementStorage(ctx, s.db, userID, period, sizeBytes, now); err != nil {
		return domain.UsageTracking{}, fmt.Errorf("record deletion: %w", err)
	}
	s.metrics.RecordUsageUpdate(ctx, "delete")

	return s.load(ctx, userID, period)
}

func (s *Service) Analytics(ctx context.Context, userID string, months int) (domain.Analytics, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Analytics{}, domain.ErrInvalidUser
	}
	months = clampMonths(months)

	to := domain.PeriodOf(s.clock.Now())
	from := to.AddMonths(-(months - 1))

	rows, err := s.repo.ListRange(ctx, s.db, userID, from, to)
	if err != nil {
		return domain.Analytics{}, err
	}
	byIndex := make(map[int]domain.UsageTracking, len(rows))
	for _, row := range rows {
		byIndex[row.Period().Index()] = row
	}

	out := domain.Analytics{
		Months:  months,
		Periods: make([]domain.PeriodUsage, 0, months),
	}
	for i := 0; i < months; i++ {
		period := to.AddMonths(-i)
		row := byIndex[period.Index()]

		out.Periods = append(out.Periods, domain.PeriodUsage{
			Period:              period,
			StorageUsed:         row.StorageUsed,
			StorageUsedMB:       domain.BytesToMB(row.StorageUsed),
			TransformationsUsed: row.TransformationsUsed,
			UploadsCount:        row.UploadsCount,
		})

		out.Totals.TransformationsUsed += row.TransformationsUsed
		out.Totals.UploadsCount += row.UploadsCount
		if row.StorageUsed > out.Totals.PeakStorageUsed {
			out.Totals.PeakStorageUsed = row.StorageUsed
		}
	}
	out.Totals.PeakStorageUsedMB = domain.BytesToMB(out.Totals.PeakStorageUsed)

	return out, nil
}

func clampMonths(months int) int {
	switch {
	case months <= 0:
		return domain.DefaultAnalyticsMonths
	case months > domain.MaxAnalyticsMonths:
		return domain.MaxAnalyticsMonths
	default:
		return months
	}
}

func (s *Service) ensure(ctx context.Context, userID string, period domain.Period, now time.Time) error {
	row := &domain.UsageTracking{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Month:     period.Month,
		Year:      period.Year,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.EnsurePeriod(ctx, s.db, row); err != nil {
		return fmt.Errorf("ensure usage period: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string, period domain.Period) (domain.UsageTracking, error) {
	row, err := s.repo.FindPeriod(ctx, s.db, userID, period)
	if err != nil {
		return domain.UsageTracking{}, err
	}
	if row == nil {
		return domain.UsageTracking{}, domain.ErrUsageNotFound
	}
	return *row, nil
}
