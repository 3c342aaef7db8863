package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/mediavault/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsurePeriod(ctx context.Context, db *gorm.DB, row *domain.UsageTracking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_tracking (
			id, user_id, month, year, storage_used, transformations_used,
			uploads_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)
		ON CONFLICT (user_id, month, year) DO NOTHING`,
		row.ID,
		row.UserID,
		row.Month,
		row.Year,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) FindPeriod(ctx context.Context, db *gorm.DB, userID string, period domain.Period) (*domain.UsageTracking, error) {
	var item domain.UsageTracking
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, month, year, storage_used, transformations_used,
			uploads_count, created_at, updated_at
		 FROM usage_tracking
		 WHERE user_id = ? AND month = ? AND year = ?
		 LIMIT 1`,
		userID,
		period.Month,
		period.Year,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) IncrementUpload(ctx context.Context, db *gorm.DB, userID string, period domain.Period, sizeBytes, transformations int64, guard domain.UploadGuard, now time.Time) (bool, error) {
	query := `UPDATE usage_tracking
			 SET storage_used = storage_used + ?,
			     transformations_used = transformations_used + ?,
			     uploads_count = uploads_count + 1,
			     updated_at = ?
			 WHERE user_id = ? AND month = ? AND year = ?`
	args := []interface{}{sizeBytes, transformations, now, userID, period.Month, period.Year}

	if guard.StorageLimit >= 0 {
		query += ` AND storage_used + ? <= ?`
		args = append(args, sizeBytes, guard.StorageLimit)
	}
	// an upload that consumes no transformations is never blocked by them
	if guard.TransformationsLimit >= 0 && transformations > 0 {
		query += ` AND transformations_used + ? <= ?`
		args = append(args, transformations, guard.TransformationsLimit)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DecrementStorage(ctx context.Context, db *gorm.DB, userID string, period domain.Period, sizeBytes int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_tracking
		 SET storage_used = CASE WHEN storage_used > ? THEN storage_used - ? ELSE 0 END,
		     updated_at = ?
		 WHERE user_id = ? AND month = ? AND year = ?`,
		sizeBytes,
		sizeBytes,
		now,
		userID,
		period.Month,
		period.Year,
	).Error
}

func (r *repo) ListRange(ctx context.Context, db *gorm.DB, userID string, from, to domain.Period) ([]domain.UsageTracking, error) {
	var items []domain.UsageTracking
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, month, year, storage_used, transformations_used,
			uploads_count, created_at, updated_at
		 FROM usage_tracking
		 WHERE user_id = ?
		   AND (year * 12 + month - 1) BETWEEN ? AND ?
		 ORDER BY year DESC, month DESC`,
		userID,
		from.Index(),
		to.Index(),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
