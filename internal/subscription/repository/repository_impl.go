package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *domain.Subscription, windowStart time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, plan_id, status, start_date, end_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
		WHERE NOT (
			subscriptions.plan_id = excluded.plan_id
			AND subscriptions.status = ?
			AND subscriptions.updated_at > ?
		)`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.CreatedAt,
		sub.UpdatedAt,
		domain.SubscriptionStatusActive,
		windowStart,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, plan_id, status, start_date, end_date, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE user_id = ? AND status = ?`,
		domain.SubscriptionStatusCanceled,
		now,
		userID,
		domain.SubscriptionStatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, plan_id, status, start_date, end_date, created_at, updated_at
		 FROM subscriptions
		 WHERE status = ? AND end_date <= ?
		 ORDER BY end_date ASC
		 LIMIT ?`,
		domain.SubscriptionStatusActive,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND end_date <= ?`,
		domain.SubscriptionStatusExpired,
		now,
		id,
		domain.SubscriptionStatusActive,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
