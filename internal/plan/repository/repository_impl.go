package repository

import (
	"context"

	"github.com/smallbiznis/mediavault/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Plan, error) {
	var item domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, currency, storage_limit_mb, max_upload_size_mb,
			transformations_limit, team_members, sort_order, created_at, updated_at
		 FROM plans
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var items []domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, currency, storage_limit_mb, max_upload_size_mb,
			transformations_limit, team_members, sort_order, created_at, updated_at
		 FROM plans
		 ORDER BY sort_order ASC, price ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (
			id, name, price, currency, storage_limit_mb, max_upload_size_mb,
			transformations_limit, team_members, sort_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			currency = excluded.currency,
			storage_limit_mb = excluded.storage_limit_mb,
			max_upload_size_mb = excluded.max_upload_size_mb,
			transformations_limit = excluded.transformations_limit,
			team_members = excluded.team_members,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		plan.ID,
		plan.Name,
		plan.Price,
		plan.Currency,
		plan.StorageLimitMB,
		plan.MaxUploadSizeMB,
		plan.TransformationsLimit,
		plan.TeamMembers,
		plan.SortOrder,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}
