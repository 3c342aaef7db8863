package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
	Upsert(ctx context.Context, db *gorm.DB, plan *Plan) error
}
