package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes sub keyed on user_id. An ACTIVE row on the same plan touched
	// after windowStart is left untouched and Upsert reports false.
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription, windowStart time.Time) (bool, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	Cancel(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
