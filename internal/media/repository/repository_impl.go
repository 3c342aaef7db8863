package repository

import (
	"context"

	"github.com/smallbiznis/mediavault/internal/media/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOwned(ctx context.Context, db *gorm.DB, userID, mediaID string) (*domain.Media, error) {
	var item domain.Media
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, type, size, url, versions, created_at, deleted_at
		 FROM media
		 WHERE id = ? AND user_id = ?
		 LIMIT 1`,
		mediaID,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertReclaim(ctx context.Context, db *gorm.DB, reclaim domain.Reclaim) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO media_reclaims (media_id, user_id, size, reclaimed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (media_id) DO NOTHING`,
		reclaim.MediaID,
		reclaim.UserID,
		reclaim.Size,
		reclaim.ReclaimedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeleteReclaim(ctx context.Context, db *gorm.DB, mediaID string) error {
	return db.WithContext(ctx).Exec(`DELETE FROM media_reclaims WHERE media_id = ?`, mediaID).Error
}
