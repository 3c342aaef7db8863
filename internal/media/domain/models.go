// Package domain exposes the media rows written by the upload pipeline.
// The quota core only reads them.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type Media struct {
	ID        string         `json:"id" gorm:"primaryKey;type:text"`
	UserID    string         `json:"user_id" gorm:"type:text;not null;index"`
	Type      MediaType      `json:"type" gorm:"type:text;not null"`
	Size      int64          `json:"size" gorm:"not null"`
	URL       string         `json:"url" gorm:"type:text;not null"`
	Versions  datatypes.JSON `json:"versions"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	DeletedAt *time.Time     `json:"deleted_at"`
}

func (Media) TableName() string { return "media" }

// Reclaim records that a media row's storage was given back to the ledger.
// It is owned by the quota core and keyed by media id, so a row is reclaimed once.
type Reclaim struct {
	MediaID     string    `json:"media_id" gorm:"primaryKey;type:text"`
	UserID      string    `json:"user_id" gorm:"type:text;not null"`
	Size        int64     `json:"size" gorm:"not null"`
	ReclaimedAt time.Time `json:"reclaimed_at" gorm:"not null"`
}

func (Reclaim) TableName() string { return "media_reclaims" }

type Repository interface {
	// FindOwned returns the media row only when userID owns it. Soft-deleted rows
	// are included because usage is reclaimed after the pipeline marks them.
	FindOwned(ctx context.Context, db *gorm.DB, userID, mediaID string) (*Media, error)
	// InsertReclaim reports false when the media id was already reclaimed.
	InsertReclaim(ctx context.Context, db *gorm.DB, reclaim Reclaim) (bool, error)
	DeleteReclaim(ctx context.Context, db *gorm.DB, mediaID string) error
}

type Service interface {
	// Reclaim claims the owned row's size for a usage deletion. A second claim
	// on the same media id fails with ErrAlreadyReclaimed.
	Reclaim(ctx context.Context, userID, mediaID string) (int64, error)
	// Release undoes a claim whose ledger write failed.
	Release(ctx context.Context, mediaID string) error
}

var (
	ErrInvalidMedia     = errors.New("invalid_media")
	ErrMediaNotFound    = errors.New("media_not_found")
	ErrAlreadyReclaimed = errors.New("media_already_reclaimed")
)
