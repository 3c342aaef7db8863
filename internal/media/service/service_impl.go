package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/media/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("media.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Reclaim(ctx context.Context, userID, mediaID string) (int64, error) {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return 0, domain.ErrInvalidMedia
	}
	item, err := s.repo.FindOwned(ctx, s.db, userID, mediaID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, domain.ErrMediaNotFound
	}

	inserted, err := s.repo.InsertReclaim(ctx, s.db, domain.Reclaim{
		MediaID:     item.ID,
		UserID:      item.UserID,
		Size:        item.Size,
		ReclaimedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim media: %w", err)
	}
	if !inserted {
		s.log.Info("media already reclaimed", zap.String("media_id", item.ID), zap.String("user_id", userID))
		return 0, domain.ErrAlreadyReclaimed
	}
	return item.Size, nil
}

func (s *Service) Release(ctx context.Context, mediaID string) error {
	if err := s.repo.DeleteReclaim(ctx, s.db, strings.TrimSpace(mediaID)); err != nil {
		return fmt.Errorf("release media reclaim: %w", err)
	}
	return nil
}
