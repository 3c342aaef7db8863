package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/media/domain"
	"github.com/smallbiznis/mediavault/internal/media/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestReclaimOnlyForOwner(t *testing.T) {
	svc, _ := newTestService(t)

	size, err := svc.Reclaim(context.Background(), "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	_, err = svc.Reclaim(context.Background(), "u2", "m1")
	assert.ErrorIs(t, err, domain.ErrMediaNotFound)

	_, err = svc.Reclaim(context.Background(), "u1", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidMedia)
}

func TestReclaimIsOnceForSoftDeletedMedia(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Exec(`UPDATE media SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), "m1").Error)

	size, err := svc.Reclaim(context.Background(), "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	_, err = svc.Reclaim(context.Background(), "u1", "m1")
	assert.ErrorIs(t, err, domain.ErrAlreadyReclaimed)

	var count int64
	require.NoError(t, db.Table("media_reclaims").Where("media_id = ?", "m1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReleaseAllowsReclaimAgain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Reclaim(ctx, "u1", "m1")
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, "m1"))

	size, err := svc.Reclaim(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := []string{
		`CREATE TABLE media (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			size BIGINT NOT NULL,
			url TEXT NOT NULL,
			versions TEXT,
			created_at DATETIME NOT NULL,
			deleted_at DATETIME
		)`,
		`CREATE TABLE media_reclaims (
			media_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			size BIGINT NOT NULL,
			reclaimed_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	if err := db.Exec(
		`INSERT INTO media (id, user_id, type, size, url, versions, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"m1", "u1", "video", 4096, "https://cdn.example.com/m1.mp4", `{"720p":"https://cdn.example.com/m1-720.mp4"}`, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed media: %v", err)
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}
