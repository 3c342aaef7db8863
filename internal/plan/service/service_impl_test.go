package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/plan/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestLimitsForNilReturnsFree(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, domain.Plan{ID: "free", Name: "Free", Currency: "EGP", StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 25, TeamMembers: 1})

	limits, err := svc.LimitsFor(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "free", limits.PlanID)
	assert.Equal(t, int64(500)*domain.BytesPerMB, limits.StorageLimitBytes())
	assert.Equal(t, int64(10)*domain.BytesPerMB, limits.MaxUploadSizeBytes())
}

func TestLimitsForMissingFreeIsFatal(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.LimitsFor(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrFreePlanNotFound)
}

func TestLimitsForUnknownPlanFallsBackToFree(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, domain.Plan{ID: "free", Name: "Free", Currency: "EGP", StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 25, TeamMembers: 1})

	retired := "legacy"
	limits, err := svc.LimitsFor(context.Background(), &retired)
	require.NoError(t, err)
	assert.Equal(t, "free", limits.PlanID)
}

func TestGetUsesCacheUntilInvalidated(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, domain.Plan{ID: "pro", Name: "Pro", Price: 29900, Currency: "EGP", StorageLimitMB: 10240, MaxUploadSizeMB: 100, TransformationsLimit: 1000, TeamMembers: 5})

	plan, err := svc.Get(context.Background(), "PRO")
	require.NoError(t, err)
	assert.Equal(t, int64(29900), plan.Price)

	if err := db.Exec(`UPDATE plans SET price = 31900 WHERE id = 'pro'`).Error; err != nil {
		t.Fatalf("update plan: %v", err)
	}

	plan, err = svc.Get(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(29900), plan.Price, "expected cached plan")

	svc.Invalidate()
	plan, err = svc.Get(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(31900), plan.Price)
}

func TestListOrdersBySortOrder(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, domain.Plan{ID: "business", Name: "Business", Price: 99900, Currency: "EGP", StorageLimitMB: 102400, MaxUploadSizeMB: 500, TransformationsLimit: 10000, TeamMembers: -1, SortOrder: 2})
	seedPlan(t, db, domain.Plan{ID: "free", Name: "Free", Currency: "EGP", StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 25, TeamMembers: 1, SortOrder: 0})

	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "free", plans[0].ID)
	assert.Equal(t, "business", plans[1].ID)
}

func TestUnlimitedLimits(t *testing.T) {
	limits := domain.PlanLimits{StorageLimitMB: domain.Unlimited, MaxUploadSizeMB: domain.Unlimited, TransformationsLimit: domain.Unlimited}
	assert.True(t, limits.UnlimitedStorage())
	assert.True(t, limits.UnlimitedTransformations())
	assert.Equal(t, int64(domain.Unlimited), limits.StorageLimitBytes())
	assert.Equal(t, int64(domain.Unlimited), limits.MaxUploadSizeBytes())
}

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Exec(`CREATE TABLE plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price BIGINT NOT NULL,
		currency TEXT NOT NULL,
		storage_limit_mb BIGINT NOT NULL,
		max_upload_size_mb BIGINT NOT NULL,
		transformations_limit BIGINT NOT NULL,
		team_members INTEGER NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
	return svc, db
}

func seedPlan(t *testing.T, db *gorm.DB, plan domain.Plan) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if err := repository.Provide().Upsert(context.Background(), db, &plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}
