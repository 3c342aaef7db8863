package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/config"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"github.com/smallbiznis/mediavault/internal/plan/repository"
	planservice "github.com/smallbiznis/mediavault/internal/plan/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seededAt = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestEnsurePlansUpsertsCatalog(t *testing.T) {
	db := setupDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	n, err := EnsurePlans(ctx, db, repo, config.DefaultPlanCatalog(), "egp", seededAt)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pro, err := repo.FindByID(ctx, db, "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(29900), pro.Price)
	assert.Equal(t, "EGP", pro.Currency)
	assert.Equal(t, 1, pro.SortOrder)

	catalog := config.DefaultPlanCatalog()
	catalog.Plans[1].Price = 34900
	_, err = EnsurePlans(ctx, db, repo, catalog, "EGP", seededAt.Add(time.Hour))
	require.NoError(t, err)

	pro, err = repo.FindByID(ctx, db, "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(34900), pro.Price)

	var count int64
	require.NoError(t, db.Table("plans").Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestPlansFromCatalogRequiresFree(t *testing.T) {
	catalog := config.PlanCatalog{Plans: []config.PlanSpec{
		{Name: "Pro", Price: 29900, StorageLimitMB: 10240, MaxUploadSizeMB: 100},
	}}
	_, err := PlansFromCatalog(catalog, "EGP", seededAt)
	assert.ErrorIs(t, err, ErrFreePlanMissing)
}

func TestPlansFromCatalogDerivesIDFromName(t *testing.T) {
	catalog := config.PlanCatalog{Plans: []config.PlanSpec{
		{Name: "Free", StorageLimitMB: 500, MaxUploadSizeMB: 10},
		{Name: "Team Plus", Price: 49900, Currency: "usd", StorageLimitMB: 20480, MaxUploadSizeMB: 200},
	}}
	plans, err := PlansFromCatalog(catalog, "EGP", seededAt)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "free", plans[0].ID)
	assert.Equal(t, "EGP", plans[0].Currency)
	assert.Equal(t, "team-plus", plans[1].ID)
	assert.Equal(t, "USD", plans[1].Currency)
}

func TestRegisterSeedsAtStartup(t *testing.T) {
	db := setupDB(t)
	repo := repository.Provide()
	plans := planservice.NewService(planservice.Params{DB: db, Log: zap.NewNop(), Repo: repo})

	err := Register(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(seededAt),
		Cfg:     config.Config{Payment: config.PaymentConfig{Currency: "EGP"}},
		Catalog: config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()),
		Repo:    repo,
		Plans:   plans,
	})
	require.NoError(t, err)

	free, err := plans.Free(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plandomain.FreePlanID, free.ID)
	assert.Equal(t, int64(500), free.StorageLimitMB)
}
