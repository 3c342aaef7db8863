package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smallbiznis/mediavault/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestIncrementUploadIsSingleGuardedUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE usage_tracking\s+SET storage_used = storage_used \+ \$1,\s+transformations_used = transformations_used \+ \$2,\s+uploads_count = uploads_count \+ 1`+
		`.*AND storage_used \+ \$7 <= \$8`).
		WithArgs(int64(1024), int64(3), now, "u1", 3, 2026, int64(1024), int64(4096)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	guard := domain.UploadGuard{StorageLimit: 4096, TransformationsLimit: -1}
	applied, err := Provide().IncrementUpload(context.Background(), db, "u1", domain.Period{Month: 3, Year: 2026}, 1024, 3, guard, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUploadReportsGuardRejection(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE usage_tracking`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	guard := domain.UploadGuard{StorageLimit: 512, TransformationsLimit: 10}
	applied, err := Provide().IncrementUpload(context.Background(), db, "u1", domain.Period{Month: 3, Year: 2026}, 1024, 0, guard, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUploadUnlimitedHasNoGuard(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE usage_tracking.*WHERE user_id = \$4 AND month = \$5 AND year = \$6$`).
		WithArgs(int64(1024), int64(0), now, "u1", 3, 2026).
		WillReturnResult(sqlmock.NewResult(0, 1))

	guard := domain.UploadGuard{StorageLimit: -1, TransformationsLimit: 10}
	applied, err := Provide().IncrementUpload(context.Background(), db, "u1", domain.Period{Month: 3, Year: 2026}, 1024, 0, guard, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUploadGuardsTransformations(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE usage_tracking.*AND storage_used \+ \$7 <= \$8 AND transformations_used \+ \$9 <= \$10$`).
		WithArgs(int64(1024), int64(3), now, "u1", 3, 2026, int64(1024), int64(4096), int64(3), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	guard := domain.UploadGuard{StorageLimit: 4096, TransformationsLimit: 10}
	applied, err := Provide().IncrementUpload(context.Background(), db, "u1", domain.Period{Month: 3, Year: 2026}, 1024, 3, guard, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStorageClampsInSQL(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`SET storage_used = CASE WHEN storage_used > $1 THEN storage_used - $2 ELSE 0 END`)).
		WithArgs(int64(2048), int64(2048), now, "u1", 3, 2026).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := Provide().DecrementStorage(context.Background(), db, "u1", domain.Period{Month: 3, Year: 2026}, 2048, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
