package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

// newMockDB wires a *gorm.DB onto a sqlmock connection through the same
// Postgres dialector store.New uses, so the generated SQL matches what runs
// against the real database rather than SQLite's dialect.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestIdempotencyRepositoryGetHitsExactQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	rows := sqlmock.NewRows([]string{"key", "request_hash", "status_code", "response_body", "created_at"}).
		AddRow("key-1", "hash-1", 200, `{"ok":true}`, time.Now())
	mock.ExpectQuery(`SELECT \* FROM "idempotency_records" WHERE key = \$1`).
		WillReturnRows(rows)

	rec, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", rec.RequestHash)
	assert.Equal(t, 200, rec.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepositoryGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "idempotency_records" WHERE key = \$1`).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepositorySaveInsertsRecord(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "idempotency_records"`)).
		WithArgs("key-1", "hash-1", 200, `{"ok":true}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := &store.IdempotencyRecord{
		Key:          "key-1",
		RequestHash:  "hash-1",
		StatusCode:   200,
		ResponseBody: `{"ok":true}`,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, repo.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepositorySaveConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "idempotency_records"`)).
		WithArgs("key-1", "hash-1", 200, `{"ok":true}`, sqlmock.AnyArg()).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "idempotency_records_pkey"`))
	mock.ExpectRollback()

	rec := &store.IdempotencyRecord{
		Key:          "key-1",
		RequestHash:  "hash-1",
		StatusCode:   200,
		ResponseBody: `{"ok":true}`,
		CreatedAt:    time.Now(),
	}
	err := repo.Save(context.Background(), rec)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
