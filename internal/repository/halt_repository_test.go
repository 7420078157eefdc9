package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/models"
)

func newMockHaltRepo(t *testing.T) (*HaltRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHaltRepository(db), mock
}

func TestHaltCreate(t *testing.T) {
	repo, mock := newMockHaltRepo(t)

	mock.ExpectQuery(`INSERT INTO halt_overrides`).
		WithArgs("NIFTY", "expiry week chop", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	entry := &models.HaltOverride{Underlying: "NIFTY", Reason: "expiry week chop"}
	require.NoError(t, repo.Create(entry))
	assert.Equal(t, 3, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestHaltCreateDuplicate(t *testing.T) {
	repo, mock := newMockHaltRepo(t)

	mock.ExpectQuery(`INSERT INTO halt_overrides`).
		WithArgs("NIFTY", "", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(&models.HaltOverride{Underlying: "NIFTY"})
	assert.ErrorIs(t, err, ErrHaltExists)
}

func TestHaltGetAll(t *testing.T) {
	repo, mock := newMockHaltRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, underlying, reason, created_at\s+FROM halt_overrides`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "underlying", "reason", "created_at"}).
			AddRow(1, "NIFTY", "manual", now).
			AddRow(2, "BANKNIFTY", "results day", now))

	entries, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "BANKNIFTY", entries[1].Underlying)
}

func TestHaltExists(t *testing.T) {
	repo, mock := newMockHaltRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM halt_overrides WHERE underlying`).
		WithArgs("NIFTY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.Exists("NIFTY")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHaltDeleteNotFound(t *testing.T) {
	repo, mock := newMockHaltRepo(t)

	mock.ExpectExec(`DELETE FROM halt_overrides WHERE underlying`).
		WithArgs("FINNIFTY").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete("FINNIFTY"), ErrHaltNotFound)
}
