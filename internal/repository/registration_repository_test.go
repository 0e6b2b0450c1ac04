package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aite-labs/aite-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRegistrationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO registrations").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO registration_subjects").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reg := &models.Registration{
		StudentName: "Ali",
		Status:      models.RegistrationStatusPending,
		Payment:     models.PaymentStatusUnpaid,
		Active:      true,
	}
	subjects := []models.Subject{{Name: "Math", TotalSessions: 10}}
	err := repo.Create(context.Background(), reg, subjects)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, reg.ID, subjects[0].RegistrationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_name", "level", "track", "status", "payment_status", "active", "scan_code", "created_at", "updated_at"}).
		AddRow("reg-1", "Ali", nil, nil, "pending", "unpaid", true, nil, now, now)
	mock.ExpectQuery("SELECT r.id, r.student_name").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations r WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	regs, total, err := repo.List(context.Background(), models.RegistrationFilter{})
	require.NoError(t, err)
	assert.Len(t, regs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryAdvanceSubjectSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("UPDATE registration_subjects").
		WithArgs("reg-1", "Math").
		WillReturnRows(sqlmock.NewRows([]string{"completed_sessions"}).AddRow(3))

	recorded, err := repo.AdvanceSubjectSession(context.Background(), "reg-1", "Math")
	require.NoError(t, err)
	assert.Equal(t, 3, recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryAdvanceSubjectSessionFullQuota(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	// Guarded update touches no rows once the quota is exhausted.
	mock.ExpectQuery("UPDATE registration_subjects").
		WithArgs("reg-1", "Math").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AdvanceSubjectSession(context.Background(), "reg-1", "Math")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUndoSubjectSessionAtZero(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("UPDATE registration_subjects").
		WithArgs("reg-1", "Math").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.UndoSubjectSession(context.Background(), "reg-1", "Math")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("DELETE FROM registrations").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
