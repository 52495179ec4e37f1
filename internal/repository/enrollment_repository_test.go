package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campus-hq/ops-api/internal/models"
)

func TestEnrollmentRepositoryUpdateStatusStampsTimestampOnce(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	at := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("confirmed_at = COALESCE(confirmed_at, $2)")).
		WithArgs(string(models.EnrollmentConfirmed), at, sqlmock.AnyArg(), "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentConfirmed, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusCancelSharesColumn(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	at := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	// Withdrawn and cancelled both stamp cancelled_at.
	mock.ExpectExec(regexp.QuoteMeta("cancelled_at = COALESCE(cancelled_at, $2)")).
		WithArgs(string(models.EnrollmentWithdrawn), at, sqlmock.AnyArg(), "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentWithdrawn, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsForRun(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("student-1", "run-1",
			string(models.EnrollmentPending), string(models.EnrollmentConfirmed), string(models.EnrollmentWaitlist)).
		WillReturnRows(rows)

	exists, err := repo.ExistsForRun(context.Background(), "student-1", "run-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrolled := time.Now().UTC()
	enrollment := &models.Enrollment{
		StudentID:   "student-1",
		CourseRunID: "run-1",
		Status:      models.EnrollmentPending,
		Source:      "manual",
		TotalAmount: 900,
		EnrolledAt:  &enrolled,
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWaitlistPosition(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"position"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments")).
		WithArgs("run-1", string(models.EnrollmentWaitlist), "enr-1").
		WillReturnRows(rows)

	position, err := repo.WaitlistPosition(context.Background(), "run-1", "enr-1")
	require.NoError(t, err)
	require.Equal(t, 3, position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByRunAndStatus(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"count"}).AddRow(7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_run_id = $1 AND status = $2")).
		WithArgs("run-1", string(models.EnrollmentWaitlist)).
		WillReturnRows(rows)

	count, err := repo.CountByRunAndStatus(context.Background(), "run-1", models.EnrollmentWaitlist)
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
