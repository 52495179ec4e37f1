package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-hq/ops-api/internal/models"
)

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseRunRepositoryReserveSeat(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewCourseRunRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("current_enrollments = current_enrollments + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	taken, err := repo.ReserveSeat(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRunRepositoryReserveSeatAtCapacity(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewCourseRunRepository(db)
	// The capacity guard in the WHERE clause matches no rows on a full run.
	mock.ExpectExec(regexp.QuoteMeta("current_enrollments = current_enrollments + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	taken, err := repo.ReserveSeat(context.Background(), "run-1")
	require.NoError(t, err)
	require.False(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRunRepositoryReleaseSeat(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewCourseRunRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("current_enrollments = current_enrollments - 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseSeat(context.Background(), "run-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRunRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewCourseRunRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_runs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	campus := "campus-1"
	deadline := start.AddDate(0, 0, -7)
	run := &models.CourseRun{
		CourseID:           "course-1",
		CampusID:           &campus,
		StartDate:          start,
		EndDate:            start.AddDate(0, 3, 0),
		EnrollmentDeadline: &deadline,
		MinStudents:        5,
		MaxStudents:        20,
		Price:              900,
		Status:             models.RunDraft,
	}
	require.NoError(t, repo.Create(context.Background(), run))
	require.NotEmpty(t, run.ID)

	rows := sqlmock.NewRows([]string{"id", "course_id", "campus_id", "start_date", "end_date", "enrollment_deadline", "min_students", "max_students", "current_enrollments", "price", "status", "created_at", "updated_at"}).
		AddRow(run.ID, run.CourseID, campus, run.StartDate, run.EndDate, deadline, run.MinStudents, run.MaxStudents, 0, run.Price, run.Status, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, campus_id")).
		WithArgs(run.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, run.CourseID, found.CourseID)
	require.Equal(t, models.RunDraft, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRunRepositorySnapshotRoundTrip(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()

	repo := NewCourseRunRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_run_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	captured := time.Date(2026, 12, 20, 18, 0, 0, 0, time.UTC)
	snapshot := &models.RunSnapshot{
		RunID:            "run-1",
		FinalEnrollments: 15,
		OccupancyPercent: 75,
		Price:            900,
		CapturedAt:       captured,
	}
	require.NoError(t, repo.SaveSnapshot(context.Background(), snapshot))

	rows := sqlmock.NewRows([]string{"run_id", "final_enrollments", "occupancy_percent", "price", "captured_at"}).
		AddRow("run-1", 15, 75.0, 900.0, captured)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT run_id, final_enrollments")).
		WithArgs("run-1").
		WillReturnRows(rows)

	found, err := repo.FindSnapshot(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 15, found.FinalEnrollments)
	require.Equal(t, 75.0, found.OccupancyPercent)
	require.NoError(t, mock.ExpectationsWereMet())
}
