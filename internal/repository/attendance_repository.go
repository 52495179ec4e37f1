package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hq/ops-api/internal/models"
)

// AttendanceRepository manages persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "id, enrollment_id, session_id, status, notes, recorded_by, created_at, updated_at"

// Upsert inserts or replaces the attendance record for an
// enrollment/session pair.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO attendance (id, enrollment_id, session_id, status, notes, recorded_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :session_id, :status, :notes, :recorded_by, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, session_id)
        DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// ListByEnrollment returns attendance rows for an enrollment.
func (r *AttendanceRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance WHERE enrollment_id = $1 ORDER BY created_at ASC", attendanceColumns)
	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list attendance by enrollment: %w", err)
	}
	return records, nil
}

// ListBySession returns attendance rows for a session.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance WHERE session_id = $1 ORDER BY created_at ASC", attendanceColumns)
	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance by session: %w", err)
	}
	return records, nil
}
