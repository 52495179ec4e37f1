package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hq/ops-api/internal/models"
)

// SessionRepository manages persistence for scheduled sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, course_run_id, room_id, instructor_id, start_time, end_time, closed, created_at, updated_at"

// List returns sessions matching the provided filters.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM sessions se"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CourseRunID != "" {
		conditions = append(conditions, fmt.Sprintf("se.course_run_id = $%d", len(args)+1))
		args = append(args, filter.CourseRunID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("se.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("se.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("se.end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("se.start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT se.id, se.course_run_id, se.room_id, se.instructor_id, se.start_time, se.end_time, se.closed, se.created_at, se.updated_at
        %s ORDER BY se.start_time ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListForResources returns sessions sharing a room or instructor with the
// candidate inside the given window. Used by conflict detection.
func (r *SessionRepository) ListForResources(ctx context.Context, roomID, instructorID *string, from, to time.Time) ([]models.Session, error) {
	conditions := []string{"se.end_time > $1", "se.start_time < $2"}
	args := []interface{}{from, to}

	var resource []string
	if roomID != nil {
		resource = append(resource, fmt.Sprintf("se.room_id = $%d", len(args)+1))
		args = append(args, *roomID)
	}
	if instructorID != nil {
		resource = append(resource, fmt.Sprintf("se.instructor_id = $%d", len(args)+1))
		args = append(args, *instructorID)
	}
	if len(resource) == 0 {
		return nil, nil
	}
	conditions = append(conditions, "("+strings.Join(resource, " OR ")+")")

	query := fmt.Sprintf("SELECT se.id, se.course_run_id, se.room_id, se.instructor_id, se.start_time, se.end_time, se.closed, se.created_at, se.updated_at FROM sessions se WHERE %s",
		strings.Join(conditions, " AND "))

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions for resources: %w", err)
	}
	return sessions, nil
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, course_run_id, room_id, instructor_id, start_time, end_time, closed, created_at, updated_at)
        VALUES (:id, :course_run_id, :room_id, :instructor_id, :start_time, :end_time, :closed, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// BulkCreate inserts a batch of sessions in one transaction.
func (r *SessionRepository) BulkCreate(ctx context.Context, sessions []models.Session) ([]models.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk session insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const query = `INSERT INTO sessions (id, course_run_id, room_id, instructor_id, start_time, end_time, closed, created_at, updated_at)
        VALUES (:id, :course_run_id, :room_id, :instructor_id, :start_time, :end_time, :closed, :created_at, :updated_at)`

	out := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		session.CreatedAt = now
		session.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
			return nil, fmt.Errorf("bulk insert session: %w", err)
		}
		out = append(out, session)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk session insert: %w", err)
	}
	return out, nil
}

// Close marks a session as closed for attendance edits.
func (r *SessionRepository) Close(ctx context.Context, id string) error {
	const query = "UPDATE sessions SET closed = TRUE, updated_at = $1 WHERE id = $2"
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
