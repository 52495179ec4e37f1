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

// CourseRunRepository manages persistence for course runs, including the
// atomic seat accounting used by admission control.
type CourseRunRepository struct {
	db *sqlx.DB
}

// NewCourseRunRepository constructs a CourseRunRepository.
func NewCourseRunRepository(db *sqlx.DB) *CourseRunRepository {
	return &CourseRunRepository{db: db}
}

const runColumns = "id, course_id, campus_id, start_date, end_date, enrollment_deadline, min_students, max_students, current_enrollments, price, status, created_at, updated_at"

// List returns course runs matching the provided filters.
func (r *CourseRunRepository) List(ctx context.Context, filter models.CourseRunFilter) ([]models.CourseRun, int, error) {
	base := "FROM course_runs cr"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cr.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("cr.campus_id = $%d", len(args)+1))
		args = append(args, filter.CampusID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cr.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.StartFrom != nil {
		conditions = append(conditions, fmt.Sprintf("cr.start_date >= $%d", len(args)+1))
		args = append(args, *filter.StartFrom)
	}
	if filter.StartTo != nil {
		conditions = append(conditions, fmt.Sprintf("cr.start_date <= $%d", len(args)+1))
		args = append(args, *filter.StartTo)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"start_date": "cr.start_date",
		"created_at": "cr.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "cr.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cr.id, cr.course_id, cr.campus_id, cr.start_date, cr.end_date, cr.enrollment_deadline,
        cr.min_students, cr.max_students, cr.current_enrollments, cr.price, cr.status, cr.created_at, cr.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var runs []models.CourseRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course runs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count course runs: %w", err)
	}
	return runs, total, nil
}

// FindByID returns a course run by its ID.
func (r *CourseRunRepository) FindByID(ctx context.Context, id string) (*models.CourseRun, error) {
	query := fmt.Sprintf("SELECT %s FROM course_runs WHERE id = $1", runColumns)
	var run models.CourseRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// Create inserts a course run.
func (r *CourseRunRepository) Create(ctx context.Context, run *models.CourseRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	const query = `INSERT INTO course_runs (id, course_id, campus_id, start_date, end_date, enrollment_deadline,
        min_students, max_students, current_enrollments, price, status, created_at, updated_at)
        VALUES (:id, :course_id, :campus_id, :start_date, :end_date, :enrollment_deadline,
        :min_students, :max_students, :current_enrollments, :price, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create course run: %w", err)
	}
	return nil
}

// UpdateStatus sets the run scheduling status.
func (r *CourseRunRepository) UpdateStatus(ctx context.Context, id string, status models.CourseRunStatus) error {
	const query = "UPDATE course_runs SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update course run status: %w", err)
	}
	return nil
}

// ReserveSeat atomically increments the enrollment counter while capacity
// remains. It returns true when the seat was taken; the WHERE guard makes
// overbooking impossible under concurrent confirmations.
func (r *CourseRunRepository) ReserveSeat(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE course_runs SET current_enrollments = current_enrollments + 1, updated_at = $1
        WHERE id = $2 AND current_enrollments < max_students`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve seat result: %w", err)
	}
	return rows == 1, nil
}

// ReleaseSeat atomically decrements the enrollment counter, clamped at zero.
func (r *CourseRunRepository) ReleaseSeat(ctx context.Context, id string) error {
	const query = `UPDATE course_runs SET current_enrollments = current_enrollments - 1, updated_at = $1
        WHERE id = $2 AND current_enrollments > 0`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// SaveSnapshot persists the immutable completion snapshot for a run. The
// conflict guard keeps the first snapshot authoritative.
func (r *CourseRunRepository) SaveSnapshot(ctx context.Context, snapshot *models.RunSnapshot) error {
	const query = `INSERT INTO course_run_snapshots (run_id, final_enrollments, occupancy_percent, price, captured_at)
        VALUES (:run_id, :final_enrollments, :occupancy_percent, :price, :captured_at)
        ON CONFLICT (run_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("save run snapshot: %w", err)
	}
	return nil
}

// FindSnapshot returns the completion snapshot for a run.
func (r *CourseRunRepository) FindSnapshot(ctx context.Context, runID string) (*models.RunSnapshot, error) {
	const query = "SELECT run_id, final_enrollments, occupancy_percent, price, captured_at FROM course_run_snapshots WHERE run_id = $1"
	var snapshot models.RunSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, runID); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
