package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hq/ops-api/internal/models"
)

// EnrollmentRepository manages persistence for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_run_id, status, source, amount_paid, total_amount, financial_aid,
        enrolled_at, confirmed_at, completed_at, cancelled_at, created_at, updated_at`

// List returns enrollments matching the provided filters.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN course_runs cr ON cr.id = e.course_run_id
LEFT JOIN courses c ON c.id = cr.course_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseRunID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_run_id = $%d", len(args)+1))
		args = append(args, filter.CourseRunID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("e.source = $%d", len(args)+1))
		args = append(args, filter.Source)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"status":       "e.status",
		"student_name": "s.last_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_run_id, e.status, e.source, e.amount_paid, e.total_amount, e.financial_aid,
        e.enrolled_at, e.confirmed_at, e.completed_at, e.cancelled_at, e.created_at, e.updated_at,
        CONCAT(s.first_name, ' ', s.last_name) AS student_name, c.id AS course_id, c.name AS course_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsForRun reports whether the student already holds a non-terminal
// enrollment for the course run.
func (r *EnrollmentRepository) ExistsForRun(ctx context.Context, studentID, courseRunID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments
        WHERE student_id = $1 AND course_run_id = $2 AND status IN ($3, $4, $5))`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, studentID, courseRunID,
		models.EnrollmentPending, models.EnrollmentConfirmed, models.EnrollmentWaitlist)
	if err != nil {
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return exists, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_run_id, status, source, amount_paid, total_amount, financial_aid,
        enrolled_at, confirmed_at, completed_at, cancelled_at, created_at, updated_at)
        VALUES (:id, :student_id, :course_run_id, :status, :source, :amount_paid, :total_amount, :financial_aid,
        :enrolled_at, :confirmed_at, :completed_at, :cancelled_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and stamps the lifecycle timestamp for the
// target state. COALESCE keeps existing timestamps authoritative: the first
// write wins even across administrative overrides.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error {
	var column string
	switch status {
	case models.EnrollmentConfirmed:
		column = "confirmed_at"
	case models.EnrollmentCompleted:
		column = "completed_at"
	case models.EnrollmentCancelled, models.EnrollmentWithdrawn:
		column = "cancelled_at"
	}

	if column == "" {
		const query = "UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3"
		if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf("UPDATE enrollments SET status = $1, %s = COALESCE(%s, $2), updated_at = $3 WHERE id = $4", column, column)
	if _, err := r.db.ExecContext(ctx, query, status, at, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdatePayment persists the financial fields.
func (r *EnrollmentRepository) UpdatePayment(ctx context.Context, id string, amountPaid, totalAmount, financialAid float64) error {
	const query = `UPDATE enrollments SET amount_paid = $1, total_amount = $2, financial_aid = $3, updated_at = $4 WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, amountPaid, totalAmount, financialAid, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update enrollment payment: %w", err)
	}
	return nil
}

// OldestWaitlisted returns the longest-waiting waitlisted enrollment for a
// run, or nil when the waitlist is empty.
func (r *EnrollmentRepository) OldestWaitlisted(ctx context.Context, courseRunID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE course_run_id = $1 AND status = $2
        ORDER BY created_at ASC LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseRunID, models.EnrollmentWaitlist); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find oldest waitlisted: %w", err)
	}
	return &enrollment, nil
}

// WaitlistPosition returns the 1-based position of an enrollment within its
// run's waitlist.
func (r *EnrollmentRepository) WaitlistPosition(ctx context.Context, courseRunID, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments
        WHERE course_run_id = $1 AND status = $2
        AND created_at <= (SELECT created_at FROM enrollments WHERE id = $3)`
	var position int
	if err := r.db.GetContext(ctx, &position, query, courseRunID, models.EnrollmentWaitlist, enrollmentID); err != nil {
		return 0, fmt.Errorf("waitlist position: %w", err)
	}
	return position, nil
}

// CountByRunAndStatus counts enrollments for a run in a given status.
func (r *EnrollmentRepository) CountByRunAndStatus(ctx context.Context, courseRunID string, status models.EnrollmentStatus) (int, error) {
	const query = "SELECT COUNT(*) FROM enrollments WHERE course_run_id = $1 AND status = $2"
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseRunID, status); err != nil {
		return 0, fmt.Errorf("count enrollments by status: %w", err)
	}
	return count, nil
}
