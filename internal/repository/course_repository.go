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

// CourseRepository manages persistence for catalog courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = "id, slug, name, modality, status, cycle_id, campus_ids, created_by, created_at, updated_at"

// List returns courses matching the provided filters.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CycleID != "" {
		conditions = append(conditions, fmt.Sprintf("c.cycle_id = $%d", len(args)+1))
		args = append(args, filter.CycleID)
	}
	if filter.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(c.campus_ids)", len(args)+1))
		args = append(args, filter.CampusID)
	}
	if filter.Modality != "" {
		conditions = append(conditions, fmt.Sprintf("c.modality = $%d", len(args)+1))
		args = append(args, filter.Modality)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR c.slug LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"name":       "c.name",
		"created_at": "c.created_at",
		"status":     "c.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
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

	query := fmt.Sprintf(`SELECT c.id, c.slug, c.name, c.modality, c.status, c.cycle_id, c.campus_ids, c.created_by, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindBySlug returns a course by its slug.
func (r *CourseRepository) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE slug = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, slug); err != nil {
		return nil, err
	}
	return &course, nil
}

// SlugExists reports whether a slug is already taken.
func (r *CourseRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	const query = "SELECT EXISTS(SELECT 1 FROM courses WHERE slug = $1)"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, slug); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, slug, name, modality, status, cycle_id, campus_ids, created_by, created_at, updated_at)
        VALUES (:id, :slug, :name, :modality, :status, :cycle_id, :campus_ids, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists mutable course fields. Publication status is updated only
// through UpdateStatus.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, modality = :modality, cycle_id = :cycle_id,
        campus_ids = :campus_ids, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus sets the publication status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.PublicationStatus) error {
	const query = "UPDATE courses SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}
