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

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = "id, first_name, last_name, email, phone, active, created_at, updated_at"

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByEmail returns a student by email, case-insensitively.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE LOWER(email) = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, first_name, last_name, email, phone, active, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :email, :phone, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
