package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type courseRunRepository interface {
	List(ctx context.Context, filter models.CourseRunFilter) ([]models.CourseRun, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseRun, error)
	Create(ctx context.Context, run *models.CourseRun) error
	UpdateStatus(ctx context.Context, id string, status models.CourseRunStatus) error
	SaveSnapshot(ctx context.Context, snapshot *models.RunSnapshot) error
	FindSnapshot(ctx context.Context, runID string) (*models.RunSnapshot, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateCourseRunRequest describes course run creation payload.
type CreateCourseRunRequest struct {
	CourseID           string     `json:"course_id" validate:"required"`
	CampusID           *string    `json:"campus_id"`
	StartDate          time.Time  `json:"start_date" validate:"required"`
	EndDate            time.Time  `json:"end_date" validate:"required,gtfield=StartDate"`
	EnrollmentDeadline *time.Time `json:"enrollment_deadline"`
	MinStudents        int        `json:"min_students" validate:"gt=0"`
	MaxStudents        int        `json:"max_students" validate:"gtfield=MinStudents"`
	Price              float64    `json:"price" validate:"gte=0"`
}

// CourseRunService owns the run scheduling state machine and completion
// snapshots.
type CourseRunService struct {
	runs      courseRunRepository
	courses   courseReader
	events    eventSink
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseRunService constructs the course run service.
func NewCourseRunService(runs courseRunRepository, courses courseReader, events eventSink, validate *validator.Validate, logger *zap.Logger) *CourseRunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseRunService{runs: runs, courses: courses, events: events, validator: validate, logger: logger}
}

// List returns course runs with pagination metadata.
func (s *CourseRunService) List(ctx context.Context, filter models.CourseRunFilter) ([]models.CourseRun, *models.Pagination, error) {
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course runs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return runs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course run by id.
func (s *CourseRunService) Get(ctx context.Context, id string) (*models.CourseRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course run")
	}
	return run, nil
}

// Create schedules a run against a published course. Capacity bounds and
// date ordering are enforced at the boundary; the enrollment deadline must
// precede the start date.
func (s *CourseRunService) Create(ctx context.Context, req CreateCourseRunRequest) (*models.CourseRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course run payload")
	}
	if req.EnrollmentDeadline != nil && !req.EnrollmentDeadline.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment deadline must precede start date")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status == models.PublicationArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot schedule runs for an archived course")
	}

	run := &models.CourseRun{
		CourseID:           req.CourseID,
		CampusID:           req.CampusID,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		EnrollmentDeadline: req.EnrollmentDeadline,
		MinStudents:        req.MinStudents,
		MaxStudents:        req.MaxStudents,
		Price:              req.Price,
		Status:             models.RunDraft,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course run")
	}
	return run, nil
}

// Transition moves a run through its scheduling lifecycle. Completing a run
// captures the immutable metrics snapshot before the status is final.
func (s *CourseRunService) Transition(ctx context.Context, id string, target models.CourseRunStatus, actor string) (*models.CourseRun, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course run status")
	}
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status == target {
		return nil, appErrors.Clone(appErrors.ErrInvalidRunTransition, "course run already in state "+string(target))
	}
	if !models.IsValidRunTransition(run.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRunTransition,
			"cannot transition course run from "+string(run.Status)+" to "+string(target))
	}

	from := run.Status
	if target == models.RunCompleted {
		occupancy := 0.0
		if run.MaxStudents > 0 {
			occupancy = float64(run.CurrentEnrollments) / float64(run.MaxStudents) * 100
		}
		snapshot := &models.RunSnapshot{
			RunID:            run.ID,
			FinalEnrollments: run.CurrentEnrollments,
			OccupancyPercent: occupancy,
			Price:            run.Price,
			CapturedAt:       time.Now().UTC(),
		}
		if err := s.runs.SaveSnapshot(ctx, snapshot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to capture run snapshot")
		}
	}

	if err := s.runs.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course run status")
	}
	run.Status = target

	if s.events != nil {
		eventType := models.EventRunStatusChanged
		if target == models.RunCompleted {
			eventType = models.EventRunCompleted
		}
		s.events.Emit(ctx, models.NewDomainEvent(eventType, id, actor, map[string]string{
			"from": string(from),
			"to":   string(target),
		}))
	}
	return run, nil
}

// NextStates returns the run states reachable from current.
func (s *CourseRunService) NextStates(current models.CourseRunStatus) []models.CourseRunStatus {
	return models.NextRunStatuses(current)
}

// Snapshot returns the completion snapshot for a run.
func (s *CourseRunService) Snapshot(ctx context.Context, runID string) (*models.RunSnapshot, error) {
	snapshot, err := s.runs.FindSnapshot(ctx, runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run snapshot")
	}
	return snapshot, nil
}
