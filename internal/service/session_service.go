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

// maxGeneratedSessions bounds recurrence expansion for unbounded-looking
// patterns.
const maxGeneratedSessions = 366

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListForResources(ctx context.Context, roomID, instructorID *string, from, to time.Time) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	BulkCreate(ctx context.Context, sessions []models.Session) ([]models.Session, error)
	Close(ctx context.Context, id string) error
}

// CreateSessionRequest describes a single session payload.
type CreateSessionRequest struct {
	CourseRunID  string    `json:"course_run_id" validate:"required"`
	RoomID       *string   `json:"room_id"`
	InstructorID *string   `json:"instructor_id"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// RecurringSessionsRequest expands a recurrence pattern into sessions.
type RecurringSessionsRequest struct {
	CourseRunID  string                   `json:"course_run_id" validate:"required"`
	RoomID       *string                  `json:"room_id"`
	InstructorID *string                  `json:"instructor_id"`
	FirstStart   time.Time                `json:"first_start" validate:"required"`
	FirstEnd     time.Time                `json:"first_end" validate:"required,gtfield=FirstStart"`
	Pattern      models.RecurrencePattern `json:"pattern" validate:"required"`
}

// SessionService owns session scheduling: time validation, conflict
// detection and recurrence expansion.
type SessionService struct {
	repo      sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SessionService{repo: repo, validator: validate, logger: logger}
	svc.validator.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
		return models.RecurrenceFrequency(fl.Field().String()).Valid()
	})
	return svc
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// ValidateTimes enforces end after start.
func (s *SessionService) ValidateTimes(session *models.Session) error {
	if !session.EndTime.After(session.StartTime) {
		return appErrors.Clone(appErrors.ErrValidation, "session end must be after start")
	}
	return nil
}

// CheckConflicts reports which of the existing sessions collide with the
// candidate on a shared room or instructor. Two sessions conflict iff their
// half-open intervals overlap: touching boundaries are not a conflict.
func (s *SessionService) CheckConflicts(candidate *models.Session, existing []models.Session) []models.SessionConflict {
	var conflicts []models.SessionConflict
	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID {
			continue
		}
		if !candidate.Overlaps(other) {
			continue
		}
		if candidate.RoomID != nil && other.RoomID != nil && *candidate.RoomID == *other.RoomID {
			conflicts = append(conflicts, models.SessionConflict{SessionID: other.ID, Resource: "room"})
			continue
		}
		if candidate.InstructorID != nil && other.InstructorID != nil && *candidate.InstructorID == *other.InstructorID {
			conflicts = append(conflicts, models.SessionConflict{SessionID: other.ID, Resource: "instructor"})
		}
	}
	return conflicts
}

// Create schedules a single session after validating times and detecting
// resource conflicts against persisted sessions.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	session := &models.Session{
		CourseRunID:  req.CourseRunID,
		RoomID:       req.RoomID,
		InstructorID: req.InstructorID,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	}
	if err := s.ValidateTimes(session); err != nil {
		return nil, err
	}

	if session.RoomID != nil || session.InstructorID != nil {
		existing, err := s.repo.ListForResources(ctx, session.RoomID, session.InstructorID, session.StartTime, session.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions for conflict check")
		}
		if conflicts := s.CheckConflicts(session, existing); len(conflicts) > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session conflicts with "+conflicts[0].SessionID+" on "+conflicts[0].Resource)
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// GenerateRecurring expands a recurrence pattern into concrete sessions.
// Generation is a pure function of the pattern: it can be re-run with the
// same inputs and produce the same series. Each instance is individually
// validated.
func (s *SessionService) GenerateRecurring(req RecurringSessionsRequest) ([]models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence payload")
	}
	if !req.Pattern.Frequency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown recurrence frequency")
	}
	interval := req.Pattern.Interval
	if interval < 1 {
		interval = 1
	}
	if req.Pattern.Until == nil && req.Pattern.Count <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence needs an until date or a count")
	}

	var step time.Duration
	switch req.Pattern.Frequency {
	case models.FrequencyDaily:
		step = 24 * time.Hour * time.Duration(interval)
	case models.FrequencyWeekly:
		step = 7 * 24 * time.Hour * time.Duration(interval)
	}

	var sessions []models.Session
	start := req.FirstStart
	end := req.FirstEnd
	for i := 0; i < maxGeneratedSessions; i++ {
		if req.Pattern.Count > 0 && len(sessions) >= req.Pattern.Count {
			break
		}
		if req.Pattern.Until != nil && start.After(*req.Pattern.Until) {
			break
		}

		session := models.Session{
			CourseRunID:  req.CourseRunID,
			RoomID:       req.RoomID,
			InstructorID: req.InstructorID,
			StartTime:    start,
			EndTime:      end,
		}
		if err := s.ValidateTimes(&session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)

		start = start.Add(step)
		end = end.Add(step)
	}
	return sessions, nil
}

// CreateRecurring generates and persists a recurring series in one batch.
func (s *SessionService) CreateRecurring(ctx context.Context, req RecurringSessionsRequest) ([]models.Session, error) {
	sessions, err := s.GenerateRecurring(req)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.BulkCreate(ctx, sessions)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist recurring sessions")
	}
	return created, nil
}

// CloseSession locks a session against further attendance edits.
func (s *SessionService) CloseSession(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Close(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	return nil
}

// CalculateDuration returns the elapsed time between two instants, used
// for session length and punctuality decisions.
func CalculateDuration(start, end time.Time) time.Duration {
	return end.Sub(start)
}
