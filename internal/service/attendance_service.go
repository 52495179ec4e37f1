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

// attendanceEditWindow is how long after a session ends that regular staff
// may still record or correct attendance. Admins are not bound by it.
const attendanceEditWindow = 48 * time.Hour

// DefaultGraduationAttendanceThreshold is the attendance ratio required to
// complete an enrollment.
const DefaultGraduationAttendanceThreshold = 0.8

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.Attendance) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// MarkAttendanceRequest records attendance for one enrollment in a session.
type MarkAttendanceRequest struct {
	EnrollmentID string                  `json:"enrollment_id" validate:"required"`
	SessionID    string                  `json:"session_id" validate:"required"`
	Status       models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes        *string                 `json:"notes"`
}

// BulkAttendanceEntry is one row of a bulk marking request.
type BulkAttendanceEntry struct {
	EnrollmentID string                  `json:"enrollment_id" validate:"required"`
	Status       models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes        *string                 `json:"notes"`
}

// BulkAttendanceRequest marks several enrollments for one session at once.
type BulkAttendanceRequest struct {
	SessionID string                `json:"session_id" validate:"required"`
	Entries   []BulkAttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService records attendance and computes summaries.
type AttendanceService struct {
	repo        attendanceRepository
	sessions    sessionReader
	enrollments enrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, sessions sessionReader, enrollments enrollmentReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		repo:        repo,
		sessions:    sessions,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// CanModifyAttendance decides whether attendance for the session may still
// be edited. Closed sessions are frozen for everyone but admins, and the
// edit window after session end applies to regular staff only.
func (s *AttendanceService) CanModifyAttendance(session *models.Session, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if session.Closed {
		return false
	}
	return s.now().Before(session.EndTime.Add(attendanceEditWindow))
}

// Mark records or overwrites attendance for one enrollment in a session.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, recordedBy string, isAdmin bool) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.CanModifyAttendance(session, isAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendance for this session can no longer be modified")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.CourseRunID != session.CourseRunID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment does not belong to the session course run")
	}
	if enrollment.Status != models.EnrollmentConfirmed && enrollment.Status != models.EnrollmentCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attendance requires a confirmed enrollment")
	}

	record := &models.Attendance{
		EnrollmentID: req.EnrollmentID,
		SessionID:    req.SessionID,
		Status:       req.Status,
		Notes:        req.Notes,
		RecordedBy:   recordedBy,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return record, nil
}

// MarkBulk records attendance for several enrollments in one session. Rows
// are applied independently; the first failure aborts the remainder.
func (s *AttendanceService) MarkBulk(ctx context.Context, req BulkAttendanceRequest, recordedBy string, isAdmin bool) ([]models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}

	records := make([]models.Attendance, 0, len(req.Entries))
	for _, entry := range req.Entries {
		record, err := s.Mark(ctx, MarkAttendanceRequest{
			EnrollmentID: entry.EnrollmentID,
			SessionID:    req.SessionID,
			Status:       entry.Status,
			Notes:        entry.Notes,
		}, recordedBy, isAdmin)
		if err != nil {
			return records, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// EnrollmentSummary aggregates attendance across all sessions for one
// enrollment. Present and late count as attended.
func (s *AttendanceService) EnrollmentSummary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	records, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	summary := &models.AttendanceSummary{EnrollmentID: enrollmentID}
	counted := 0
	for _, record := range records {
		summary.Total++
		switch record.Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceExcused:
			summary.Excused++
		}
		if record.Status.Counted() {
			counted++
		}
	}
	if summary.Total > 0 {
		summary.AttendancePercent = float64(counted) / float64(summary.Total) * 100
	}
	return summary, nil
}

// SessionSummary aggregates attendance across all enrollments for one
// session.
func (s *AttendanceService) SessionSummary(ctx context.Context, sessionID string) (*models.SessionAttendanceSummary, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	summary := &models.SessionAttendanceSummary{SessionID: sessionID}
	counted := 0
	for _, record := range records {
		summary.Total++
		switch record.Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceExcused:
			summary.Excused++
		}
		if record.Status.Counted() {
			counted++
		}
	}
	if summary.Total > 0 {
		summary.AttendancePercent = float64(counted) / float64(summary.Total) * 100
	}
	return summary, nil
}

// GraduationCheck returns an enrollment completion predicate that requires
// the given attendance ratio. Enrollments with no recorded sessions pass.
func (s *AttendanceService) GraduationCheck(threshold float64) GraduationCheck {
	return func(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
		summary, err := s.EnrollmentSummary(ctx, enrollment.ID)
		if err != nil {
			return false, err
		}
		if summary.Total == 0 {
			return true, nil
		}
		return summary.AttendancePercent >= threshold*100, nil
	}
}

func (s *AttendanceService) loadSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}
