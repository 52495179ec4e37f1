package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type courseStatusWriter interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateStatus(ctx context.Context, id string, status models.PublicationStatus) error
}

type publicationAuditor interface {
	RecordPublication(ctx context.Context, event models.PublicationEvent) error
}

// PublicationService enforces the course publication state machine.
type PublicationService struct {
	courses courseStatusWriter
	auditor publicationAuditor
	events  eventSink
	logger  *zap.Logger
}

// NewPublicationService constructs the publication service.
func NewPublicationService(courses courseStatusWriter, auditor publicationAuditor, events eventSink, logger *zap.Logger) *PublicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicationService{courses: courses, auditor: auditor, events: events, logger: logger}
}

// CanTransition validates a requested publication change. Idempotent no-op
// transitions are rejected alongside table violations.
func (s *PublicationService) CanTransition(current, target models.PublicationStatus) error {
	if current == target {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "course already in state "+string(target))
	}
	if !models.IsValidPublicationTransition(current, target) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			"cannot transition publication status from "+string(current)+" to "+string(target))
	}
	return nil
}

// NextStates returns the publication states reachable from current.
func (s *PublicationService) NextStates(current models.PublicationStatus) []models.PublicationStatus {
	return models.NextPublicationStatuses(current)
}

// Transition moves a course to the target publication status and emits the
// transition facts. The write happens only after validation; the audit
// record and domain event are produced for collaborators, never executed as
// side effects here.
func (s *PublicationService) Transition(ctx context.Context, courseID string, target models.PublicationStatus, actor string) (*models.Course, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown publication status")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.CanTransition(course.Status, target); err != nil {
		return nil, err
	}

	from := course.Status
	if err := s.courses.UpdateStatus(ctx, courseID, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	course.Status = target

	event := models.PublicationEvent{
		CourseID:   courseID,
		From:       from,
		To:         target,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
	if s.auditor != nil {
		if err := s.auditor.RecordPublication(ctx, event); err != nil {
			s.logger.Warn("failed to record publication event", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	if s.events != nil {
		eventType := models.EventCoursePublished
		if target == models.PublicationArchived {
			eventType = models.EventCourseArchived
		}
		s.events.Emit(ctx, models.NewDomainEvent(eventType, courseID, actor, map[string]string{
			"from": string(from),
			"to":   string(target),
		}))
	}

	return course, nil
}
