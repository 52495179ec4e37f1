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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ExistsForRun(ctx context.Context, studentID, courseRunID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error
	UpdatePayment(ctx context.Context, id string, amountPaid, totalAmount, financialAid float64) error
	OldestWaitlisted(ctx context.Context, courseRunID string) (*models.Enrollment, error)
	WaitlistPosition(ctx context.Context, courseRunID, enrollmentID string) (int, error)
	CountByRunAndStatus(ctx context.Context, courseRunID string, status models.EnrollmentStatus) (int, error)
}

// seatAccountant is the capacity side of the course run repository. The
// reserve call is the single atomic admission-control primitive: the engine
// never reads the counter and writes it back from its own side.
type seatAccountant interface {
	FindByID(ctx context.Context, id string) (*models.CourseRun, error)
	ReserveSeat(ctx context.Context, id string) (bool, error)
	ReleaseSeat(ctx context.Context, id string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// GraduationCheck gates the transition into completed. The caller supplies
// the criteria so the engine stays decoupled from attendance details.
type GraduationCheck func(ctx context.Context, enrollment *models.Enrollment) (bool, error)

// PaymentRequest updates the financial fields of an enrollment.
type PaymentRequest struct {
	AmountPaid   float64 `json:"amount_paid" validate:"gte=0"`
	TotalAmount  float64 `json:"total_amount" validate:"gte=0"`
	FinancialAid float64 `json:"financial_aid" validate:"gte=0"`
}

// EnrollmentService owns admission control and the enrollment lifecycle.
type EnrollmentService struct {
	repo            enrollmentRepository
	runs            seatAccountant
	students        studentReader
	events          eventSink
	waitlistEnabled bool
	autoPromote     bool
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, runs seatAccountant, students studentReader, events eventSink,
	waitlistEnabled, autoPromote bool, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:            repo,
		runs:            runs,
		students:        students,
		events:          events,
		waitlistEnabled: waitlistEnabled,
		autoPromote:     autoPromote,
		validator:       validate,
		logger:          logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll applies admission control for a new enrollment request. With seats
// remaining the enrollment is created pending; a full run waitlists
// immediately. The capacity counter is untouched here: it moves only when
// an enrollment is confirmed.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	run, err := s.runs.FindByID(ctx, req.CourseRunID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course run")
	}
	if !run.AcceptingEnrollments(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course run is not accepting enrollments")
	}

	exists, err := s.repo.ExistsForRun(ctx, req.StudentID, req.CourseRunID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course run")
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		StudentID:   req.StudentID,
		CourseRunID: req.CourseRunID,
		Source:      req.Source,
		TotalAmount: req.TotalAmount,
		EnrolledAt:  &now,
	}

	eventType := models.EventEnrollmentCreated
	if run.AvailableSeats() > 0 {
		enrollment.Status = models.EnrollmentPending
	} else {
		if !s.waitlistEnabled {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course run is full")
		}
		enrollment.Status = models.EnrollmentWaitlist
		eventType = models.EventEnrollmentWaitlist
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(eventType, enrollment.ID, "", map[string]string{
			"student_id":    enrollment.StudentID,
			"course_run_id": enrollment.CourseRunID,
			"status":        string(enrollment.Status),
		}))
	}
	return enrollment, nil
}

// Confirm moves an enrollment into confirmed, reserving its seat through
// the atomic capacity primitive. Confirming an already-confirmed enrollment
// is a no-op so redundant calls never double count. ConfirmedAt is stamped
// once: the first confirmation wins.
func (s *EnrollmentService) Confirm(ctx context.Context, id, actor string) (*models.Enrollment, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentConfirmed {
		return enrollment, nil
	}
	if !models.IsValidEnrollmentTransition(enrollment.Status, models.EnrollmentConfirmed) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEnrollmentTransition,
			"cannot confirm enrollment from state "+string(enrollment.Status))
	}

	reserved, err := s.runs.ReserveSeat(ctx, enrollment.CourseRunID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
	}
	if !reserved {
		if s.events != nil {
			s.events.Emit(ctx, models.NewDomainEvent(models.EventSeatRejected, id, actor, map[string]string{
				"course_run_id": enrollment.CourseRunID,
			}))
		}
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentConfirmed, now); err != nil {
		// The seat was taken but the status write failed; give it back so
		// the counter cannot drift above the confirmed population.
		if releaseErr := s.runs.ReleaseSeat(ctx, enrollment.CourseRunID); releaseErr != nil {
			s.logger.Error("failed to release seat after confirm failure",
				zap.String("enrollment_id", id), zap.Error(releaseErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm enrollment")
	}

	enrollment.Status = models.EnrollmentConfirmed
	if enrollment.ConfirmedAt == nil {
		enrollment.ConfirmedAt = &now
	}

	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(models.EventEnrollmentConfirmed, id, actor, map[string]string{
			"course_run_id": enrollment.CourseRunID,
		}))
	}
	return enrollment, nil
}

// Cancel terminates an enrollment. Cancelling a confirmed enrollment frees
// its seat and may promote the oldest waitlisted enrollment.
func (s *EnrollmentService) Cancel(ctx context.Context, id, actor string) (*models.Enrollment, error) {
	return s.release(ctx, id, actor, models.EnrollmentCancelled)
}

// Withdraw marks a confirmed enrollment as withdrawn by the student and
// frees its seat.
func (s *EnrollmentService) Withdraw(ctx context.Context, id, actor string) (*models.Enrollment, error) {
	return s.release(ctx, id, actor, models.EnrollmentWithdrawn)
}

func (s *EnrollmentService) release(ctx context.Context, id, actor string, target models.EnrollmentStatus) (*models.Enrollment, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.IsValidEnrollmentTransition(enrollment.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEnrollmentTransition,
			"cannot transition enrollment from "+string(enrollment.Status)+" to "+string(target))
	}

	wasConfirmed := enrollment.Status == models.EnrollmentConfirmed
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, target, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = target
	if enrollment.CancelledAt == nil {
		enrollment.CancelledAt = &now
	}

	if wasConfirmed {
		if err := s.runs.ReleaseSeat(ctx, enrollment.CourseRunID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
		}
		if s.events != nil {
			s.events.Emit(ctx, models.NewDomainEvent(models.EventEnrollmentReleased, id, actor, map[string]string{
				"course_run_id": enrollment.CourseRunID,
			}))
		}
		s.promoteWaitlist(ctx, enrollment.CourseRunID, actor)
	}
	return enrollment, nil
}

// promoteWaitlist surfaces the oldest waitlisted enrollment once a seat
// frees up. With auto-promote enabled it is confirmed outright; otherwise a
// promotable event lets staff decide.
func (s *EnrollmentService) promoteWaitlist(ctx context.Context, courseRunID, actor string) {
	oldest, err := s.repo.OldestWaitlisted(ctx, courseRunID)
	if err != nil {
		s.logger.Warn("failed to inspect waitlist", zap.String("course_run_id", courseRunID), zap.Error(err))
		return
	}
	if oldest == nil {
		return
	}

	if s.autoPromote {
		if _, err := s.Confirm(ctx, oldest.ID, actor); err != nil {
			s.logger.Warn("failed to auto-promote waitlisted enrollment",
				zap.String("enrollment_id", oldest.ID), zap.Error(err))
		}
		return
	}
	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(models.EventWaitlistPromotable, oldest.ID, actor, map[string]string{
			"course_run_id": courseRunID,
		}))
	}
}

// Complete graduates a confirmed enrollment once the supplied criteria
// pass. CompletedAt is stamped once.
func (s *EnrollmentService) Complete(ctx context.Context, id, actor string, graduation GraduationCheck) (*models.Enrollment, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.IsValidEnrollmentTransition(enrollment.Status, models.EnrollmentCompleted) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEnrollmentTransition,
			"cannot complete enrollment from state "+string(enrollment.Status))
	}
	if graduation != nil {
		ok, err := graduation(ctx, enrollment)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "graduation check failed")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrGraduationBlocked, "")
		}
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentCompleted, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}
	enrollment.Status = models.EnrollmentCompleted
	if enrollment.CompletedAt == nil {
		enrollment.CompletedAt = &now
	}
	return enrollment, nil
}

// NextStatuses returns the enrollment states reachable from current.
func (s *EnrollmentService) NextStatuses(current models.EnrollmentStatus) []models.EnrollmentStatus {
	return models.NextEnrollmentStatuses(current)
}

// RecordPayment updates the financial fields, holding the payment
// invariants: paid and aid each stay within [0, total].
func (s *EnrollmentService) RecordPayment(ctx context.Context, id string, req PaymentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.AmountPaid > req.TotalAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount paid exceeds total")
	}
	if req.FinancialAid > req.TotalAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "financial aid exceeds total")
	}

	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status.Terminal() && enrollment.Status != models.EnrollmentCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is closed")
	}

	if err := s.repo.UpdatePayment(ctx, id, req.AmountPaid, req.TotalAmount, req.FinancialAid); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	enrollment.AmountPaid = req.AmountPaid
	enrollment.TotalAmount = req.TotalAmount
	enrollment.FinancialAid = req.FinancialAid
	return enrollment, nil
}

// WaitlistPosition returns the 1-based queue position of a waitlisted
// enrollment alongside the run's total waitlist length.
func (s *EnrollmentService) WaitlistPosition(ctx context.Context, id string) (int, int, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if enrollment.Status != models.EnrollmentWaitlist {
		return 0, 0, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not waitlisted")
	}
	position, err := s.repo.WaitlistPosition(ctx, enrollment.CourseRunID, id)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute waitlist position")
	}
	total, err := s.repo.CountByRunAndStatus(ctx, enrollment.CourseRunID, models.EnrollmentWaitlist)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count waitlisted enrollments")
	}
	return position, total, nil
}
