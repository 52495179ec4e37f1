package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

// EligibilityInput is the resolved context an eligibility check predicates
// over. AlreadyEnrolled is pre-resolved so checks stay pure.
type EligibilityInput struct {
	Lead            *models.Lead
	Run             *models.CourseRun
	AlreadyEnrolled bool
	Now             time.Time
}

// EligibilityCheck is a named business-rule predicate gating conversion.
type EligibilityCheck struct {
	Name  string
	Check func(in EligibilityInput) bool
}

// DefaultEligibilityChecks gate every conversion. Checks accumulate: all of
// them run even after one fails so the caller gets the full diagnostic list
// in one round trip.
var DefaultEligibilityChecks = []EligibilityCheck{
	{
		Name: "course_run_accepting_enrollments",
		Check: func(in EligibilityInput) bool {
			return in.Run != nil && in.Run.AcceptingEnrollments(in.Now)
		},
	},
	{
		Name: "lead_not_already_enrolled",
		Check: func(in EligibilityInput) bool {
			return !in.AlreadyEnrolled
		},
	},
}

// ConversionRequest asks for a qualified lead to become an enrollment.
type ConversionRequest struct {
	LeadID      string `json:"lead_id" validate:"required"`
	CourseRunID string `json:"course_run_id" validate:"required"`
	Actor       string `json:"actor" validate:"required"`
}

// ConversionResult is the full outcome of a successful conversion.
type ConversionResult struct {
	Lead       *models.Lead             `json:"lead"`
	Student    *models.Student          `json:"student"`
	Enrollment *models.Enrollment       `json:"enrollment"`
	Request    models.EnrollmentRequest `json:"request"`
}

type convertibleLeadRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error
}

type studentResolver interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

type runReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseRun, error)
}

type enrollmentExistsChecker interface {
	ExistsForRun(ctx context.Context, studentID, courseRunID string) (bool, error)
}

type enrollmentCreator interface {
	Enroll(ctx context.Context, req models.EnrollmentRequest) (*models.Enrollment, error)
}

// LeadConversionService turns qualified leads into enrollment requests.
// Idempotence rides on the lead's own status: a second convert call on an
// already-converted lead fails instead of producing a duplicate enrollment.
type LeadConversionService struct {
	leads       convertibleLeadRepository
	students    studentResolver
	runs        runReader
	enrollments enrollmentExistsChecker
	enroller    enrollmentCreator
	checks      []EligibilityCheck
	events      eventSink
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLeadConversionService constructs the conversion service. Nil checks
// fall back to the defaults.
func NewLeadConversionService(leads convertibleLeadRepository, students studentResolver, runs runReader,
	enrollments enrollmentExistsChecker, enroller enrollmentCreator, checks []EligibilityCheck,
	events eventSink, validate *validator.Validate, logger *zap.Logger) *LeadConversionService {
	if checks == nil {
		checks = DefaultEligibilityChecks
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadConversionService{
		leads:       leads,
		students:    students,
		runs:        runs,
		enrollments: enrollments,
		enroller:    enroller,
		checks:      checks,
		events:      events,
		validator:   validate,
		logger:      logger,
	}
}

// Evaluate runs every eligibility check and returns the names of the
// failing ones. The list is empty when the conversion may proceed.
func (s *LeadConversionService) Evaluate(in EligibilityInput) []string {
	var failures []string
	for _, check := range s.checks {
		if check.Check == nil || check.Check(in) {
			continue
		}
		failures = append(failures, check.Name)
	}
	return failures
}

// Convert validates eligibility and materializes the enrollment request,
// moving the lead to converted.
func (s *LeadConversionService) Convert(ctx context.Context, req ConversionRequest) (*ConversionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conversion payload")
	}

	lead, err := s.leads.FindByID(ctx, req.LeadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	if lead.Status != models.LeadQualified {
		return nil, appErrors.Clone(appErrors.ErrLeadNotEligible,
			"lead "+lead.ID+" is "+string(lead.Status)+", conversion requires qualified")
	}

	run, err := s.runs.FindByID(ctx, req.CourseRunID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course run")
	}

	student, err := s.resolveStudent(ctx, lead)
	if err != nil {
		return nil, err
	}

	alreadyEnrolled, err := s.enrollments.ExistsForRun(ctx, student.ID, run.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	failures := s.Evaluate(EligibilityInput{Lead: lead, Run: run, AlreadyEnrolled: alreadyEnrolled, Now: time.Now().UTC()})
	if len(failures) > 0 {
		return nil, appErrors.Clone(appErrors.ErrEligibilityFailed, "eligibility checks failed: "+strings.Join(failures, ", "))
	}

	request := models.EnrollmentRequest{
		StudentID:   student.ID,
		CourseRunID: run.ID,
		Source:      "lead-conversion",
		TotalAmount: run.Price,
	}
	enrollment, err := s.enroller.Enroll(ctx, request)
	if err != nil {
		return nil, err
	}

	if err := s.leads.UpdateStatus(ctx, lead.ID, models.LeadConverted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark lead converted")
	}
	lead.Status = models.LeadConverted

	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(models.EventLeadConverted, lead.ID, req.Actor, map[string]string{
			"student_id":    student.ID,
			"course_run_id": run.ID,
			"enrollment_id": enrollment.ID,
		}))
	}

	return &ConversionResult{Lead: lead, Student: student, Enrollment: enrollment, Request: request}, nil
}

// resolveStudent reuses an existing student matched by email or creates one
// from the lead's contact data.
func (s *LeadConversionService) resolveStudent(ctx context.Context, lead *models.Lead) (*models.Student, error) {
	student, err := s.students.FindByEmail(ctx, lead.Email)
	if err == nil {
		return student, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	student = &models.Student{
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Email:     lead.Email,
		Phone:     lead.Phone,
		Active:    true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}
