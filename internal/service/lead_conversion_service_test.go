package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type mockConvertibleLeads struct {
	leads  map[string]models.Lead
	status map[string]models.LeadStatus
}

func (m *mockConvertibleLeads) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	if l, ok := m.leads[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockConvertibleLeads) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.LeadStatus)
	}
	m.status[id] = status
	if l, ok := m.leads[id]; ok {
		l.Status = status
		m.leads[id] = l
	}
	return nil
}

type mockStudentResolver struct {
	byEmail map[string]models.Student
	created *models.Student
}

func (m *mockStudentResolver) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	if s, ok := m.byEmail[email]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentResolver) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-new"
	m.created = student
	return nil
}

type mockRunReader struct {
	runs map[string]models.CourseRun
}

func (m *mockRunReader) FindByID(ctx context.Context, id string) (*models.CourseRun, error) {
	if r, ok := m.runs[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

type mockExistsChecker struct {
	exists bool
}

func (m *mockExistsChecker) ExistsForRun(ctx context.Context, studentID, courseRunID string) (bool, error) {
	return m.exists, nil
}

type mockEnroller struct {
	requests []models.EnrollmentRequest
	err      error
}

func (m *mockEnroller) Enroll(ctx context.Context, req models.EnrollmentRequest) (*models.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	return &models.Enrollment{ID: "enrollment-1", StudentID: req.StudentID, CourseRunID: req.CourseRunID, Status: models.EnrollmentPending}, nil
}

func qualifiedLead(id string) models.Lead {
	return models.Lead{
		ID:        id,
		FirstName: "Ana",
		LastName:  "Garcia",
		Email:     "ana@example.com",
		Phone:     "+34600000000",
		Status:    models.LeadQualified,
	}
}

func newConversionFixture(leads *mockConvertibleLeads, students *mockStudentResolver, runs *mockRunReader,
	exists *mockExistsChecker, enroller *mockEnroller) (*LeadConversionService, *recordingSink) {
	sink := &recordingSink{}
	svc := NewLeadConversionService(leads, students, runs, exists, enroller, nil, sink, validator.New(), zap.NewNop())
	return svc, sink
}

func TestConvertQualifiedLead(t *testing.T) {
	leads := &mockConvertibleLeads{leads: map[string]models.Lead{"l1": qualifiedLead("l1")}}
	students := &mockStudentResolver{}
	runs := &mockRunReader{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	enroller := &mockEnroller{}
	svc, sink := newConversionFixture(leads, students, runs, &mockExistsChecker{}, enroller)

	result, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.NoError(t, err)
	assert.Equal(t, models.LeadConverted, result.Lead.Status)
	assert.Equal(t, models.LeadConverted, leads.status["l1"])
	assert.Equal(t, "student-new", result.Student.ID)
	assert.Equal(t, "lead-conversion", result.Request.Source)
	require.Len(t, enroller.requests, 1)
	assert.Contains(t, sink.types(), models.EventLeadConverted)
}

func TestConvertReusesExistingStudentByEmail(t *testing.T) {
	leads := &mockConvertibleLeads{leads: map[string]models.Lead{"l1": qualifiedLead("l1")}}
	students := &mockStudentResolver{byEmail: map[string]models.Student{
		"ana@example.com": {ID: "student-existing", Email: "ana@example.com", Active: true},
	}}
	runs := &mockRunReader{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, _ := newConversionFixture(leads, students, runs, &mockExistsChecker{}, &mockEnroller{})

	result, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.NoError(t, err)
	assert.Equal(t, "student-existing", result.Student.ID)
	assert.Nil(t, students.created)
}

func TestConvertIsIdempotentViaLeadStatus(t *testing.T) {
	leads := &mockConvertibleLeads{leads: map[string]models.Lead{"l1": qualifiedLead("l1")}}
	students := &mockStudentResolver{}
	runs := &mockRunReader{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	enroller := &mockEnroller{}
	svc, _ := newConversionFixture(leads, students, runs, &mockExistsChecker{}, enroller)

	_, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.NoError(t, err)

	// The lead is converted now, so the second call must fail without
	// creating another enrollment.
	_, err = svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrLeadNotEligible))
	assert.Len(t, enroller.requests, 1)
}

func TestConvertRejectsUnqualifiedLead(t *testing.T) {
	lead := qualifiedLead("l1")
	lead.Status = models.LeadContacted
	leads := &mockConvertibleLeads{leads: map[string]models.Lead{"l1": lead}}
	runs := &mockRunReader{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, _ := newConversionFixture(leads, &mockStudentResolver{}, runs, &mockExistsChecker{}, &mockEnroller{})

	_, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrLeadNotEligible))
}

func TestConvertAccumulatesEligibilityFailures(t *testing.T) {
	leads := &mockConvertibleLeads{leads: map[string]models.Lead{"l1": qualifiedLead("l1")}}
	run := openRun("run-1", 10, 0)
	run.Status = models.RunDraft
	runs := &mockRunReader{runs: map[string]models.CourseRun{"run-1": run}}
	svc, _ := newConversionFixture(leads, &mockStudentResolver{}, runs, &mockExistsChecker{exists: true}, &mockEnroller{})

	_, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "l1", CourseRunID: "run-1", Actor: "advisor"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrEligibilityFailed))
	// Both failing checks show up together, not just the first one.
	appErr := appErrors.FromError(err)
	assert.Contains(t, appErr.Message, "course_run_accepting_enrollments")
	assert.Contains(t, appErr.Message, "lead_not_already_enrolled")
}

func TestEvaluateEmptyOnEligibleInput(t *testing.T) {
	svc, _ := newConversionFixture(&mockConvertibleLeads{}, &mockStudentResolver{}, &mockRunReader{}, &mockExistsChecker{}, &mockEnroller{})
	run := openRun("run-1", 10, 0)
	lead := qualifiedLead("l1")
	failures := svc.Evaluate(EligibilityInput{Lead: &lead, Run: &run})
	assert.Empty(t, failures)
}

func TestConvertMissingLead(t *testing.T) {
	svc, _ := newConversionFixture(&mockConvertibleLeads{}, &mockStudentResolver{}, &mockRunReader{}, &mockExistsChecker{}, &mockEnroller{})
	_, err := svc.Convert(context.Background(), ConversionRequest{LeadID: "missing", CourseRunID: "run-1", Actor: "advisor"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
