package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type recordingSink struct {
	events []models.DomainEvent
}

func (r *recordingSink) Emit(ctx context.Context, events ...models.DomainEvent) {
	r.events = append(r.events, events...)
}

func (r *recordingSink) types() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	existing    map[string]bool
	created     *models.Enrollment
	statusAt    map[string]time.Time
	waitlisted  *models.Enrollment
	position    int
	updateErr   error
}

func (m *mockEnrollmentRepo) CountByRunAndStatus(ctx context.Context, courseRunID string, status models.EnrollmentStatus) (int, error) {
	count := 0
	for _, e := range m.enrollments {
		if e.CourseRunID == courseRunID && e.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsForRun(ctx context.Context, studentID, courseRunID string) (bool, error) {
	return m.existing[studentID+courseRunID], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.statusAt == nil {
		m.statusAt = make(map[string]time.Time)
	}
	m.statusAt[id] = at
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) UpdatePayment(ctx context.Context, id string, amountPaid, totalAmount, financialAid float64) error {
	if e, ok := m.enrollments[id]; ok {
		e.AmountPaid = amountPaid
		e.TotalAmount = totalAmount
		e.FinancialAid = financialAid
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) OldestWaitlisted(ctx context.Context, courseRunID string) (*models.Enrollment, error) {
	return m.waitlisted, nil
}

func (m *mockEnrollmentRepo) WaitlistPosition(ctx context.Context, courseRunID, enrollmentID string) (int, error) {
	return m.position, nil
}

type mockSeatAccountant struct {
	runs     map[string]models.CourseRun
	reserved int
	released int
	full     bool
}

func (m *mockSeatAccountant) FindByID(ctx context.Context, id string) (*models.CourseRun, error) {
	if r, ok := m.runs[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeatAccountant) ReserveSeat(ctx context.Context, id string) (bool, error) {
	if m.full {
		return false, nil
	}
	m.reserved++
	if r, ok := m.runs[id]; ok {
		r.CurrentEnrollments++
		m.runs[id] = r
	}
	return true, nil
}

func (m *mockSeatAccountant) ReleaseSeat(ctx context.Context, id string) error {
	m.released++
	if r, ok := m.runs[id]; ok && r.CurrentEnrollments > 0 {
		r.CurrentEnrollments--
		m.runs[id] = r
	}
	return nil
}

type mockActiveStudents struct {
	inactive map[string]bool
}

func (m *mockActiveStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id, Active: !m.inactive[id]}, nil
}

func openRun(id string, max, current int) models.CourseRun {
	return models.CourseRun{
		ID:                 id,
		CourseID:           "course-1",
		MaxStudents:        max,
		CurrentEnrollments: current,
		Status:             models.RunEnrollmentOpen,
	}
}

func newEnrollmentFixture(runs *mockSeatAccountant, repo *mockEnrollmentRepo, waitlist, autoPromote bool) (*EnrollmentService, *recordingSink) {
	sink := &recordingSink{}
	svc := NewEnrollmentService(repo, runs, &mockActiveStudents{}, sink, waitlist, autoPromote, validator.New(), zap.NewNop())
	return svc, sink
}

func TestEnrollWithSeatsCreatesPending(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 3)}}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	enrollment, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web", TotalAmount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPending, enrollment.Status)
	assert.NotNil(t, enrollment.EnrolledAt)
	// Admission never touches the counter; only confirm does.
	assert.Equal(t, 0, runs.reserved)
	assert.Contains(t, sink.types(), models.EventEnrollmentCreated)
}

func TestEnrollFullRunWaitlists(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	enrollment, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentWaitlist, enrollment.Status)
	assert.Contains(t, sink.types(), models.EventEnrollmentWaitlist)
}

func TestEnrollFullRunWithoutWaitlistFails(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}}
	svc, _ := newEnrollmentFixture(runs, repo, false, false)

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{existing: map[string]bool{"s1run-1": true}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestEnrollRejectsClosedRun(t *testing.T) {
	run := openRun("run-1", 10, 0)
	run.Status = models.RunDraft
	repo := &mockEnrollmentRepo{}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": run}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestEnrollRejectsPastDeadline(t *testing.T) {
	run := openRun("run-1", 10, 0)
	past := time.Now().UTC().Add(-time.Hour)
	run.EnrollmentDeadline = &past
	repo := &mockEnrollmentRepo{}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": run}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		StudentID: "s1", CourseRunID: "run-1", Source: "web",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestConfirmReservesSeatOnce(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	enrollment, err := svc.Confirm(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentConfirmed, enrollment.Status)
	assert.NotNil(t, enrollment.ConfirmedAt)
	assert.Equal(t, 1, runs.reserved)
	assert.Contains(t, sink.types(), models.EventEnrollmentConfirmed)

	// Confirming an already-confirmed enrollment must not take a second seat.
	_, err = svc.Confirm(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, runs.reserved)
}

func TestConfirmAtCapacityFails(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}, full: true}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Confirm(context.Background(), "e1", "admin")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	assert.Contains(t, sink.types(), models.EventSeatRejected)
}

func TestConfirmReleasesSeatWhenStatusWriteFails(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
		},
		updateErr: sql.ErrConnDone,
	}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Confirm(context.Background(), "e1", "admin")
	require.Error(t, err)
	assert.Equal(t, 1, runs.reserved)
	assert.Equal(t, 1, runs.released)
}

func TestCancelConfirmedReleasesSeat(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentConfirmed},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 4)}}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	enrollment, err := svc.Cancel(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)
	assert.NotNil(t, enrollment.CancelledAt)
	assert.Equal(t, 1, runs.released)
	assert.Contains(t, sink.types(), models.EventEnrollmentReleased)
}

func TestCancelPendingKeepsCounter(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 4)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Cancel(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, runs.released)
}

func TestReleaseAutoPromotesOldestWaitlisted(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentConfirmed},
			"w1": {ID: "w1", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
		},
		waitlisted: &models.Enrollment{ID: "w1", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
	}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, true)

	_, err := svc.Cancel(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentConfirmed, repo.enrollments["w1"].Status)
	assert.Equal(t, 1, runs.reserved)
}

func TestReleaseEmitsPromotableWithoutAutoPromote(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentConfirmed},
		},
		waitlisted: &models.Enrollment{ID: "w1", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
	}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}}
	svc, sink := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Cancel(context.Background(), "e1", "admin")
	require.NoError(t, err)
	assert.Contains(t, sink.types(), models.EventWaitlistPromotable)
	assert.Equal(t, 0, runs.reserved)
}

func TestCompleteRunsGraduationCheck(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentConfirmed},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 1)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	blocked := func(ctx context.Context, e *models.Enrollment) (bool, error) { return false, nil }
	_, err := svc.Complete(context.Background(), "e1", "admin", blocked)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrGraduationBlocked))

	passing := func(ctx context.Context, e *models.Enrollment) (bool, error) { return true, nil }
	enrollment, err := svc.Complete(context.Background(), "e1", "admin", passing)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletedAt)
}

func TestCompleteRejectsPending(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 0)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.Complete(context.Background(), "e1", "admin", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidEnrollmentTransition))
}

func TestRecordPaymentEnforcesBounds(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentConfirmed},
	}}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 10, 1)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	_, err := svc.RecordPayment(context.Background(), "e1", PaymentRequest{AmountPaid: 150, TotalAmount: 100})
	require.Error(t, err)

	enrollment, err := svc.RecordPayment(context.Background(), "e1", PaymentRequest{AmountPaid: 100, TotalAmount: 100})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, enrollment.PaymentState())
}

func TestWaitlistPositionRequiresWaitlistedStatus(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"w1": {ID: "w1", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
			"w2": {ID: "w2", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
			"w3": {ID: "w3", CourseRunID: "run-1", Status: models.EnrollmentWaitlist},
			"e1": {ID: "e1", CourseRunID: "run-1", Status: models.EnrollmentPending},
		},
		position: 2,
	}
	runs := &mockSeatAccountant{runs: map[string]models.CourseRun{"run-1": openRun("run-1", 5, 5)}}
	svc, _ := newEnrollmentFixture(runs, repo, true, false)

	position, total, err := svc.WaitlistPosition(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, position)
	assert.Equal(t, 3, total)

	_, _, err = svc.WaitlistPosition(context.Background(), "e1")
	require.Error(t, err)
}

func TestEnrollmentTransitionTable(t *testing.T) {
	valid := map[models.EnrollmentStatus][]models.EnrollmentStatus{
		models.EnrollmentPending:   {models.EnrollmentConfirmed, models.EnrollmentCancelled},
		models.EnrollmentWaitlist:  {models.EnrollmentConfirmed, models.EnrollmentCancelled},
		models.EnrollmentConfirmed: {models.EnrollmentCompleted, models.EnrollmentCancelled, models.EnrollmentWithdrawn},
	}
	all := []models.EnrollmentStatus{
		models.EnrollmentPending, models.EnrollmentConfirmed, models.EnrollmentWaitlist,
		models.EnrollmentCompleted, models.EnrollmentCancelled, models.EnrollmentWithdrawn,
	}
	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, v := range valid[from] {
				if v == to {
					expected = true
				}
			}
			assert.Equal(t, expected, models.IsValidEnrollmentTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, models.EnrollmentCompleted.Terminal())
	assert.True(t, models.EnrollmentCancelled.Terminal())
	assert.True(t, models.EnrollmentWithdrawn.Terminal())
}
