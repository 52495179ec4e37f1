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

type mockSessionRepo struct {
	sessions map[string]models.Session
	existing []models.Session
	created  *models.Session
	bulk     []models.Session
	closed   []string
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	return m.existing, len(m.existing), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) ListForResources(ctx context.Context, roomID, instructorID *string, from, to time.Time) ([]models.Session, error) {
	return m.existing, nil
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.Session) error {
	session.ID = "session-new"
	m.created = session
	return nil
}

func (m *mockSessionRepo) BulkCreate(ctx context.Context, sessions []models.Session) ([]models.Session, error) {
	m.bulk = sessions
	return sessions, nil
}

func (m *mockSessionRepo) Close(ctx context.Context, id string) error {
	m.closed = append(m.closed, id)
	return nil
}

func strptr(s string) *string { return &s }

func at(hour, minute int) time.Time {
	return time.Date(2026, 9, 7, hour, minute, 0, 0, time.UTC)
}

func TestCheckConflictsHalfOpenIntervals(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	room := strptr("room-1")

	existing := []models.Session{
		{ID: "s1", RoomID: room, StartTime: at(9, 0), EndTime: at(11, 0)},
	}

	overlapping := &models.Session{RoomID: room, StartTime: at(10, 0), EndTime: at(12, 0)}
	conflicts := svc.CheckConflicts(overlapping, existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "s1", conflicts[0].SessionID)
	assert.Equal(t, "room", conflicts[0].Resource)

	// Back to back sessions share a boundary instant and do not conflict.
	adjacent := &models.Session{RoomID: room, StartTime: at(11, 0), EndTime: at(13, 0)}
	assert.Empty(t, svc.CheckConflicts(adjacent, existing))
}

func TestCheckConflictsRequiresSharedResource(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	existing := []models.Session{
		{ID: "s1", RoomID: strptr("room-1"), InstructorID: strptr("i1"), StartTime: at(9, 0), EndTime: at(11, 0)},
	}

	otherRoom := &models.Session{RoomID: strptr("room-2"), StartTime: at(9, 30), EndTime: at(10, 30)}
	assert.Empty(t, svc.CheckConflicts(otherRoom, existing))

	sameInstructor := &models.Session{InstructorID: strptr("i1"), StartTime: at(9, 30), EndTime: at(10, 30)}
	conflicts := svc.CheckConflicts(sameInstructor, existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "instructor", conflicts[0].Resource)
}

func TestCreateRejectsConflictingSession(t *testing.T) {
	room := strptr("room-1")
	repo := &mockSessionRepo{existing: []models.Session{
		{ID: "s1", RoomID: room, StartTime: at(9, 0), EndTime: at(11, 0)},
	}}
	svc := NewSessionService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		CourseRunID: "run-1", RoomID: room, StartTime: at(10, 0), EndTime: at(12, 0),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Nil(t, repo.created)
}

func TestCreateValidatesTimeOrdering(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	_, err := svc.Create(context.Background(), CreateSessionRequest{
		CourseRunID: "run-1", StartTime: at(11, 0), EndTime: at(9, 0),
	})
	require.Error(t, err)
}

func TestGenerateRecurringWeeklyCount(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	sessions, err := svc.GenerateRecurring(RecurringSessionsRequest{
		CourseRunID: "run-1",
		FirstStart:  at(9, 0),
		FirstEnd:    at(11, 0),
		Pattern:     models.RecurrencePattern{Frequency: models.FrequencyWeekly, Interval: 1, Count: 4},
	})
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	for i, s := range sessions {
		assert.Equal(t, at(9, 0).AddDate(0, 0, 7*i), s.StartTime)
		assert.Equal(t, 2*time.Hour, s.Duration())
	}
}

func TestGenerateRecurringUntilBound(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	until := at(9, 0).AddDate(0, 0, 2)
	sessions, err := svc.GenerateRecurring(RecurringSessionsRequest{
		CourseRunID: "run-1",
		FirstStart:  at(9, 0),
		FirstEnd:    at(10, 0),
		Pattern:     models.RecurrencePattern{Frequency: models.FrequencyDaily, Interval: 1, Until: &until},
	})
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestGenerateRecurringIsDeterministic(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	req := RecurringSessionsRequest{
		CourseRunID: "run-1",
		FirstStart:  at(9, 0),
		FirstEnd:    at(10, 0),
		Pattern:     models.RecurrencePattern{Frequency: models.FrequencyDaily, Interval: 2, Count: 5},
	}
	first, err := svc.GenerateRecurring(req)
	require.NoError(t, err)
	second, err := svc.GenerateRecurring(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateRecurringRequiresBound(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, validator.New(), zap.NewNop())
	_, err := svc.GenerateRecurring(RecurringSessionsRequest{
		CourseRunID: "run-1",
		FirstStart:  at(9, 0),
		FirstEnd:    at(10, 0),
		Pattern:     models.RecurrencePattern{Frequency: models.FrequencyDaily, Interval: 1},
	})
	require.Error(t, err)
}

func TestCreateRecurringPersistsSeries(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := NewSessionService(repo, validator.New(), zap.NewNop())
	sessions, err := svc.CreateRecurring(context.Background(), RecurringSessionsRequest{
		CourseRunID: "run-1",
		FirstStart:  at(9, 0),
		FirstEnd:    at(10, 0),
		Pattern:     models.RecurrencePattern{Frequency: models.FrequencyWeekly, Interval: 1, Count: 3},
	})
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
	assert.Len(t, repo.bulk, 3)
}

func TestCloseSession(t *testing.T) {
	repo := &mockSessionRepo{sessions: map[string]models.Session{
		"s1": {ID: "s1", StartTime: at(9, 0), EndTime: at(11, 0)},
	}}
	svc := NewSessionService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.CloseSession(context.Background(), "s1"))
	assert.Contains(t, repo.closed, "s1")

	err := svc.CloseSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
