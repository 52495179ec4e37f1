package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/export"
)

type mockRosterLister struct {
	details []models.EnrollmentDetail
	pages   []models.EnrollmentFilter
}

func (m *mockRosterLister) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.pages = append(m.pages, filter)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * filter.PageSize
	if start >= len(m.details) {
		return nil, len(m.details), nil
	}
	end := start + filter.PageSize
	if end > len(m.details) {
		end = len(m.details)
	}
	return m.details[start:end], len(m.details), nil
}

type mockRosterRunReader struct {
	runs map[string]models.CourseRun
}

func (m *mockRosterRunReader) FindByID(ctx context.Context, id string) (*models.CourseRun, error) {
	if run, ok := m.runs[id]; ok {
		return &run, nil
	}
	return nil, sql.ErrNoRows
}

type capturingRenderer struct {
	dataset export.Dataset
}

func (c *capturingRenderer) Render(data export.Dataset) ([]byte, error) {
	c.dataset = data
	return []byte("rendered"), nil
}

func rosterDetails(n int) []models.EnrollmentDetail {
	out := make([]models.EnrollmentDetail, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.EnrollmentDetail{
			Enrollment:  models.Enrollment{ID: fmt.Sprintf("e-%03d", i), Status: models.EnrollmentConfirmed},
			StudentName: fmt.Sprintf("Student %03d", i),
		})
	}
	return out
}

func TestRosterWalksAllPages(t *testing.T) {
	lister := &mockRosterLister{details: rosterDetails(130)}
	runs := &mockRosterRunReader{runs: map[string]models.CourseRun{
		"run-1": {ID: "run-1", MaxStudents: 130},
	}}
	svc := NewExportService(lister, runs, nil)
	renderer := &capturingRenderer{}
	svc.csv = renderer

	_, err := svc.Roster(context.Background(), "run-1", RosterFormatCSV)
	require.NoError(t, err)

	assert.Len(t, renderer.dataset.Rows, 130)
	require.Len(t, lister.pages, 2)
	assert.Equal(t, 1, lister.pages[0].Page)
	assert.Equal(t, 2, lister.pages[1].Page)
	for _, filter := range lister.pages {
		assert.Equal(t, 100, filter.PageSize)
	}
	assert.Equal(t, "Student 000", renderer.dataset.Rows[0]["Student"])
	assert.Equal(t, "Student 129", renderer.dataset.Rows[129]["Student"])
}

func TestRosterStopsOnShortPage(t *testing.T) {
	lister := &mockRosterLister{details: rosterDetails(8)}
	runs := &mockRosterRunReader{runs: map[string]models.CourseRun{
		"run-1": {ID: "run-1", MaxStudents: 30},
	}}
	svc := NewExportService(lister, runs, nil)
	renderer := &capturingRenderer{}
	svc.csv = renderer

	_, err := svc.Roster(context.Background(), "run-1", RosterFormatCSV)
	require.NoError(t, err)
	assert.Len(t, lister.pages, 1)
	assert.Len(t, renderer.dataset.Rows, 8)
}

func TestRosterExcludesCancelledAndWithdrawn(t *testing.T) {
	details := rosterDetails(4)
	details[1].Status = models.EnrollmentCancelled
	details[2].Status = models.EnrollmentWithdrawn
	lister := &mockRosterLister{details: details}
	runs := &mockRosterRunReader{runs: map[string]models.CourseRun{
		"run-1": {ID: "run-1", MaxStudents: 10},
	}}
	svc := NewExportService(lister, runs, nil)

	result, err := svc.Roster(context.Background(), "run-1", RosterFormatCSV)
	require.NoError(t, err)

	csv := string(result.Payload)
	assert.Contains(t, csv, "Student 000")
	assert.NotContains(t, csv, "Student 001")
	assert.NotContains(t, csv, "Student 002")
	assert.Contains(t, csv, "Student 003")
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "roster-run-1.csv", result.Filename)
}

func TestRosterUnknownRun(t *testing.T) {
	svc := NewExportService(&mockRosterLister{}, &mockRosterRunReader{}, nil)

	_, err := svc.Roster(context.Background(), "missing", RosterFormatCSV)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRosterRejectsUnknownFormat(t *testing.T) {
	runs := &mockRosterRunReader{runs: map[string]models.CourseRun{
		"run-1": {ID: "run-1", MaxStudents: 10},
	}}
	svc := NewExportService(&mockRosterLister{}, runs, nil)

	_, err := svc.Roster(context.Background(), "run-1", RosterFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRosterPDFMetadata(t *testing.T) {
	lister := &mockRosterLister{details: rosterDetails(2)}
	runs := &mockRosterRunReader{runs: map[string]models.CourseRun{
		"run-1": {ID: "run-1", MaxStudents: 10},
	}}
	svc := NewExportService(lister, runs, nil)

	result, err := svc.Roster(context.Background(), "run-1", RosterFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "roster-run-1.pdf", result.Filename)
	assert.True(t, strings.HasPrefix(string(result.Payload), "%PDF"))
}
