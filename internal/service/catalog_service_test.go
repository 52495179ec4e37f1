package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type mockCourseRepo struct {
	courses   map[string]*models.Course
	bySlug    map[string]*models.Course
	taken     map[string]bool
	listCalls int
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{
		courses: map[string]*models.Course{},
		bySlug:  map[string]*models.Course{},
		taken:   map[string]bool{},
	}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	m.listCalls++
	var out []models.Course
	for _, c := range m.courses {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (m *mockCourseRepo) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	c, ok := m.bySlug[slug]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (m *mockCourseRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	return m.taken[slug], nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "course-" + course.Slug
	m.courses[course.ID] = course
	m.bySlug[course.Slug] = course
	m.taken[course.Slug] = true
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	m.bySlug[course.Slug] = course
	return nil
}

type mockCatalogCache struct {
	store    map[string][]models.Course
	sets     int
	deletes  int
	setErr   error
	delError error
}

func newMockCatalogCache() *mockCatalogCache {
	return &mockCatalogCache{store: map[string][]models.Course{}}
}

func (m *mockCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := m.store[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "cache miss")
	}
	*dest.(*[]models.Course) = cached
	return nil
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.store[key] = value.([]models.Course)
	return nil
}

func (m *mockCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	if m.delError != nil {
		return m.delError
	}
	m.deletes++
	m.store = map[string][]models.Course{}
	return nil
}

func TestCatalogCreateAssignsSlug(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCatalogService(repo, nil, 0, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Curso de Prueba",
		Modality:  string(models.ModalityOnline),
		CycleID:   "cycle-1",
		CreatedBy: "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "curso-de-prueba", course.Slug)
	assert.Equal(t, models.PublicationDraft, course.Status)
	assert.Equal(t, models.ModalityOnline, course.Modality)
}

func TestCatalogCreateSuffixesTakenSlug(t *testing.T) {
	repo := newMockCourseRepo()
	repo.taken["curso-de-prueba"] = true
	repo.taken["curso-de-prueba-1"] = true
	svc := NewCatalogService(repo, nil, 0, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Curso de Prueba",
		Modality:  string(models.ModalityInPerson),
		CycleID:   "cycle-1",
		CreatedBy: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "curso-de-prueba-2", course.Slug)
}

func TestCatalogCreateRejectsUnknownModality(t *testing.T) {
	svc := NewCatalogService(newMockCourseRepo(), nil, 0, nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Robotics",
		Modality:  "correspondence",
		CycleID:   "cycle-1",
		CreatedBy: "admin-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCatalogUpdateKeepsSlugStable(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCatalogService(repo, nil, 0, nil, nil)

	created, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Robotics Basics",
		Modality:  string(models.ModalityOnline),
		CycleID:   "cycle-1",
		CreatedBy: "admin-1",
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{
		Name:     "Advanced Robotics",
		Modality: string(models.ModalityBlended),
		CycleID:  "cycle-2",
	})
	require.NoError(t, err)

	assert.Equal(t, "robotics-basics", updated.Slug)
	assert.Equal(t, "Advanced Robotics", updated.Name)
	assert.Equal(t, models.ModalityBlended, updated.Modality)
}

func TestCatalogListPublishedUsesCache(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Slug: "published-one", Status: models.PublicationPublished}
	repo.courses["course-2"] = &models.Course{ID: "course-2", Slug: "still-draft", Status: models.PublicationDraft}
	cache := newMockCatalogCache()
	svc := NewCatalogService(repo, cache, time.Minute, nil, nil)

	first, err := svc.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, cache.sets)

	// Warm cache: the repository is not consulted again.
	second, err := svc.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCatalogInvalidateEvictsPublished(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Slug: "published-one", Status: models.PublicationPublished}
	cache := newMockCatalogCache()
	svc := NewCatalogService(repo, cache, time.Minute, nil, nil)

	_, err := svc.ListPublished(context.Background())
	require.NoError(t, err)

	svc.InvalidatePublished(context.Background())
	assert.Equal(t, 1, cache.deletes)

	_, err = svc.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCatalogCacheWriteFailureDoesNotFailList(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Slug: "published-one", Status: models.PublicationPublished}
	cache := newMockCatalogCache()
	cache.setErr = sql.ErrConnDone
	svc := NewCatalogService(repo, cache, time.Minute, nil, nil)

	courses, err := svc.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Len(t, courses, 1)
}

func TestCatalogGetBySlug(t *testing.T) {
	repo := newMockCourseRepo()
	repo.bySlug["robotics-basics"] = &models.Course{ID: "course-1", Slug: "robotics-basics"}
	svc := NewCatalogService(repo, nil, 0, nil, nil)

	course, err := svc.GetBySlug(context.Background(), "robotics-basics")
	require.NoError(t, err)
	assert.Equal(t, "course-1", course.ID)

	_, err = svc.GetBySlug(context.Background(), "missing-course")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.GetBySlug(context.Background(), "Not A Slug!")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
