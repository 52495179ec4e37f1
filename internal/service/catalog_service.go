package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/slug"
)

const publishedCoursesCacheKey = "catalog:courses:published"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Name      string   `json:"name" validate:"required"`
	Modality  string   `json:"modality" validate:"required,modality"`
	CycleID   string   `json:"cycle_id" validate:"required"`
	CampusIDs []string `json:"campus_ids"`
	CreatedBy string   `json:"created_by" validate:"required"`
}

// UpdateCourseRequest describes mutable course fields.
type UpdateCourseRequest struct {
	Name      string   `json:"name" validate:"required"`
	Modality  string   `json:"modality" validate:"required,modality"`
	CycleID   string   `json:"cycle_id" validate:"required"`
	CampusIDs []string `json:"campus_ids"`
}

// CatalogService owns course catalog CRUD and slug assignment.
type CatalogService struct {
	courses   courseRepository
	cache     catalogCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(courses courseRepository, cache catalogCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CatalogService{courses: courses, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
	svc.validator.RegisterValidation("modality", func(fl validator.FieldLevel) bool {
		return models.Modality(fl.Field().String()).Valid()
	})
	return svc
}

// List returns courses with pagination metadata.
func (s *CatalogService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListPublished returns the published catalog, served from cache when warm.
func (s *CatalogService) ListPublished(ctx context.Context) ([]models.Course, error) {
	if s.cache != nil {
		var cached []models.Course
		if err := s.cache.Get(ctx, publishedCoursesCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	courses, _, err := s.courses.List(ctx, models.CourseFilter{Status: models.PublicationPublished, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list published courses")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, publishedCoursesCacheKey, courses, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache published courses", zap.Error(err))
		}
	}
	return courses, nil
}

// InvalidatePublished evicts the published-catalog cache. Called after
// publication transitions.
func (s *CatalogService) InvalidatePublished(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:courses:*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}

// Get returns a course by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// GetBySlug returns a course by its slug.
func (s *CatalogService) GetBySlug(ctx context.Context, courseSlug string) (*models.Course, error) {
	if !slug.Valid(courseSlug) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed slug")
	}
	course, err := s.courses.FindBySlug(ctx, courseSlug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new draft course with a unique slug derived from its
// name.
func (s *CatalogService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	courseSlug, err := slug.Unique(ctx, req.Name, s.courses.SlugExists)
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		Slug:      courseSlug,
		Name:      req.Name,
		Modality:  models.Modality(req.Modality),
		Status:    models.PublicationDraft,
		CycleID:   req.CycleID,
		CampusIDs: req.CampusIDs,
		CreatedBy: req.CreatedBy,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update persists mutable course fields. The slug is stable after creation
// so published URLs never break.
func (s *CatalogService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.Modality = models.Modality(req.Modality)
	course.CycleID = req.CycleID
	course.CampusIDs = req.CampusIDs
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}
