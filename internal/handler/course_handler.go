package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-hq/ops-api/internal/models"
	"github.com/campus-hq/ops-api/internal/service"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/response"
)

// CourseHandler exposes catalog course endpoints.
type CourseHandler struct {
	catalog     *service.CatalogService
	publication *service.PublicationService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(catalog *service.CatalogService, publication *service.PublicationService) *CourseHandler {
	return &CourseHandler{catalog: catalog, publication: publication}
}

// List returns catalog courses with filters and pagination.
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.Search = c.Query("search")
	filter.CycleID = c.Query("cycleId")
	filter.CampusID = c.Query("campusId")
	filter.Modality = models.Modality(c.Query("modality"))
	filter.Status = models.PublicationStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// ListPublished returns the public published catalog.
func (h *CourseHandler) ListPublished(c *gin.Context) {
	courses, err := h.catalog.ListPublished(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get returns a course by id.
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// GetBySlug returns a course by its public slug.
func (h *CourseHandler) GetBySlug(c *gin.Context) {
	course, err := h.catalog.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create registers a new draft course.
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update modifies course content. The slug never changes.
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.catalog.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

type publicationTransitionRequest struct {
	Status models.PublicationStatus `json:"status" binding:"required"`
	Actor  string                   `json:"actor" binding:"required"`
}

// Transition moves a course through the publication state machine.
func (h *CourseHandler) Transition(c *gin.Context) {
	var req publicationTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.publication.Transition(c.Request.Context(), c.Param("id"), req.Status, req.Actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.catalog.InvalidatePublished(c.Request.Context())
	response.JSON(c, http.StatusOK, course, nil)
}

// NextStates lists the publication states reachable from a course's
// current status.
func (h *CourseHandler) NextStates(c *gin.Context) {
	course, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"status": course.Status,
		"next":   h.publication.NextStates(course.Status),
	}, nil)
}
