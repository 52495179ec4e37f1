package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-hq/ops-api/internal/models"
	"github.com/campus-hq/ops-api/internal/service"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/response"
)

// CourseRunHandler exposes course run endpoints.
type CourseRunHandler struct {
	runs *service.CourseRunService
}

// NewCourseRunHandler constructs CourseRunHandler.
func NewCourseRunHandler(runs *service.CourseRunService) *CourseRunHandler {
	return &CourseRunHandler{runs: runs}
}

// List returns course runs with filters and pagination.
func (h *CourseRunHandler) List(c *gin.Context) {
	var filter models.CourseRunFilter
	filter.CourseID = c.Query("courseId")
	filter.CampusID = c.Query("campusId")
	filter.Status = models.CourseRunStatus(c.Query("status"))
	if from, err := time.Parse(time.RFC3339, c.Query("startFrom")); err == nil {
		filter.StartFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("startTo")); err == nil {
		filter.StartTo = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	runs, pagination, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Get returns a course run by id.
func (h *CourseRunHandler) Get(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Create schedules a new run of a course.
func (h *CourseRunHandler) Create(c *gin.Context) {
	var req service.CreateCourseRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	run, err := h.runs.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, run)
}

type runTransitionRequest struct {
	Status models.CourseRunStatus `json:"status" binding:"required"`
	Actor  string                 `json:"actor" binding:"required"`
}

// Transition moves a run through its lifecycle.
func (h *CourseRunHandler) Transition(c *gin.Context) {
	var req runTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	run, err := h.runs.Transition(c.Request.Context(), c.Param("id"), req.Status, req.Actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Snapshot returns the closing snapshot of a completed run.
func (h *CourseRunHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.runs.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}
