package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-hq/ops-api/internal/middleware"
	"github.com/campus-hq/ops-api/internal/service"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/response"
)

// AdminRoleHeader marks requests performed with admin privileges. Closed
// and past-window sessions only accept attendance edits when it is set.
const AdminRoleHeader = "X-Admin"

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Mark records attendance for one enrollment in a session.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req, c.GetHeader(middleware.ActorHeader), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkBulk records attendance for several enrollments in one session.
func (h *AttendanceHandler) MarkBulk(c *gin.Context) {
	var req service.BulkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	records, err := h.attendance.MarkBulk(c.Request.Context(), req, c.GetHeader(middleware.ActorHeader), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// EnrollmentSummary aggregates attendance for one enrollment.
func (h *AttendanceHandler) EnrollmentSummary(c *gin.Context) {
	summary, err := h.attendance.EnrollmentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// SessionSummary aggregates attendance for one session.
func (h *AttendanceHandler) SessionSummary(c *gin.Context) {
	summary, err := h.attendance.SessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func isAdmin(c *gin.Context) bool {
	return c.GetHeader(AdminRoleHeader) == "true"
}
