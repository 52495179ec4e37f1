package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/campus-hq/ops-api/internal/service"
	"github.com/campus-hq/ops-api/pkg/response"
)

// ExportHandler serves rendered roster exports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster streams the course run roster in the requested format.
func (h *ExportHandler) Roster(c *gin.Context) {
	format := service.RosterFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Roster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(200, result.ContentType, result.Payload)
}
