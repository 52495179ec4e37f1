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

// LeadHandler exposes lead capture, scoring and conversion endpoints.
type LeadHandler struct {
	leads      *service.LeadService
	conversion *service.LeadConversionService
}

// NewLeadHandler constructs LeadHandler.
func NewLeadHandler(leads *service.LeadService, conversion *service.LeadConversionService) *LeadHandler {
	return &LeadHandler{leads: leads, conversion: conversion}
}

// List returns leads with filters and pagination.
func (h *LeadHandler) List(c *gin.Context) {
	var filter models.LeadFilter
	filter.Status = models.LeadStatus(c.Query("status"))
	filter.CourseID = c.Query("courseId")
	filter.CampusID = c.Query("campusId")
	filter.CampaignID = c.Query("campaignId")
	filter.AssignedTo = c.Query("assignedTo")
	if min, err := strconv.Atoi(c.Query("minScore")); err == nil {
		filter.MinScore = &min
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	leads, pagination, err := h.leads.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leads, pagination)
}

// Get returns a lead by id.
func (h *LeadHandler) Get(c *gin.Context) {
	lead, err := h.leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Capture registers an inbound lead.
func (h *LeadHandler) Capture(c *gin.Context) {
	var req service.CaptureLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.ConsentIP == "" {
		req.ConsentIP = c.ClientIP()
	}
	lead, err := h.leads.Capture(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lead)
}

// Update modifies lead contact data and re-scores it.
func (h *LeadHandler) Update(c *gin.Context) {
	var req service.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

type leadTransitionRequest struct {
	Status models.LeadStatus `json:"status" binding:"required"`
	Actor  string            `json:"actor" binding:"required"`
}

// Transition moves a lead through the pipeline.
func (h *LeadHandler) Transition(c *gin.Context) {
	var req leadTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Transition(c.Request.Context(), c.Param("id"), req.Status, req.Actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

type assignLeadRequest struct {
	UserID *string `json:"user_id"`
}

// Assign sets or clears the advisor owning the lead.
func (h *LeadHandler) Assign(c *gin.Context) {
	var req assignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Assign(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Rescore recomputes the lead score and returns the matched rules.
func (h *LeadHandler) Rescore(c *gin.Context) {
	lead, result, err := h.leads.Rescore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil, map[string]interface{}{
		"score":         result.Score,
		"matched_rules": result.MatchedRules,
	})
}

// Convert turns a qualified lead into a student enrollment.
func (h *LeadHandler) Convert(c *gin.Context) {
	var req service.ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.LeadID = c.Param("id")
	result, err := h.conversion.Convert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
