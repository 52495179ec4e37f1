package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type leadRepository interface {
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error
	Assign(ctx context.Context, id string, userID *string) error
}

// CaptureLeadRequest describes an inquiry capture payload.
type CaptureLeadRequest struct {
	FirstName        string  `json:"first_name" validate:"required"`
	LastName         string  `json:"last_name" validate:"required"`
	Email            string  `json:"email" validate:"required,email"`
	Phone            string  `json:"phone" validate:"required"`
	Message          *string `json:"message"`
	CourseID         *string `json:"course_id"`
	CampusID         *string `json:"campus_id"`
	CampaignID       *string `json:"campaign_id"`
	PreferEmail      bool    `json:"prefer_email"`
	PreferPhone      bool    `json:"prefer_phone"`
	PreferWhatsApp   bool    `json:"prefer_whatsapp"`
	MarketingConsent bool    `json:"marketing_consent"`
	GDPRConsent      bool    `json:"gdpr_consent" validate:"required"`
	ConsentIP        string  `json:"consent_ip" validate:"required"`
}

// UpdateLeadRequest describes mutable lead contact fields. Status, score and
// consent are deliberately absent: they are owned by the engines.
type UpdateLeadRequest struct {
	FirstName        string  `json:"first_name" validate:"required"`
	LastName         string  `json:"last_name" validate:"required"`
	Email            string  `json:"email" validate:"required,email"`
	Phone            string  `json:"phone" validate:"required"`
	Message          *string `json:"message"`
	CourseID         *string `json:"course_id"`
	CampusID         *string `json:"campus_id"`
	CampaignID       *string `json:"campaign_id"`
	PreferEmail      bool    `json:"prefer_email"`
	PreferPhone      bool    `json:"prefer_phone"`
	PreferWhatsApp   bool    `json:"prefer_whatsapp"`
	MarketingConsent bool    `json:"marketing_consent"`
}

// LeadService manages the lead lifecycle: capture, scoring, status
// transitions and assignment.
type LeadService struct {
	leads            leadRepository
	scoring          *LeadScoringService
	events           eventSink
	autoScore        bool
	qualifyThreshold int
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewLeadService constructs the lead service. A non-positive
// qualifyThreshold falls back to the scoring default.
func NewLeadService(leads leadRepository, scoring *LeadScoringService, events eventSink, autoScore bool, qualifyThreshold int, validate *validator.Validate, logger *zap.Logger) *LeadService {
	if scoring == nil {
		scoring = NewLeadScoringService()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LeadService{leads: leads, scoring: scoring, events: events, autoScore: autoScore, qualifyThreshold: qualifyThreshold, validator: validate, logger: logger}
	svc.validator.RegisterValidation("lead_status", func(fl validator.FieldLevel) bool {
		return models.LeadStatus(fl.Field().String()).Valid()
	})
	return svc
}

// List returns leads with pagination metadata.
func (s *LeadService) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, *models.Pagination, error) {
	leads, total, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leads")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return leads, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a lead by id.
func (s *LeadService) Get(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	return lead, nil
}

// Capture registers a new inquiry. Consent metadata is stamped once here
// and never rewritten afterwards.
func (s *LeadService) Capture(ctx context.Context, req CaptureLeadRequest) (*models.Lead, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lead payload")
	}

	now := time.Now().UTC()
	lead := &models.Lead{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		Message:          req.Message,
		CourseID:         req.CourseID,
		CampusID:         req.CampusID,
		CampaignID:       req.CampaignID,
		Status:           models.LeadNew,
		PreferEmail:      req.PreferEmail,
		PreferPhone:      req.PreferPhone,
		PreferWhatsApp:   req.PreferWhatsApp,
		MarketingConsent: req.MarketingConsent,
		GDPRConsent:      req.GDPRConsent,
		ConsentTimestamp: &now,
		ConsentIPAddress: &req.ConsentIP,
	}
	if s.autoScore {
		lead.Score = s.scoring.QuickScore(lead).Score
	}

	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lead")
	}

	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(models.EventLeadCaptured, lead.ID, "", map[string]string{
			"status": string(lead.Status),
		}))
	}
	return lead, nil
}

// Update persists mutable contact fields and recomputes the score from the
// fresh field values. The caller can never set the score directly.
func (s *LeadService) Update(ctx context.Context, id string, req UpdateLeadRequest) (*models.Lead, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lead payload")
	}
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead.Status == models.LeadConverted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "converted leads are read-only")
	}

	lead.FirstName = req.FirstName
	lead.LastName = req.LastName
	lead.Email = req.Email
	lead.Phone = req.Phone
	lead.Message = req.Message
	lead.CourseID = req.CourseID
	lead.CampusID = req.CampusID
	lead.CampaignID = req.CampaignID
	lead.PreferEmail = req.PreferEmail
	lead.PreferPhone = req.PreferPhone
	lead.PreferWhatsApp = req.PreferWhatsApp
	lead.MarketingConsent = req.MarketingConsent
	if s.autoScore {
		lead.Score = s.scoring.QuickScore(lead).Score
	}

	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lead")
	}
	return lead, nil
}

// Transition advances a lead through the status state machine.
func (s *LeadService) Transition(ctx context.Context, id string, target models.LeadStatus, actor string) (*models.Lead, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lead status")
	}
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead.Status == target {
		return nil, appErrors.Clone(appErrors.ErrInvalidLeadTransition, "lead already in state "+string(target))
	}
	if !models.IsValidLeadTransition(lead.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidLeadTransition,
			"cannot transition lead from "+string(lead.Status)+" to "+string(target))
	}
	if target == models.LeadQualified && !s.scoring.IsQualified(ScoreResult{Score: lead.Score}, s.qualifyThreshold) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			"lead "+lead.ID+" score does not clear the qualification threshold")
	}

	from := lead.Status
	if err := s.leads.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lead status")
	}
	lead.Status = target

	if s.events != nil {
		s.events.Emit(ctx, models.NewDomainEvent(models.EventLeadStatusChanged, id, actor, map[string]string{
			"from": string(from),
			"to":   string(target),
		}))
	}
	return lead, nil
}

// NextStatuses returns the lead states reachable from current.
func (s *LeadService) NextStatuses(current models.LeadStatus) []models.LeadStatus {
	return models.NextLeadStatuses(current)
}

// Assign sets or clears the staff member responsible for a lead.
func (s *LeadService) Assign(ctx context.Context, id string, userID *string) (*models.Lead, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.leads.Assign(ctx, id, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign lead")
	}
	lead.AssignedTo = userID
	return lead, nil
}

// Rescore recomputes and persists the lead score using the default rules.
func (s *LeadService) Rescore(ctx context.Context, id string) (*models.Lead, ScoreResult, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, ScoreResult{}, err
	}
	result := s.scoring.QuickScore(lead)
	lead.Score = result.Score
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, ScoreResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist lead score")
	}
	return lead, result, nil
}
