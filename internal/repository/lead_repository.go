package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hq/ops-api/internal/models"
)

// LeadRepository manages persistence for leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs a LeadRepository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

const leadColumns = `id, first_name, last_name, email, phone, message, course_id, campus_id, campaign_id,
        status, score, prefer_email, prefer_phone, prefer_whatsapp, marketing_consent,
        gdpr_consent, consent_timestamp, consent_ip_address, assigned_to, created_at, updated_at`

// List returns leads matching the provided filters.
func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	base := "FROM leads l"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("l.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("l.campus_id = $%d", len(args)+1))
		args = append(args, filter.CampusID)
	}
	if filter.CampaignID != "" {
		conditions = append(conditions, fmt.Sprintf("l.campaign_id = $%d", len(args)+1))
		args = append(args, filter.CampaignID)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("l.assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.MinScore != nil {
		conditions = append(conditions, fmt.Sprintf("l.score >= $%d", len(args)+1))
		args = append(args, *filter.MinScore)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"score":      "l.score",
		"created_at": "l.created_at",
		"status":     "l.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "l.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		strings.ReplaceAll(leadColumns, "\n", " "), base+clause, orderBy, order, size, offset)

	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	return leads, total, nil
}

// FindByID returns a lead by its ID.
func (r *LeadRepository) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE id = $1", leadColumns)
	var lead models.Lead
	if err := r.db.GetContext(ctx, &lead, query, id); err != nil {
		return nil, err
	}
	return &lead, nil
}

// Create inserts a lead.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	const query = `INSERT INTO leads (id, first_name, last_name, email, phone, message, course_id, campus_id, campaign_id,
        status, score, prefer_email, prefer_phone, prefer_whatsapp, marketing_consent,
        gdpr_consent, consent_timestamp, consent_ip_address, assigned_to, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :email, :phone, :message, :course_id, :campus_id, :campaign_id,
        :status, :score, :prefer_email, :prefer_phone, :prefer_whatsapp, :marketing_consent,
        :gdpr_consent, :consent_timestamp, :consent_ip_address, :assigned_to, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// Update persists mutable lead contact fields together with the recomputed
// score. Status, consent and score ownership rules are enforced by the
// service layer; consent columns are deliberately absent here.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leads SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone,
        message = :message, course_id = :course_id, campus_id = :campus_id, campaign_id = :campaign_id,
        score = :score, prefer_email = :prefer_email, prefer_phone = :prefer_phone, prefer_whatsapp = :prefer_whatsapp,
        marketing_consent = :marketing_consent, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

// UpdateStatus sets the lead status.
func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	const query = "UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return nil
}

// Assign sets the staff member responsible for the lead.
func (r *LeadRepository) Assign(ctx context.Context, id string, userID *string) error {
	const query = "UPDATE leads SET assigned_to = $1, updated_at = $2 WHERE id = $3"
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("assign lead: %w", err)
	}
	return nil
}
