package service

import (
	"strings"

	"github.com/campus-hq/ops-api/internal/models"
)

// ScoringRule is a named weighted predicate over lead fields. Rules are
// additive: every matching rule contributes its points, there is no first
// match wins behaviour.
type ScoringRule struct {
	Name      string
	Points    int
	Condition func(lead *models.Lead) bool
}

// ScoreResult captures the outcome of evaluating a rule set against a lead.
type ScoreResult struct {
	Score        int      `json:"score"`
	MatchedRules []string `json:"matched_rules"`
}

// DefaultQualificationThreshold gates conversion eligibility.
const DefaultQualificationThreshold = 60

// DefaultScoringRules is the stock rule set: required contact fields are
// worth up to 40 points, optional high-value fields up to 30, contact
// preferences up to 10, and explicit marketing consent 20.
var DefaultScoringRules = []ScoringRule{
	{Name: "has_first_name", Points: 10, Condition: func(l *models.Lead) bool { return strings.TrimSpace(l.FirstName) != "" }},
	{Name: "has_last_name", Points: 10, Condition: func(l *models.Lead) bool { return strings.TrimSpace(l.LastName) != "" }},
	{Name: "has_email", Points: 10, Condition: func(l *models.Lead) bool { return strings.TrimSpace(l.Email) != "" }},
	{Name: "has_phone", Points: 10, Condition: func(l *models.Lead) bool { return strings.TrimSpace(l.Phone) != "" }},
	{Name: "has_course_interest", Points: 10, Condition: func(l *models.Lead) bool { return l.CourseID != nil && *l.CourseID != "" }},
	{Name: "has_message", Points: 10, Condition: func(l *models.Lead) bool { return l.Message != nil && strings.TrimSpace(*l.Message) != "" }},
	{Name: "has_campus_preference", Points: 10, Condition: func(l *models.Lead) bool { return l.CampusID != nil && *l.CampusID != "" }},
	{Name: "prefers_email", Points: 4, Condition: func(l *models.Lead) bool { return l.PreferEmail }},
	{Name: "prefers_phone", Points: 3, Condition: func(l *models.Lead) bool { return l.PreferPhone }},
	{Name: "prefers_whatsapp", Points: 3, Condition: func(l *models.Lead) bool { return l.PreferWhatsApp }},
	{Name: "marketing_consent", Points: 20, Condition: func(l *models.Lead) bool { return l.MarketingConsent }},
}

// LeadScoringService computes lead quality scores from weighted rules.
type LeadScoringService struct{}

// NewLeadScoringService constructs the scoring service.
func NewLeadScoringService() *LeadScoringService {
	return &LeadScoringService{}
}

// Score evaluates each rule in insertion order and sums the points of the
// matching ones, clamped to [0, 100].
func (s *LeadScoringService) Score(lead *models.Lead, rules []ScoringRule) ScoreResult {
	result := ScoreResult{MatchedRules: []string{}}
	for _, rule := range rules {
		if rule.Condition == nil || !rule.Condition(lead) {
			continue
		}
		result.Score += rule.Points
		result.MatchedRules = append(result.MatchedRules, rule.Name)
	}
	if result.Score > 100 {
		result.Score = 100
	}
	if result.Score < 0 {
		result.Score = 0
	}
	return result
}

// QuickScore evaluates the default rule set.
func (s *LeadScoringService) QuickScore(lead *models.Lead) ScoreResult {
	return s.Score(lead, DefaultScoringRules)
}

// IsQualified reports whether a score result clears the threshold. A
// non-positive threshold falls back to the default.
func (s *LeadScoringService) IsQualified(result ScoreResult, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultQualificationThreshold
	}
	return result.Score >= threshold
}
