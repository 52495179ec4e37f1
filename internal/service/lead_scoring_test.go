package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campus-hq/ops-api/internal/models"
)

func fullLead() *models.Lead {
	message := "quiero informacion del curso"
	courseID := "course-1"
	campusID := "campus-1"
	return &models.Lead{
		FirstName:        "Ana",
		LastName:         "Garcia",
		Email:            "ana@example.com",
		Phone:            "+34600000000",
		Message:          &message,
		CourseID:         &courseID,
		CampusID:         &campusID,
		PreferEmail:      true,
		PreferPhone:      true,
		PreferWhatsApp:   true,
		MarketingConsent: true,
	}
}

func TestQuickScoreFullLeadMaxesOut(t *testing.T) {
	svc := NewLeadScoringService()
	result := svc.QuickScore(fullLead())
	assert.Equal(t, 100, result.Score)
	assert.Len(t, result.MatchedRules, len(DefaultScoringRules))
}

func TestQuickScoreRequiredFieldsOnly(t *testing.T) {
	svc := NewLeadScoringService()
	lead := &models.Lead{
		FirstName: "Ana",
		LastName:  "Garcia",
		Email:     "ana@example.com",
		Phone:     "+34600000000",
	}
	result := svc.QuickScore(lead)
	assert.Equal(t, 40, result.Score)
	assert.Equal(t, []string{"has_first_name", "has_last_name", "has_email", "has_phone"}, result.MatchedRules)
}

func TestQuickScoreEmptyLead(t *testing.T) {
	svc := NewLeadScoringService()
	result := svc.QuickScore(&models.Lead{})
	assert.Equal(t, 0, result.Score)
	assert.Empty(t, result.MatchedRules)
}

func TestScoreIgnoresWhitespaceOnlyFields(t *testing.T) {
	svc := NewLeadScoringService()
	result := svc.QuickScore(&models.Lead{FirstName: "   ", Email: "a@b.c"})
	assert.Equal(t, 10, result.Score)
	assert.Equal(t, []string{"has_email"}, result.MatchedRules)
}

func TestScoreClampsAboveHundred(t *testing.T) {
	svc := NewLeadScoringService()
	rules := []ScoringRule{
		{Name: "a", Points: 80, Condition: func(l *models.Lead) bool { return true }},
		{Name: "b", Points: 80, Condition: func(l *models.Lead) bool { return true }},
	}
	result := svc.Score(&models.Lead{}, rules)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, []string{"a", "b"}, result.MatchedRules)
}

func TestScoreCustomRuleOrderPreserved(t *testing.T) {
	svc := NewLeadScoringService()
	rules := []ScoringRule{
		{Name: "last", Points: 1, Condition: func(l *models.Lead) bool { return true }},
		{Name: "first", Points: 1, Condition: func(l *models.Lead) bool { return true }},
		{Name: "never", Points: 50, Condition: func(l *models.Lead) bool { return false }},
	}
	result := svc.Score(&models.Lead{}, rules)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, []string{"last", "first"}, result.MatchedRules)
}

func TestIsQualified(t *testing.T) {
	svc := NewLeadScoringService()
	assert.True(t, svc.IsQualified(ScoreResult{Score: 60}, 60))
	assert.False(t, svc.IsQualified(ScoreResult{Score: 59}, 60))
	// Non-positive thresholds fall back to the default.
	assert.True(t, svc.IsQualified(ScoreResult{Score: DefaultQualificationThreshold}, 0))
	assert.False(t, svc.IsQualified(ScoreResult{Score: DefaultQualificationThreshold - 1}, 0))
}
