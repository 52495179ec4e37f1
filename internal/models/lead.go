package models

import "time"

// LeadStatus represents the lifecycle of a prospective-student inquiry.
type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadQualified   LeadStatus = "qualified"
	LeadUnqualified LeadStatus = "unqualified"
	LeadConverted   LeadStatus = "converted"
	LeadLost        LeadStatus = "lost"
)

// Valid returns true when the status is a supported value.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadUnqualified, LeadConverted, LeadLost:
		return true
	default:
		return false
	}
}

// leadTransitions is the authoritative lead transition table. Unqualified,
// converted and lost are terminal.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadNew:         {LeadContacted, LeadLost},
	LeadContacted:   {LeadQualified, LeadUnqualified, LeadLost},
	LeadQualified:   {LeadConverted, LeadLost},
	LeadUnqualified: {},
	LeadConverted:   {},
	LeadLost:        {},
}

// IsValidLeadTransition reports whether from may move to to in a single step.
func IsValidLeadTransition(from, to LeadStatus) bool {
	for _, next := range leadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextLeadStatuses returns the states reachable in one transition.
func NextLeadStatuses(current LeadStatus) []LeadStatus {
	next := leadTransitions[current]
	out := make([]LeadStatus, len(next))
	copy(out, next)
	return out
}

// ContactPreferences captures how a lead wants to be reached.
type ContactPreferences struct {
	Email    bool `json:"email"`
	Phone    bool `json:"phone"`
	WhatsApp bool `json:"whatsapp"`
}

// Lead is a prospective-student inquiry. Score is derived by the scoring
// engine and never set externally. Consent fields are immutable once
// captured.
type Lead struct {
	ID               string     `db:"id" json:"id"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	Message          *string    `db:"message" json:"message,omitempty"`
	CourseID         *string    `db:"course_id" json:"course_id,omitempty"`
	CampusID         *string    `db:"campus_id" json:"campus_id,omitempty"`
	CampaignID       *string    `db:"campaign_id" json:"campaign_id,omitempty"`
	Status           LeadStatus `db:"status" json:"status"`
	Score            int        `db:"score" json:"score"`
	PreferEmail      bool       `db:"prefer_email" json:"prefer_email"`
	PreferPhone      bool       `db:"prefer_phone" json:"prefer_phone"`
	PreferWhatsApp   bool       `db:"prefer_whatsapp" json:"prefer_whatsapp"`
	MarketingConsent bool       `db:"marketing_consent" json:"marketing_consent"`
	GDPRConsent      bool       `db:"gdpr_consent" json:"gdpr_consent"`
	ConsentTimestamp *time.Time `db:"consent_timestamp" json:"consent_timestamp,omitempty"`
	ConsentIPAddress *string    `db:"consent_ip_address" json:"consent_ip_address,omitempty"`
	AssignedTo       *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Preferences assembles the contact preference flags.
func (l *Lead) Preferences() ContactPreferences {
	return ContactPreferences{Email: l.PreferEmail, Phone: l.PreferPhone, WhatsApp: l.PreferWhatsApp}
}

// LeadFilter provides filters for listing leads.
type LeadFilter struct {
	Status     LeadStatus
	CourseID   string
	CampusID   string
	CampaignID string
	AssignedTo string
	MinScore   *int
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
