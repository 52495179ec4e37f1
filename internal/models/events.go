package models

import "time"

// Domain event types emitted by the engines. External side effects
// (notifications, CRM sync) are executed by a dispatcher consuming these,
// never by the engines themselves.
const (
	EventCoursePublished     = "catalog.course.published"
	EventCourseArchived      = "catalog.course.archived"
	EventRunStatusChanged    = "catalog.run.status_changed"
	EventRunCompleted        = "catalog.run.completed"
	EventLeadCaptured        = "leads.lead.captured"
	EventLeadStatusChanged   = "leads.lead.status_changed"
	EventLeadConverted       = "leads.lead.converted"
	EventEnrollmentCreated   = "operations.enrollment.created"
	EventEnrollmentConfirmed = "operations.enrollment.confirmed"
	EventEnrollmentWaitlist  = "operations.enrollment.waitlisted"
	EventEnrollmentReleased  = "operations.enrollment.seat_released"
	EventSeatRejected        = "operations.enrollment.seat_rejected"
	EventWaitlistPromotable  = "operations.enrollment.waitlist_promotable"
)

// DomainEvent is an engine-emitted fact. Payload carries ids only, no
// contact data.
type DomainEvent struct {
	Type       string            `json:"type"`
	EntityID   string            `json:"entity_id"`
	Actor      string            `json:"actor,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewDomainEvent builds an event stamped with the current UTC time.
func NewDomainEvent(eventType, entityID, actor string, payload map[string]string) DomainEvent {
	return DomainEvent{
		Type:       eventType,
		EntityID:   entityID,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
