package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	"github.com/campus-hq/ops-api/pkg/jobs"
)

// eventSink is the emission surface the engines depend on. Engines produce
// facts; executing side effects (notifications, CRM pushes) is the
// dispatcher's problem.
type eventSink interface {
	Emit(ctx context.Context, events ...models.DomainEvent)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// domainCounters is the slice of the metrics service the dispatcher feeds:
// one increment per counted event type.
type domainCounters interface {
	CoursePublished()
	LeadCaptured()
	LeadConverted()
	EnrollmentConfirmed()
	EnrollmentWaitlisted()
	SeatRejected()
}

// EventService dispatches domain events onto a background queue and records
// an audit row per event. External consumers subscribe downstream; the
// engines never block on delivery.
type EventService struct {
	queue   *jobs.Queue
	audits  auditWriter
	metrics domainCounters
	logger  *zap.Logger
}

// NewEventService constructs the dispatcher. Start must be called before
// events flow; Emit before Start drops with a warning rather than blocking
// an engine.
func NewEventService(audits auditWriter, metrics domainCounters, cfg jobs.QueueConfig, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EventService{audits: audits, metrics: metrics, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("domain-events", svc.handle, cfg)
	return svc
}

// Start launches the dispatcher workers.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatcher workers.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Emit enqueues events for asynchronous handling.
func (s *EventService) Emit(ctx context.Context, events ...models.DomainEvent) {
	for _, event := range events {
		job := jobs.Job{ID: event.EntityID, Type: event.Type, Payload: event}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("dropping domain event",
				zap.String("type", event.Type),
				zap.String("entity_id", event.EntityID),
				zap.Error(err))
		}
	}
}

// RecordPublication persists a publication transition synchronously so the
// audit trail never lags the state change.
func (s *EventService) RecordPublication(ctx context.Context, event models.PublicationEvent) error {
	if s.audits == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	actor := event.Actor
	return s.audits.Create(ctx, &models.AuditLog{
		Actor:      &actor,
		Action:     "publication.transition",
		Resource:   "courses",
		ResourceID: &event.CourseID,
		NewValues:  payload,
	})
}

func (s *EventService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.DomainEvent)
	if !ok {
		s.logger.Warn("unexpected event payload", zap.String("type", job.Type))
		return nil
	}

	s.logger.Info("domain event",
		zap.String("type", event.Type),
		zap.String("entity_id", event.EntityID),
		zap.String("actor", event.Actor))

	if s.metrics != nil {
		switch event.Type {
		case models.EventCoursePublished:
			s.metrics.CoursePublished()
		case models.EventLeadCaptured:
			s.metrics.LeadCaptured()
		case models.EventLeadConverted:
			s.metrics.LeadConverted()
		case models.EventEnrollmentConfirmed:
			s.metrics.EnrollmentConfirmed()
		case models.EventEnrollmentWaitlist:
			s.metrics.EnrollmentWaitlisted()
		case models.EventSeatRejected:
			s.metrics.SeatRejected()
		}
	}

	if s.audits == nil {
		return nil
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	var actor *string
	if event.Actor != "" {
		actor = &event.Actor
	}
	entityID := event.EntityID
	return s.audits.Create(ctx, &models.AuditLog{
		Actor:      actor,
		Action:     event.Type,
		Resource:   "domain_events",
		ResourceID: &entityID,
		NewValues:  payload,
	})
}
