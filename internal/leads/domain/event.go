package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies LeadEvents.
type EventType string

const (
	EventLeadCreated           EventType = "lead_created"
	EventStatusChanged         EventType = "status_changed"
	EventMatchCompleted        EventType = "match_completed"
	EventNotificationQueued    EventType = "notification_queued"
	EventNotificationSent      EventType = "notification_sent"
	EventNotificationDelivered EventType = "notification_delivered"
	EventNotificationDeferred  EventType = "notification_deferred"
	EventNotificationRetry     EventType = "notification_retry_scheduled"
	EventNotificationFailed    EventType = "notification_failed"
	EventNotificationCancelled EventType = "notification_cancelled"
	EventBuilderResponded      EventType = "builder_responded"
	EventQuoteSubmitted        EventType = "quote_submitted"
)

// Actors recorded on events.
const (
	ActorSystem     = "system"
	ActorMatching   = "matching"
	ActorDispatcher = "dispatcher"
	ActorArchiver   = "archiver"
)

// LeadEvent is an append-only audit record.
type LeadEvent struct {
	ID         uuid.UUID      `json:"id"`
	Seq        int64          `json:"seq"`
	LeadID     uuid.UUID      `json:"leadId"`
	Type       EventType      `json:"type"`
	FromStatus Status         `json:"fromStatus,omitempty"`
	ToStatus   Status         `json:"toStatus,omitempty"`
	BuilderID  string         `json:"builderId,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	JobID      *uuid.UUID     `json:"jobId,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(leadID uuid.UUID, typ EventType, at time.Time) LeadEvent {
	return LeadEvent{ID: uuid.New(), LeadID: leadID, Type: typ, OccurredAt: at.UTC()}
}

// ReplayStatus folds status_changed events in order into the final status.
// The first status change must leave from New, and every step must follow
// an edge of the lifecycle graph.
func ReplayStatus(events []LeadEvent) (Status, error) {
	current := StatusNew
	for _, e := range events {
		if e.Type != EventStatusChanged {
			continue
		}
		if e.FromStatus != current {
			return current, &TransitionError{From: current, To: e.ToStatus}
		}
		if err := ValidateTransition(e.FromStatus, e.ToStatus); err != nil {
			return current, err
		}
		current = e.ToStatus
	}
	return current, nil
}
