// Package events declares the domain events exchanged between the lead
// pipeline, the builder directory and analytics. The bus itself lives in
// platform/events; the aliases below keep callers on one import.
package events

import (
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/platform/events"
	"github.com/syed-c/standzon-sub008/platform/logger"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent = events.NewBaseEvent
	At           = events.At
)

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// LeadEventRecorded relays a LeadEvent once the write that carried it has
// committed. Subscribers see every persisted event at least once and must
// tolerate duplicates by LeadEvent.ID.
type LeadEventRecorded struct {
	BaseEvent
	Event domain.LeadEvent `json:"event"`
}

func (e LeadEventRecorded) EventName() string { return "leads.event.recorded" }

// BuilderVerified fires when the directory flips a builder to verified.
// Countries are the ISO codes of every location the builder serves.
type BuilderVerified struct {
	BaseEvent
	BuilderID string   `json:"builderId"`
	Countries []string `json:"countries"`
}

func (e BuilderVerified) EventName() string { return "builders.builder.verified" }
