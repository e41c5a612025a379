package repository

import (
	"context"
	"time"

	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
)

// Publishing wraps a Store and publishes every persisted LeadEvent on the
// bus once the write that carried it has committed.
type Publishing struct {
	Store
	bus events.Bus
}

func NewPublishing(store Store, bus events.Bus) *Publishing {
	return &Publishing{Store: store, bus: bus}
}

func (p *Publishing) CreateUnlessDuplicate(ctx context.Context, lead domain.Lead, created domain.LeadEvent, since time.Time) (domain.Lead, bool, error) {
	stored, isNew, err := p.Store.CreateUnlessDuplicate(ctx, lead, created, since)
	if err == nil && isNew {
		p.publish(ctx, created)
	}
	return stored, isNew, err
}

func (p *Publishing) ApplyStatusChange(ctx context.Context, change StatusChange) (domain.Lead, error) {
	lead, err := p.Store.ApplyStatusChange(ctx, change)
	if err == nil {
		p.publish(ctx, change.Events...)
	}
	return lead, err
}

func (p *Publishing) AppendEvents(ctx context.Context, evts ...domain.LeadEvent) error {
	err := p.Store.AppendEvents(ctx, evts...)
	if err == nil {
		p.publish(ctx, evts...)
	}
	return err
}

func (p *Publishing) publish(ctx context.Context, evts ...domain.LeadEvent) {
	for _, e := range evts {
		p.bus.Publish(ctx, events.LeadEventRecorded{BaseEvent: events.At(e.OccurredAt), Event: e})
	}
}
