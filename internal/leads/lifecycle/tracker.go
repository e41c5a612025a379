// Package lifecycle applies lead status transitions with optimistic version
// checks and conflict retries.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
)

const DefaultMaxConflictRetries = 5

// Store is the slice of the lead repository the tracker needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ApplyStatusChange(ctx context.Context, change repository.StatusChange) (domain.Lead, error)
	ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.LeadEvent, error)
}

// Observer receives transition outcomes, typically for metrics.
type Observer interface {
	TransitionApplied(from, to domain.Status)
	ConflictRetried()
}

type noopObserver struct{}

func (noopObserver) TransitionApplied(domain.Status, domain.Status) {}
func (noopObserver) ConflictRetried()                               {}

// Request describes one desired transition.
type Request struct {
	LeadID  uuid.UUID
	To      domain.Status
	Actor   string
	Reason  string
	Payload map[string]any
	// Guard runs against each fresh read before the write; an error aborts
	// without retrying.
	Guard func(domain.Lead) error
	// Matches and Events are written atomically with the status change.
	Matches func(domain.Lead) []domain.MatchResult
	Events  func(domain.Lead, time.Time) []domain.LeadEvent
}

// Tracker is the lead state machine.
type Tracker struct {
	store      Store
	maxRetries int
	now        func() time.Time
	log        *logger.Logger
	observer   Observer
}

type Option func(*Tracker)

func WithMaxConflictRetries(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		if o != nil {
			t.observer = o
		}
	}
}

func New(store Store, log *logger.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = logger.Discard()
	}
	t := &Tracker{
		store:      store,
		maxRetries: DefaultMaxConflictRetries,
		now:        time.Now,
		log:        log,
		observer:   noopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transition moves the lead to req.To. A lead already in req.To is returned
// unchanged. Version conflicts are retried against fresh state up to the
// configured bound and then returned wrapping domain.ErrConcurrencyConflict.
func (t *Tracker) Transition(ctx context.Context, req Request) (domain.Lead, error) {
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		lead, err := t.store.Get(ctx, req.LeadID)
		if err != nil {
			return domain.Lead{}, err
		}
		if lead.Status == req.To {
			return lead, nil
		}
		if req.Guard != nil {
			if err := req.Guard(lead); err != nil {
				return lead, err
			}
		}
		if err := domain.ValidateTransition(lead.Status, req.To); err != nil {
			return lead, err
		}

		at := t.now().UTC()
		change := repository.StatusChange{
			LeadID:          lead.ID,
			ExpectedVersion: lead.Version,
			From:            lead.Status,
			To:              req.To,
			At:              at,
		}
		if req.Matches != nil {
			change.Matches = req.Matches(lead)
		}
		if req.Events != nil {
			change.Events = append(change.Events, req.Events(lead, at)...)
		}
		change.Events = append(change.Events, t.statusEvent(lead, req, at))

		updated, err := t.store.ApplyStatusChange(ctx, change)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			t.observer.ConflictRetried()
			t.log.Debug("lead version conflict, retrying", "leadId", lead.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return lead, err
		}

		t.observer.TransitionApplied(change.From, change.To)
		t.log.WithContext(ctx).LeadTransition(lead.ID.String(), string(change.From), string(change.To), updated.Version, req.Actor)
		return updated, nil
	}
	return domain.Lead{}, fmt.Errorf("transition lead %s to %s after %d retries: %w",
		req.LeadID, req.To, t.maxRetries, domain.ErrConcurrencyConflict)
}

func (t *Tracker) statusEvent(lead domain.Lead, req Request, at time.Time) domain.LeadEvent {
	e := domain.NewEvent(lead.ID, domain.EventStatusChanged, at)
	e.FromStatus = lead.Status
	e.ToStatus = req.To
	e.Actor = req.Actor
	e.Reason = req.Reason
	e.Payload = req.Payload
	return e
}

// Replay rebuilds a status from status_changed events.
func Replay(events []domain.LeadEvent) (domain.Status, error) {
	return domain.ReplayStatus(events)
}

// Verify replays a lead's event log and reports whether it agrees with the
// stored status.
func (t *Tracker) Verify(ctx context.Context, leadID uuid.UUID) (domain.Status, bool, error) {
	lead, err := t.store.Get(ctx, leadID)
	if err != nil {
		return "", false, err
	}
	evts, err := t.store.ListEvents(ctx, leadID)
	if err != nil {
		return "", false, err
	}
	replayed, err := Replay(evts)
	if err != nil {
		return replayed, false, err
	}
	return replayed, replayed == lead.Status, nil
}
