package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
)

var createdAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newLead(email, slug string, at time.Time) domain.Lead {
	return domain.Lead{
		ID:         uuid.New(),
		Contact:    domain.Contact{Email: email},
		Exhibition: domain.Exhibition{Slug: slug},
		Status:     domain.StatusNew,
		Version:    1,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func createdEvent(l domain.Lead) domain.LeadEvent {
	return domain.NewEvent(l.ID, domain.EventLeadCreated, l.CreatedAt)
}

func TestMemoryCreateUnlessDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	first := newLead("a@x.test", "ifa", createdAt)

	if _, created, err := store.CreateUnlessDuplicate(ctx, first, createdEvent(first), createdAt.Add(-10*time.Minute)); err != nil || !created {
		t.Fatalf("expected insert, got created=%v err=%v", created, err)
	}

	dup := newLead("A@X.test", "ifa", createdAt.Add(time.Minute))
	got, created, err := store.CreateUnlessDuplicate(ctx, dup, createdEvent(dup), createdAt.Add(-9*time.Minute))
	if err != nil || created || got.ID != first.ID {
		t.Fatalf("expected existing lead %s, got %s created=%v", first.ID, got.ID, created)
	}

	other := newLead("a@x.test", "gulfood", createdAt.Add(time.Minute))
	if _, created, _ := store.CreateUnlessDuplicate(ctx, other, createdEvent(other), createdAt); !created {
		t.Fatalf("different exhibition must create a new lead")
	}
}

func TestMemoryApplyStatusChangeChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	lead := newLead("a@x.test", "ifa", createdAt)
	_, _, _ = store.CreateUnlessDuplicate(ctx, lead, createdEvent(lead), createdAt)

	change := StatusChange{LeadID: lead.ID, ExpectedVersion: 1, From: domain.StatusNew, To: domain.StatusMatched, At: createdAt}
	updated, err := store.ApplyStatusChange(ctx, change)
	if err != nil || updated.Version != 2 || updated.Status != domain.StatusMatched {
		t.Fatalf("unexpected result %+v (%v)", updated, err)
	}

	if _, err := store.ApplyStatusChange(ctx, change); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if _, err := store.ApplyStatusChange(ctx, StatusChange{LeadID: uuid.New()}); !errors.Is(err, domain.ErrLeadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryConcurrentWritersOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	lead := newLead("a@x.test", "ifa", createdAt)
	_, _, _ = store.CreateUnlessDuplicate(ctx, lead, createdEvent(lead), createdAt)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyStatusChange(ctx, StatusChange{
				LeadID: lead.ID, ExpectedVersion: 1, From: domain.StatusNew, To: domain.StatusMatched, At: createdAt,
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestMemoryMatchesUpsertByBuilder(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	lead := newLead("a@x.test", "ifa", createdAt)
	_, _, _ = store.CreateUnlessDuplicate(ctx, lead, createdEvent(lead), createdAt)

	matches := []domain.MatchResult{{LeadID: lead.ID, BuilderID: "b1", Score: 80, Rank: 1}}
	_, err := store.ApplyStatusChange(ctx, StatusChange{LeadID: lead.ID, ExpectedVersion: 1, From: domain.StatusNew, To: domain.StatusMatched, Matches: matches, At: createdAt})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	matches[0].Score = 85
	_, err = store.ApplyStatusChange(ctx, StatusChange{LeadID: lead.ID, ExpectedVersion: 2, From: domain.StatusMatched, To: domain.StatusLost, Matches: matches, At: createdAt})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := store.ListMatches(ctx, lead.ID)
	if len(got) != 1 || got[0].Score != 85 {
		t.Fatalf("expected a single upserted match, got %+v", got)
	}
}

func TestPublishingEmitsCommittedEvents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewInMemoryBus(logger.Discard())
	var seen atomic.Int32
	bus.Subscribe(events.LeadEventRecorded{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		seen.Add(1)
		return nil
	}))

	store := NewPublishing(NewMemory(), bus)
	lead := newLead("a@x.test", "ifa", createdAt)
	_, _, _ = store.CreateUnlessDuplicate(ctx, lead, createdEvent(lead), createdAt)

	change := domain.NewEvent(lead.ID, domain.EventStatusChanged, createdAt)
	_, _ = store.ApplyStatusChange(ctx, StatusChange{LeadID: lead.ID, ExpectedVersion: 1, From: domain.StatusNew, To: domain.StatusMatched, Events: []domain.LeadEvent{change}, At: createdAt})
	// Stale write: nothing committed, nothing published.
	_, _ = store.ApplyStatusChange(ctx, StatusChange{LeadID: lead.ID, ExpectedVersion: 1, From: domain.StatusNew, To: domain.StatusMatched, Events: []domain.LeadEvent{change}, At: createdAt})
	bus.Wait()

	if seen.Load() != 2 {
		t.Fatalf("expected 2 published events, got %d", seen.Load())
	}
	evts, _ := store.ListEvents(ctx, lead.ID)
	if len(evts) != 2 || evts[1].Seq <= evts[0].Seq {
		t.Fatalf("expected ordered events, got %+v", evts)
	}
}
