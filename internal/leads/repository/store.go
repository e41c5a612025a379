// Package repository persists leads, their event log and match results.
package repository

import (
	"context"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/google/uuid"
)

// StatusChange is one versioned lead write. The write succeeds only when the
// stored lead still has ExpectedVersion and From; otherwise the store returns
// domain.ErrConcurrencyConflict and nothing is written.
type StatusChange struct {
	LeadID          uuid.UUID
	ExpectedVersion int64
	From            domain.Status
	To              domain.Status
	// Matches are upserted by (lead, builder) when non-nil.
	Matches []domain.MatchResult
	// Events are appended in order within the same write.
	Events []domain.LeadEvent
	At     time.Time
}

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListMatches(ctx context.Context, leadID uuid.UUID) ([]domain.MatchResult, error)
	ListByStatusUpdatedBefore(ctx context.Context, statuses []domain.Status, before time.Time, limit int) ([]domain.Lead, error)
	ListByStatusInCountries(ctx context.Context, status domain.Status, countryCodes []string, limit int) ([]domain.Lead, error)
}

// LeadWriter provides versioned writes.
type LeadWriter interface {
	CreateUnlessDuplicate(ctx context.Context, lead domain.Lead, created domain.LeadEvent, since time.Time) (domain.Lead, bool, error)
	ApplyStatusChange(ctx context.Context, change StatusChange) (domain.Lead, error)
	// AddAssignedBuilders unions ids into the lead's assigned set. Set union
	// commutes, so it does not bump the version.
	AddAssignedBuilders(ctx context.Context, leadID uuid.UUID, builderIDs []string) error
}

// EventLog is the append-only lead event log.
type EventLog interface {
	AppendEvents(ctx context.Context, events ...domain.LeadEvent) error
	ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.LeadEvent, error)
	ListEventsSince(ctx context.Context, since time.Time) ([]domain.LeadEvent, error)
	// ListEventsAfter pages the log in insertion order, starting after seq.
	ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.LeadEvent, error)
}

// Store is the full lead persistence boundary.
type Store interface {
	LeadReader
	LeadWriter
	EventLog
}
