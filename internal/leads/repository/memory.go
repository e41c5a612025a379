package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/google/uuid"
)

type matchKey struct {
	leadID    uuid.UUID
	builderID string
}

// Memory is a Store held in process memory. It honors the same version and
// dedup contracts as the Postgres repository.
type Memory struct {
	mu      sync.Mutex
	leads   map[uuid.UUID]domain.Lead
	events  []domain.LeadEvent
	matches map[matchKey]domain.MatchResult
	seq     int64
}

func NewMemory() *Memory {
	return &Memory{
		leads:   make(map[uuid.UUID]domain.Lead),
		matches: make(map[matchKey]domain.MatchResult),
	}
}

func (m *Memory) CreateUnlessDuplicate(_ context.Context, lead domain.Lead, created domain.LeadEvent, since time.Time) (domain.Lead, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *domain.Lead
	for _, l := range m.leads {
		if strings.EqualFold(l.Contact.Email, lead.Contact.Email) &&
			l.Exhibition.Slug == lead.Exhibition.Slug &&
			!l.CreatedAt.Before(since) {
			if existing == nil || l.CreatedAt.After(existing.CreatedAt) {
				found := l
				existing = &found
			}
		}
	}
	if existing != nil {
		return cloneLead(*existing), false, nil
	}

	m.leads[lead.ID] = cloneLead(lead)
	m.appendLocked(created)
	return cloneLead(lead), true, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[id]
	if !ok {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	return cloneLead(l), nil
}

func (m *Memory) ApplyStatusChange(_ context.Context, change StatusChange) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[change.LeadID]
	if !ok {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	if l.Version != change.ExpectedVersion || l.Status != change.From {
		return domain.Lead{}, domain.ErrConcurrencyConflict
	}

	l.Status = change.To
	l.Version++
	l.UpdatedAt = change.At.UTC()
	m.leads[l.ID] = l

	for _, r := range change.Matches {
		m.matches[matchKey{leadID: r.LeadID, builderID: r.BuilderID}] = r
	}
	for _, e := range change.Events {
		m.appendLocked(e)
	}
	return cloneLead(l), nil
}

func (m *Memory) AddAssignedBuilders(_ context.Context, leadID uuid.UUID, builderIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[leadID]
	if !ok {
		return domain.ErrLeadNotFound
	}
	for _, id := range builderIDs {
		if !slices.Contains(l.AssignedBuilders, id) {
			l.AssignedBuilders = append(l.AssignedBuilders, id)
		}
	}
	m.leads[leadID] = l
	return nil
}

func (m *Memory) ListMatches(_ context.Context, leadID uuid.UUID) ([]domain.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.MatchResult, 0)
	for k, r := range m.matches {
		if k.leadID == leadID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.MatchResult) int {
		if a.Rank != b.Rank {
			return a.Rank - b.Rank
		}
		return strings.Compare(a.BuilderID, b.BuilderID)
	})
	return out, nil
}

func (m *Memory) ListByStatusUpdatedBefore(_ context.Context, statuses []domain.Status, before time.Time, limit int) ([]domain.Lead, error) {
	return m.filter(limit, func(l domain.Lead) bool {
		return slices.Contains(statuses, l.Status) && l.UpdatedAt.Before(before)
	}), nil
}

func (m *Memory) ListByStatusInCountries(_ context.Context, status domain.Status, countryCodes []string, limit int) ([]domain.Lead, error) {
	return m.filter(limit, func(l domain.Lead) bool {
		return l.Status == status && slices.Contains(countryCodes, l.Location.CountryCode)
	}), nil
}

func (m *Memory) filter(limit int, keep func(domain.Lead) bool) []domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Lead, 0)
	for _, l := range m.leads {
		if keep(l) {
			out = append(out, cloneLead(l))
		}
	}
	slices.SortFunc(out, func(a, b domain.Lead) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) AppendEvents(_ context.Context, events ...domain.LeadEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		if _, ok := m.leads[e.LeadID]; !ok {
			return domain.ErrLeadNotFound
		}
	}
	for _, e := range events {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) ListEvents(_ context.Context, leadID uuid.UUID) ([]domain.LeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.LeadEvent, 0)
	for _, e := range m.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListEventsSince(_ context.Context, since time.Time) ([]domain.LeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.LeadEvent, 0)
	for _, e := range m.events {
		if !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListEventsAfter(_ context.Context, afterSeq int64, limit int) ([]domain.LeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.LeadEvent, 0)
	for _, e := range m.events {
		if e.Seq <= afterSeq {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) appendLocked(e domain.LeadEvent) {
	m.seq++
	e.Seq = m.seq
	m.events = append(m.events, e)
}

func cloneLead(l domain.Lead) domain.Lead {
	l.AssignedBuilders = slices.Clone(l.AssignedBuilders)
	l.Requirements.Services = slices.Clone(l.Requirements.Services)
	return l
}

var _ Store = (*Memory)(nil)
