package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"

	"github.com/google/uuid"
)

type jobKey struct {
	leadID    uuid.UUID
	builderID string
	channel   builders.Channel
}

// Memory is an in-process Store guarded by a single mutex.
type Memory struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]Job
	byKey map[jobKey][]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[uuid.UUID]Job), byKey: make(map[jobKey][]uuid.UUID)}
}

func (m *Memory) CreateUnlessBlocked(_ context.Context, job Job, ttl time.Duration, now time.Time) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobKey{leadID: job.LeadID, builderID: job.BuilderID, channel: job.Channel}
	for _, id := range m.byKey[key] {
		existing := m.jobs[id]
		if existing.Status == StatusSent && !existing.Blocks(now, ttl) {
			existing.Status = StatusExpired
			existing.UpdatedAt = now
			m.jobs[id] = existing
		}
		if existing.Blocks(now, ttl) {
			return existing, false, nil
		}
	}

	m.jobs[job.ID] = job
	m.byKey[key] = append(m.byKey[key], job.ID)
	return job, true, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (m *Memory) ListByLead(_ context.Context, leadID uuid.UUID) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0)
	for _, j := range m.jobs {
		if j.LeadID == leadID {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *Memory) Lease(_ context.Context, id uuid.UUID, now time.Time, lease time.Duration) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if !leasable(job, now) {
		return job, ErrNotLeasable
	}
	return m.leaseLocked(job, now, lease), nil
}

func (m *Memory) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]Job, 0)
	for _, j := range m.jobs {
		if leasable(j, now) {
			due = append(due, j)
		}
	}
	slices.SortFunc(due, func(a, b Job) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i, j := range due {
		due[i] = m.leaseLocked(j, now, lease)
	}
	return due, nil
}

func (m *Memory) Finish(_ context.Context, job Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[job.ID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if current.Status != StatusPending {
		return current, ErrConflict
	}
	job.LockedUntil = nil
	m.jobs[job.ID] = job
	return job, nil
}

func (m *Memory) Confirm(_ context.Context, id uuid.UUID, deliveryID string, now time.Time) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusSent {
		return job, ErrConflict
	}
	job.Status = StatusDelivered
	if deliveryID != "" {
		job.DeliveryID = deliveryID
	}
	job.UpdatedAt = now
	m.jobs[id] = job
	return job, nil
}

func (m *Memory) CancelPending(_ context.Context, leadID uuid.UUID, reason string, now time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancelled := make([]Job, 0)
	for id, j := range m.jobs {
		if j.LeadID != leadID || j.Status != StatusPending || leased(j, now) {
			continue
		}
		j.Status = StatusCancelled
		j.LastError = reason
		j.UpdatedAt = now
		m.jobs[id] = j
		cancelled = append(cancelled, j)
	}
	sortJobs(cancelled)
	return cancelled, nil
}

func (m *Memory) leaseLocked(job Job, now time.Time, lease time.Duration) Job {
	until := now.Add(lease)
	job.LockedUntil = &until
	m.jobs[job.ID] = job
	return job
}

func leased(j Job, now time.Time) bool {
	return j.LockedUntil != nil && j.LockedUntil.After(now)
}

func leasable(j Job, now time.Time) bool {
	return j.Status == StatusPending && !j.ScheduledAt.After(now) && !leased(j, now)
}

func sortJobs(jobs []Job) {
	slices.SortFunc(jobs, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.BuilderID != b.BuilderID {
			if a.BuilderID < b.BuilderID {
				return -1
			}
			return 1
		}
		if a.Channel < b.Channel {
			return -1
		}
		if a.Channel > b.Channel {
			return 1
		}
		return 0
	})
}

var _ Store = (*Memory)(nil)
