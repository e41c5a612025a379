// Package outbox stores notification jobs: one row per (lead, builder,
// channel) delivery with its retry schedule.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusExpired marks a sent job whose receipt never arrived within the job TTL.
	StatusExpired Status = "expired"
)

// Active reports whether the job still occupies its dedup key.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusSent
}

var (
	ErrNotFound = errors.New("notification job not found")
	// ErrNotLeasable means the job is not pending, not yet due, or leased by another worker.
	ErrNotLeasable = errors.New("notification job is not leasable")
	// ErrConflict means the job changed state since it was leased or read.
	ErrConflict = errors.New("notification job changed concurrently")
)

// Job is one notification to one builder over one channel.
type Job struct {
	ID          uuid.UUID        `json:"id"`
	LeadID      uuid.UUID        `json:"leadId"`
	BuilderID   string           `json:"builderId"`
	Channel     builders.Channel `json:"channel"`
	Recipient   string           `json:"recipient"`
	Status      Status           `json:"status"`
	Attempts    int              `json:"attempts"`
	ScheduledAt time.Time        `json:"scheduledAt"`
	LockedUntil *time.Time       `json:"lockedUntil,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	DeliveryID  string           `json:"deliveryId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Blocks reports whether j prevents a new job on the same key at now.
// Pending jobs always block; sent and delivered jobs block until ttl has
// passed since their last update.
func (j Job) Blocks(now time.Time, ttl time.Duration) bool {
	switch j.Status {
	case StatusPending:
		return true
	case StatusSent, StatusDelivered:
		return !j.UpdatedAt.Before(now.Add(-ttl))
	default:
		return false
	}
}

// Store persists jobs. Implementations must make CreateUnlessBlocked atomic
// per dedup key.
type Store interface {
	// CreateUnlessBlocked inserts job unless a blocking job exists for its
	// key, in which case the blocking job is returned with created=false.
	// Sent jobs past ttl are moved to expired first.
	CreateUnlessBlocked(ctx context.Context, job Job, ttl time.Duration, now time.Time) (Job, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]Job, error)
	// Lease takes a due, unleased pending job for one delivery attempt.
	Lease(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (Job, error)
	// ClaimDue leases up to limit due pending jobs, oldest first.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error)
	// Finish writes the outcome of a leased attempt and releases the lease.
	// It fails with ErrConflict if the job is no longer pending.
	Finish(ctx context.Context, job Job) (Job, error)
	// Confirm moves a sent job to delivered.
	Confirm(ctx context.Context, id uuid.UUID, deliveryID string, now time.Time) (Job, error)
	// CancelPending cancels the lead's pending jobs that are not leased.
	CancelPending(ctx context.Context, leadID uuid.UUID, reason string, now time.Time) ([]Job, error)
}
