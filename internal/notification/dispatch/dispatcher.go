// Package dispatch turns match results into notification jobs and drives
// each job through delivery, retry and cancellation.
package dispatch

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/internal/notification/ratelimit"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the slice of the lead repository the dispatcher reads and
// appends to.
type LeadStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListMatches(ctx context.Context, leadID uuid.UUID) ([]domain.MatchResult, error)
	AddAssignedBuilders(ctx context.Context, leadID uuid.UUID, builderIDs []string) error
	AppendEvents(ctx context.Context, events ...domain.LeadEvent) error
}

// Transitioner moves leads through the lifecycle.
type Transitioner interface {
	Transition(ctx context.Context, req lifecycle.Request) (domain.Lead, error)
}

// Enqueuer schedules a delivery attempt for a job at runAt. The outbox
// stays the source of truth; a lost task is picked up by RunDue.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, jobID uuid.UUID, runAt time.Time) error
}

// Observer receives delivery outcomes, typically for metrics.
type Observer interface {
	NotificationAttempted(channel, outcome string)
	NotificationDeferred(scope string)
}

// Delivery outcomes reported to the Observer and the log.
const (
	OutcomeSent      = "sent"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomePermanent = "permanent"
	OutcomeCancelled = "cancelled"
	OutcomeDeferred  = "deferred"
)

type noopObserver struct{}

func (noopObserver) NotificationAttempted(string, string) {}
func (noopObserver) NotificationDeferred(string)          {}

// Policy holds delivery limits and timings.
type Policy struct {
	MaxAttempts        int
	BaseBackoff        time.Duration
	ProviderTimeout    time.Duration
	JobTTL             time.Duration
	Lease              time.Duration
	GlobalHourlyLimit  int
	BuilderHourlyLimit int
	Concurrency        int
	LinkBaseURL        string
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        3,
		BaseBackoff:        30 * time.Second,
		ProviderTimeout:    10 * time.Second,
		JobTTL:             7 * 24 * time.Hour,
		Lease:              2 * time.Minute,
		GlobalHourlyLimit:  1000,
		BuilderHourlyLimit: 10,
		Concurrency:        8,
	}
}

// PolicyFromConfig overlays configured values on DefaultPolicy.
func PolicyFromConfig(cfg config.DispatchConfig) Policy {
	p := DefaultPolicy()
	if v := cfg.GetNotifyMaxAttempts(); v > 0 {
		p.MaxAttempts = v
	}
	if v := cfg.GetNotifyBaseBackoff(); v > 0 {
		p.BaseBackoff = v
	}
	if v := cfg.GetNotifyProviderTimeout(); v > 0 {
		p.ProviderTimeout = v
	}
	if v := cfg.GetNotifyJobTTL(); v > 0 {
		p.JobTTL = v
	}
	if v := cfg.GetNotifyGlobalHourlyLimit(); v > 0 {
		p.GlobalHourlyLimit = v
	}
	if v := cfg.GetNotifyBuilderHourlyLimit(); v > 0 {
		p.BuilderHourlyLimit = v
	}
	p.LinkBaseURL = cfg.GetAppBaseURL()
	return p
}

// Dispatcher owns notification jobs from creation to a final state.
type Dispatcher struct {
	jobs      outbox.Store
	leads     LeadStore
	directory builders.Reader
	limiter   ratelimit.Limiter
	sender    provider.Sender
	tracker   Transitioner
	enqueuer  Enqueuer
	observer  Observer
	policy    Policy
	now       func() time.Time
	log       *logger.Logger
}

type Option func(*Dispatcher)

func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithEnqueuer(e Enqueuer) Option {
	return func(d *Dispatcher) { d.enqueuer = e }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

func New(
	jobs outbox.Store,
	leads LeadStore,
	directory builders.Reader,
	limiter ratelimit.Limiter,
	sender provider.Sender,
	tracker Transitioner,
	log *logger.Logger,
	opts ...Option,
) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	d := &Dispatcher{
		jobs:      jobs,
		leads:     leads,
		directory: directory,
		limiter:   limiter,
		sender:    sender,
		tracker:   tracker,
		observer:  noopObserver{},
		policy:    DefaultPolicy(),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch creates one pending job per (builder, opted-in channel) for the
// given matches. Keys that already hold a blocking job are skipped, so
// repeated calls for the same lead create nothing new. It returns only the
// jobs created by this call.
func (d *Dispatcher) Dispatch(ctx context.Context, lead domain.Lead, matches []domain.MatchResult) ([]outbox.Job, error) {
	if lead.Status.IsTerminal() || len(matches) == 0 {
		return nil, nil
	}

	now := d.now().UTC()
	created := make([]outbox.Job, 0, len(matches))
	assigned := make([]string, 0, len(matches))
	var reached []string
	var events []domain.LeadEvent

	for _, m := range matches {
		b, err := d.directory.Get(ctx, m.BuilderID)
		if errors.Is(err, builders.ErrNotFound) {
			d.log.Warn("matched builder missing from directory", "leadId", lead.ID, "builderId", m.BuilderID)
			continue
		}
		if err != nil {
			return created, err
		}

		builderQueued := false
		for _, ch := range b.Channels {
			recipient := b.Recipient(ch)
			if recipient == "" {
				continue
			}
			job := outbox.Job{
				ID:          uuid.New(),
				LeadID:      lead.ID,
				BuilderID:   b.ID,
				Channel:     ch,
				Recipient:   recipient,
				Status:      outbox.StatusPending,
				ScheduledAt: now,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			stored, ok, err := d.jobs.CreateUnlessBlocked(ctx, job, d.policy.JobTTL, now)
			if err != nil {
				return created, err
			}
			if !ok {
				if stored.Status == outbox.StatusSent || stored.Status == outbox.StatusDelivered {
					reached = append(reached, b.ID)
				}
				continue
			}
			created = append(created, stored)
			builderQueued = true

			ev := jobEvent(stored, domain.EventNotificationQueued, now)
			ev.Payload = map[string]any{"score": m.Score, "rank": m.Rank}
			events = append(events, ev)
		}
		if builderQueued {
			assigned = append(assigned, b.ID)
		}
	}

	if len(created) > 0 {
		if err := d.leads.AddAssignedBuilders(ctx, lead.ID, assigned); err != nil {
			return created, err
		}
		if err := d.leads.AppendEvents(ctx, events...); err != nil {
			return created, err
		}
		for _, job := range created {
			d.enqueue(ctx, job.ID, job.ScheduledAt)
		}
	}
	if len(reached) > 0 && lead.Status == domain.StatusMatched {
		if err := d.markReached(ctx, lead.ID, reached); err != nil {
			return created, err
		}
	}
	return created, nil
}

// markReached moves a Matched lead to Notified when dedup skipped builders
// whose earlier notification for this lead is still sent or delivered.
func (d *Dispatcher) markReached(ctx context.Context, leadID uuid.UUID, builderIDs []string) error {
	slices.Sort(builderIDs)
	builderIDs = slices.Compact(builderIDs)
	if err := d.leads.AddAssignedBuilders(ctx, leadID, builderIDs); err != nil {
		return err
	}
	_, err := d.tracker.Transition(ctx, lifecycle.Request{
		LeadID: leadID,
		To:     domain.StatusNotified,
		Actor:  domain.ActorDispatcher,
		Reason: "already notified: " + strings.Join(builderIDs, ", "),
	})
	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return nil
	}
	return err
}

// Confirm records a provider delivery receipt for a sent job. Confirming an
// already delivered job is a no-op.
func (d *Dispatcher) Confirm(ctx context.Context, jobID uuid.UUID, deliveryID string) (outbox.Job, error) {
	now := d.now().UTC()
	job, err := d.jobs.Confirm(ctx, jobID, deliveryID, now)
	if errors.Is(err, outbox.ErrConflict) && job.Status == outbox.StatusDelivered {
		return job, nil
	}
	if err != nil {
		return job, err
	}
	if err := d.leads.AppendEvents(ctx, jobEvent(job, domain.EventNotificationDelivered, now)); err != nil {
		return job, err
	}
	return job, nil
}

// CancelForLead cancels the lead's pending jobs. Jobs leased by an
// in-flight attempt are left alone; the attempt sees the terminal lead and
// cancels itself.
func (d *Dispatcher) CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) ([]outbox.Job, error) {
	now := d.now().UTC()
	cancelled, err := d.jobs.CancelPending(ctx, leadID, reason, now)
	if err != nil || len(cancelled) == 0 {
		return cancelled, err
	}

	events := make([]domain.LeadEvent, 0, len(cancelled))
	for _, job := range cancelled {
		ev := jobEvent(job, domain.EventNotificationCancelled, now)
		ev.Reason = reason
		events = append(events, ev)
		d.observer.NotificationAttempted(string(job.Channel), OutcomeCancelled)
	}
	return cancelled, d.leads.AppendEvents(ctx, events...)
}

// ListJobs returns the lead's jobs in creation order.
func (d *Dispatcher) ListJobs(ctx context.Context, leadID uuid.UUID) ([]outbox.Job, error) {
	return d.jobs.ListByLead(ctx, leadID)
}

func (d *Dispatcher) enqueue(ctx context.Context, jobID uuid.UUID, runAt time.Time) {
	if d.enqueuer == nil {
		return
	}
	if err := d.enqueuer.EnqueueDelivery(ctx, jobID, runAt); err != nil {
		d.log.Warn("failed to enqueue notification delivery", "jobId", jobID, "error", err)
	}
}

func jobEvent(job outbox.Job, typ domain.EventType, at time.Time) domain.LeadEvent {
	ev := domain.NewEvent(job.LeadID, typ, at)
	id := job.ID
	ev.JobID = &id
	ev.BuilderID = job.BuilderID
	ev.Channel = string(job.Channel)
	ev.Actor = domain.ActorDispatcher
	return ev
}
