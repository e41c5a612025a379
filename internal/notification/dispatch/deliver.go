package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/internal/notification/ratelimit"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const rateWindow = time.Hour

// Deliver runs one delivery attempt for a due job. A job that is not due or
// is leased elsewhere returns outbox.ErrNotLeasable.
func (d *Dispatcher) Deliver(ctx context.Context, jobID uuid.UUID) (outbox.Job, error) {
	job, err := d.jobs.Lease(ctx, jobID, d.now().UTC(), d.policy.Lease)
	if err != nil {
		return job, err
	}
	return d.attempt(ctx, job)
}

// RunDue claims up to limit due jobs and delivers them concurrently. Jobs
// for the same builder run one after another so the per-builder rate limit
// sees them in schedule order. It returns the number of jobs attempted.
func (d *Dispatcher) RunDue(ctx context.Context, limit int) (int, error) {
	claimed, err := d.jobs.ClaimDue(ctx, d.now().UTC(), limit, d.policy.Lease)
	if err != nil || len(claimed) == 0 {
		return 0, err
	}

	order := make([]string, 0)
	perBuilder := make(map[string][]outbox.Job)
	for _, job := range claimed {
		if _, ok := perBuilder[job.BuilderID]; !ok {
			order = append(order, job.BuilderID)
		}
		perBuilder[job.BuilderID] = append(perBuilder[job.BuilderID], job)
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.policy.Concurrency > 0 {
		g.SetLimit(d.policy.Concurrency)
	}
	for _, builderID := range order {
		jobs := perBuilder[builderID]
		g.Go(func() error {
			for _, job := range jobs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if _, err := d.attempt(gctx, job); err != nil {
					d.log.Error("notification delivery failed", "jobId", job.ID, "builderId", job.BuilderID, "error", err)
				}
			}
			return nil
		})
	}
	return len(claimed), g.Wait()
}

// attempt runs against a job this worker holds the lease for.
func (d *Dispatcher) attempt(ctx context.Context, job outbox.Job) (outbox.Job, error) {
	lead, err := d.leads.Get(ctx, job.LeadID)
	if err != nil {
		return job, fmt.Errorf("load lead for job %s: %w", job.ID, err)
	}
	if lead.Status.IsTerminal() {
		return d.cancelLeased(ctx, job, "lead is "+lead.Status.String())
	}

	now := d.now().UTC()
	member := fmt.Sprintf("%s:%d", job.ID, job.Attempts+1)
	err = d.limiter.Acquire(ctx, now, member, d.rateRules(job.BuilderID)...)
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return d.deferTo(ctx, job, exceeded, now)
	}
	if err != nil {
		return job, fmt.Errorf("acquire rate limit: %w", err)
	}

	match := d.findMatch(ctx, job)
	msg := provider.Message{
		Channel:    job.Channel,
		Recipient:  job.Recipient,
		TemplateID: provider.TemplateNewLead,
		Payload:    d.messagePayload(lead, match),
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.policy.ProviderTimeout)
	receipt, sendErr := d.sender.Send(sendCtx, msg)
	cancel()

	job.Attempts++
	now = d.now().UTC()
	job.UpdatedAt = now

	if sendErr == nil {
		return d.markSent(ctx, job, receipt, now)
	}
	return d.markFailed(ctx, job, sendErr, now)
}

func (d *Dispatcher) markSent(ctx context.Context, job outbox.Job, receipt provider.Receipt, now time.Time) (outbox.Job, error) {
	job.Status = outbox.StatusSent
	job.DeliveryID = receipt.DeliveryID
	job.LastError = ""
	finished, err := d.jobs.Finish(ctx, job)
	if err != nil {
		return job, err
	}
	d.log.NotificationAttempt(job.ID.String(), job.BuilderID, string(job.Channel), job.Attempts, OutcomeSent, nil)
	d.observer.NotificationAttempted(string(job.Channel), OutcomeSent)

	ev := jobEvent(finished, domain.EventNotificationSent, now)
	ev.Payload = map[string]any{"attempt": finished.Attempts, "deliveryId": finished.DeliveryID}
	if err := d.leads.AppendEvents(ctx, ev); err != nil {
		return finished, err
	}

	_, err = d.tracker.Transition(ctx, lifecycle.Request{
		LeadID: job.LeadID,
		To:     domain.StatusNotified,
		Actor:  domain.ActorDispatcher,
		Reason: "notification sent to " + job.BuilderID,
	})
	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		// The lead already moved past Matched.
		return finished, nil
	}
	return finished, err
}

func (d *Dispatcher) markFailed(ctx context.Context, job outbox.Job, sendErr error, now time.Time) (outbox.Job, error) {
	job.LastError = truncate(sendErr.Error(), 500)

	outcome := OutcomeRetry
	switch {
	case provider.IsPermanent(sendErr):
		outcome = OutcomePermanent
		job.Status = outbox.StatusFailed
	case job.Attempts >= d.policy.MaxAttempts:
		outcome = OutcomeExhausted
		job.Status = outbox.StatusFailed
	default:
		job.ScheduledAt = now.Add(d.backoff(job.Attempts))
	}

	finished, err := d.jobs.Finish(ctx, job)
	if err != nil {
		return job, err
	}
	d.log.NotificationAttempt(job.ID.String(), job.BuilderID, string(job.Channel), job.Attempts, outcome, sendErr)
	d.observer.NotificationAttempted(string(job.Channel), outcome)

	var ev domain.LeadEvent
	if outcome == OutcomeRetry {
		ev = jobEvent(finished, domain.EventNotificationRetry, now)
		ev.Payload = map[string]any{"attempt": finished.Attempts, "retryAt": finished.ScheduledAt.Format(time.RFC3339)}
	} else {
		ev = jobEvent(finished, domain.EventNotificationFailed, now)
		ev.Payload = map[string]any{"attempt": finished.Attempts, "permanent": outcome == OutcomePermanent}
	}
	ev.Reason = finished.LastError
	if err := d.leads.AppendEvents(ctx, ev); err != nil {
		return finished, err
	}
	if outcome == OutcomeRetry {
		d.enqueue(ctx, finished.ID, finished.ScheduledAt)
	}
	return finished, nil
}

// deferTo pushes the job to the earliest free rate-limit slot without
// consuming an attempt.
func (d *Dispatcher) deferTo(ctx context.Context, job outbox.Job, exceeded *ratelimit.ExceededError, now time.Time) (outbox.Job, error) {
	scope := "builder"
	if exceeded.Key == ratelimit.GlobalKey() {
		scope = "global"
	}
	job.ScheduledAt = exceeded.RetryAt
	job.UpdatedAt = now
	finished, err := d.jobs.Finish(ctx, job)
	if err != nil {
		return job, err
	}
	d.log.RateLimitDeferred(job.ID.String(), job.BuilderID, scope, exceeded.RetryAt)
	d.observer.NotificationDeferred(scope)

	ev := jobEvent(finished, domain.EventNotificationDeferred, now)
	ev.Payload = map[string]any{"scope": scope, "retryAt": exceeded.RetryAt.Format(time.RFC3339)}
	if err := d.leads.AppendEvents(ctx, ev); err != nil {
		return finished, err
	}
	d.enqueue(ctx, finished.ID, finished.ScheduledAt)
	return finished, nil
}

func (d *Dispatcher) cancelLeased(ctx context.Context, job outbox.Job, reason string) (outbox.Job, error) {
	now := d.now().UTC()
	job.Status = outbox.StatusCancelled
	job.LastError = reason
	job.UpdatedAt = now
	finished, err := d.jobs.Finish(ctx, job)
	if err != nil {
		return job, err
	}
	d.observer.NotificationAttempted(string(job.Channel), OutcomeCancelled)

	ev := jobEvent(finished, domain.EventNotificationCancelled, now)
	ev.Reason = reason
	return finished, d.leads.AppendEvents(ctx, ev)
}

func (d *Dispatcher) rateRules(builderID string) []ratelimit.Rule {
	return []ratelimit.Rule{
		{Key: ratelimit.GlobalKey(), Limit: d.policy.GlobalHourlyLimit, Window: rateWindow},
		{Key: ratelimit.BuilderKey(builderID), Limit: d.policy.BuilderHourlyLimit, Window: rateWindow},
	}
}

// backoff returns base × 2^(attempt−1).
func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return d.policy.BaseBackoff << (attempt - 1)
}

// findMatch returns the latest stored match for the job's builder. A missing
// match only thins the message.
func (d *Dispatcher) findMatch(ctx context.Context, job outbox.Job) *domain.MatchResult {
	matches, err := d.leads.ListMatches(ctx, job.LeadID)
	if err != nil {
		d.log.Warn("failed to load matches for notification", "jobId", job.ID, "error", err)
		return nil
	}
	var found *domain.MatchResult
	for i := range matches {
		if matches[i].BuilderID != job.BuilderID {
			continue
		}
		if found == nil || matches[i].ComputedAt.After(found.ComputedAt) {
			found = &matches[i]
		}
	}
	return found
}

func (d *Dispatcher) messagePayload(lead domain.Lead, match *domain.MatchResult) map[string]any {
	payload := map[string]any{
		"companyName": lead.Contact.CompanyName,
		"exhibition":  lead.Exhibition.Name,
		"city":        lead.Location.City,
		"country":     lead.Location.Country,
		"standSize":   lead.Requirements.StandSize,
		"budget":      lead.Requirements.Budget.Raw,
		"timeline":    lead.Requirements.Timeline,
	}
	if match != nil {
		payload["score"] = match.Score
		payload["reasons"] = match.Reasons
	}
	if base := strings.TrimRight(d.policy.LinkBaseURL, "/"); base != "" {
		payload["link"] = base + "/builder/leads/" + lead.ID.String()
	}
	return payload
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
