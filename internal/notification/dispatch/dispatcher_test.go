package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/internal/notification/ratelimit"

	"github.com/google/uuid"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedSender returns queued errors per channel, then succeeds.
type scriptedSender struct {
	mu      sync.Mutex
	script  map[builders.Channel][]error
	always  map[builders.Channel]error
	sent    []provider.Message
	counter int
}

func (s *scriptedSender) Send(_ context.Context, m provider.Message) (provider.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	if err := s.always[m.Channel]; err != nil {
		return provider.Receipt{}, err
	}
	if queue := s.script[m.Channel]; len(queue) > 0 {
		s.script[m.Channel] = queue[1:]
		if queue[0] != nil {
			return provider.Receipt{}, queue[0]
		}
	}
	s.counter++
	return provider.Receipt{DeliveryID: "receipt-" + string(m.Channel)}, nil
}

type harness struct {
	dispatcher *Dispatcher
	jobs       *outbox.Memory
	leads      *repository.Memory
	tracker    *lifecycle.Tracker
	clock      *testClock
	sender     *scriptedSender
}

func newHarness(t *testing.T, policy Policy, dir ...builders.Builder) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	leads := repository.NewMemory()
	tracker := lifecycle.New(leads, nil, lifecycle.WithClock(clock.Now))
	sender := &scriptedSender{script: map[builders.Channel][]error{}, always: map[builders.Channel]error{}}
	jobs := outbox.NewMemory()
	d := New(jobs, leads, builders.NewMemoryDirectory(dir...), ratelimit.NewMemory(), sender, tracker, nil,
		WithPolicy(policy), WithClock(clock.Now))
	return &harness{dispatcher: d, jobs: jobs, leads: leads, tracker: tracker, clock: clock, sender: sender}
}

func testBuilder(id string, channels ...builders.Channel) builders.Builder {
	return builders.Builder{
		ID:       id,
		Name:     id,
		Email:    id + "@builders.test",
		Phone:    "+4930123456",
		Channels: channels,
	}
}

// matchedLead stores a lead and moves it to Matched with one match per builder.
func (h *harness) matchedLead(t *testing.T, builderIDs ...string) (domain.Lead, []domain.MatchResult) {
	t.Helper()
	ctx := context.Background()
	now := h.clock.Now()
	lead := domain.Lead{
		ID:         uuid.New(),
		Contact:    domain.Contact{CompanyName: "Acme", Email: uuid.NewString() + "@acme.test"},
		Exhibition: domain.Exhibition{Name: "IFA", Slug: "ifa"},
		Status:     domain.StatusNew,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, _, err := h.leads.CreateUnlessDuplicate(ctx, lead, domain.NewEvent(lead.ID, domain.EventLeadCreated, now), now); err != nil {
		t.Fatalf("create lead: %v", err)
	}

	matches := make([]domain.MatchResult, 0, len(builderIDs))
	for i, id := range builderIDs {
		matches = append(matches, domain.MatchResult{
			LeadID: lead.ID, BuilderID: id, Score: 90 - float64(i), Rank: i + 1,
			Reasons: []string{"serves Germany"}, ComputedAt: now,
		})
	}
	matched, err := h.tracker.Transition(ctx, lifecycle.Request{
		LeadID:  lead.ID,
		To:      domain.StatusMatched,
		Matches: func(domain.Lead) []domain.MatchResult { return matches },
	})
	if err != nil {
		t.Fatalf("match lead: %v", err)
	}
	return matched, matches
}

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseBackoff = 30 * time.Second
	return p
}

func TestDispatchCreatesOneJobPerChannelOnce(t *testing.T) {
	h := newHarness(t, fastPolicy(),
		testBuilder("berlin-tech", builders.ChannelEmail, builders.ChannelSMS),
		testBuilder("paris-tech", builders.ChannelEmail))
	lead, matches := h.matchedLead(t, "berlin-tech", "paris-tech")
	ctx := context.Background()

	created, err := h.dispatcher.Dispatch(ctx, lead, matches)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(created))
	}

	again, err := h.dispatcher.Dispatch(ctx, lead, matches)
	if err != nil || len(again) != 0 {
		t.Fatalf("second dispatch must create nothing, got %d (%v)", len(again), err)
	}

	stored, _ := h.leads.Get(ctx, lead.ID)
	if !stored.IsAssigned("berlin-tech") || !stored.IsAssigned("paris-tech") {
		t.Fatalf("expected both builders assigned, got %v", stored.AssignedBuilders)
	}
}

func TestConcurrentDispatchPersistsOneJob(t *testing.T) {
	h := newHarness(t, fastPolicy(), testBuilder("berlin-tech", builders.ChannelEmail))
	lead, matches := h.matchedLead(t, "berlin-tech")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.dispatcher.Dispatch(context.Background(), lead, matches); err != nil {
				t.Errorf("dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	jobs, _ := h.jobs.ListByLead(context.Background(), lead.ID)
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one job, got %d", len(jobs))
	}
}

func TestPermanentFailuresLeaveLeadMatched(t *testing.T) {
	h := newHarness(t, fastPolicy(), testBuilder("berlin-tech", builders.ChannelEmail, builders.ChannelSMS))
	h.sender.always[builders.ChannelEmail] = provider.Permanent(errors.New("mailbox does not exist"))
	h.sender.always[builders.ChannelSMS] = provider.Permanent(errors.New("number not reachable"))
	lead, matches := h.matchedLead(t, "berlin-tech")
	ctx := context.Background()

	if _, err := h.dispatcher.Dispatch(ctx, lead, matches); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	n, err := h.dispatcher.RunDue(ctx, 10)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 attempts, got %d (%v)", n, err)
	}

	jobs, _ := h.jobs.ListByLead(ctx, lead.ID)
	for _, j := range jobs {
		if j.Status != outbox.StatusFailed || j.Attempts != 1 {
			t.Fatalf("expected failed after one attempt, got %s/%d", j.Status, j.Attempts)
		}
	}
	stored, _ := h.leads.Get(ctx, lead.ID)
	if stored.Status != domain.StatusMatched {
		t.Fatalf("lead must stay matched, got %s", stored.Status)
	}

	events, _ := h.leads.ListEvents(ctx, lead.ID)
	failed := 0
	for _, e := range events {
		if e.Type == domain.EventNotificationFailed && e.Payload["permanent"] == true {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 permanent failure events, got %d", failed)
	}
}

func TestTransientFailureBacksOffThenSends(t *testing.T) {
	h := newHarness(t, fastPolicy(), testBuilder("berlin-tech", builders.ChannelEmail))
	h.sender.script[builders.ChannelEmail] = []error{
		provider.Transient(errors.New("connection reset")),
		provider.Transient(errors.New("connection reset")),
	}
	lead, matches := h.matchedLead(t, "berlin-tech")
	ctx := context.Background()

	created, _ := h.dispatcher.Dispatch(ctx, lead, matches)
	id := created[0].ID
	start := h.clock.Now()

	job, err := h.dispatcher.Deliver(ctx, id)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if job.Status != outbox.StatusPending || job.Attempts != 1 || !job.ScheduledAt.Equal(start.Add(30*time.Second)) {
		t.Fatalf("expected retry in 30s, got %+v", job)
	}
	if _, err := h.dispatcher.Deliver(ctx, id); !errors.Is(err, outbox.ErrNotLeasable) {
		t.Fatalf("job must not be due yet, got %v", err)
	}

	h.clock.Advance(30 * time.Second)
	job, _ = h.dispatcher.Deliver(ctx, id)
	if job.Attempts != 2 || !job.ScheduledAt.Equal(h.clock.Now().Add(time.Minute)) {
		t.Fatalf("expected second backoff of 1m, got %+v", job)
	}

	h.clock.Advance(time.Minute)
	job, err = h.dispatcher.Deliver(ctx, id)
	if err != nil || job.Status != outbox.StatusSent || job.DeliveryID != "receipt-email" {
		t.Fatalf("expected sent on third attempt, got %+v (%v)", job, err)
	}
	stored, _ := h.leads.Get(ctx, lead.ID)
	if stored.Status != domain.StatusNotified {
		t.Fatalf("expected lead notified, got %s", stored.Status)
	}
	if score := h.sender.sent[len(h.sender.sent)-1].Payload["score"]; score != 90.0 {
		t.Fatalf("expected match score in payload, got %v", score)
	}
}

func TestTransientFailuresExhaustAttempts(t *testing.T) {
	h := newHarness(t, fastPolicy(), testBuilder("berlin-tech", builders.ChannelEmail))
	h.sender.always[builders.ChannelEmail] = provider.Transient(errors.New("timeout"))
	lead, matches := h.matchedLead(t, "berlin-tech")
	ctx := context.Background()

	created, _ := h.dispatcher.Dispatch(ctx, lead, matches)
	var job outbox.Job
	for i := 0; i < 3; i++ {
		var err error
		job, err = h.dispatcher.Deliver(ctx, created[0].ID)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		h.clock.Advance(10 * time.Minute)
	}
	if job.Status != outbox.StatusFailed || job.Attempts != 3 {
		t.Fatalf("expected failed after 3 attempts, got %s/%d", job.Status, job.Attempts)
	}
}

func TestRateLimitDefersWithoutConsumingAttempt(t *testing.T) {
	policy := fastPolicy()
	policy.BuilderHourlyLimit = 1
	h := newHarness(t, policy, testBuilder("berlin-tech", builders.ChannelEmail, builders.ChannelSMS))
	lead, matches := h.matchedLead(t, "berlin-tech")
	ctx := context.Background()
	start := h.clock.Now()

	if _, err := h.dispatcher.Dispatch(ctx, lead, matches); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := h.dispatcher.RunDue(ctx, 10); err != nil {
		t.Fatalf("run due: %v", err)
	}

	jobs, _ := h.jobs.ListByLead(ctx, lead.ID)
	var sent, deferred int
	for _, j := range jobs {
		switch {
		case j.Status == outbox.StatusSent:
			sent++
		case j.Status == outbox.StatusPending && j.Attempts == 0 && j.ScheduledAt.Equal(start.Add(time.Hour)):
			deferred++
		}
	}
	if sent != 1 || deferred != 1 {
		t.Fatalf("expected one sent and one deferred job, got %+v", jobs)
	}

	h.clock.Advance(time.Hour)
	if n, _ := h.dispatcher.RunDue(ctx, 10); n != 1 {
		t.Fatalf("expected deferred job to run after the window, got %d", n)
	}
	if h.sender.counter != 2 {
		t.Fatalf("expected both messages sent, got %d", h.sender.counter)
	}
}

func TestTerminalLeadCancelsJobs(t *testing.T) {
	h := newHarness(t, fastPolicy(),
		testBuilder("berlin-tech", builders.ChannelEmail),
		testBuilder("paris-tech", builders.ChannelEmail))
	lead, matches := h.matchedLead(t, "berlin-tech", "paris-tech")
	ctx := context.Background()

	created, _ := h.dispatcher.Dispatch(ctx, lead, matches)
	if _, err := h.tracker.Transition(ctx, lifecycle.Request{LeadID: lead.ID, To: domain.StatusLost}); err != nil {
		t.Fatalf("lose lead: %v", err)
	}

	job, err := h.dispatcher.Deliver(ctx, created[0].ID)
	if err != nil || job.Status != outbox.StatusCancelled {
		t.Fatalf("expected in-flight attempt to cancel, got %s (%v)", job.Status, err)
	}

	cancelled, err := h.dispatcher.CancelForLead(ctx, lead.ID, "lead closed")
	if err != nil || len(cancelled) != 1 || cancelled[0].ID != created[1].ID {
		t.Fatalf("expected remaining job cancelled, got %+v (%v)", cancelled, err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("nothing should be sent for a lost lead")
	}
}

func TestConfirmMarksDelivered(t *testing.T) {
	h := newHarness(t, fastPolicy(), testBuilder("berlin-tech", builders.ChannelEmail))
	lead, matches := h.matchedLead(t, "berlin-tech")
	ctx := context.Background()

	created, _ := h.dispatcher.Dispatch(ctx, lead, matches)
	if _, err := h.dispatcher.Confirm(ctx, created[0].ID, "x"); !errors.Is(err, outbox.ErrConflict) {
		t.Fatalf("pending job cannot be confirmed, got %v", err)
	}
	if _, err := h.dispatcher.Deliver(ctx, created[0].ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	for i := 0; i < 2; i++ {
		job, err := h.dispatcher.Confirm(ctx, created[0].ID, "receipt-email")
		if err != nil || job.Status != outbox.StatusDelivered {
			t.Fatalf("confirm %d: got %s (%v)", i+1, job.Status, err)
		}
	}
}
