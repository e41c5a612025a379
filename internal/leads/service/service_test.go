package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/intake"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/matching"
	"github.com/syed-c/standzon-sub008/internal/notification/dispatch"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/internal/notification/ratelimit"
	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/validator"

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

type okSender struct {
	mu   sync.Mutex
	sent int
}

func (s *okSender) Send(context.Context, provider.Message) (provider.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return provider.Receipt{DeliveryID: uuid.NewString()}, nil
}

type fixture struct {
	svc        *Service
	leads      *repository.Memory
	jobs       *outbox.Memory
	directory  *builders.MemoryDirectory
	dispatcher *dispatch.Dispatcher
	clock      *testClock
	tax        *geo.Taxonomy
}

func newFixture(t *testing.T, dir ...builders.Builder) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 4, 13, 8, 0, 0, 0, time.UTC)}
	tax := geo.Default()
	leads := repository.NewMemory()
	jobs := outbox.NewMemory()
	directory := builders.NewMemoryDirectory(dir...)
	tracker := lifecycle.New(leads, nil, lifecycle.WithClock(clock.Now))
	engine, err := matching.New(matching.DefaultWeights(), 40, 20)
	if err != nil {
		t.Fatalf("matching engine: %v", err)
	}
	d := dispatch.New(jobs, leads, directory, ratelimit.NewMemory(), &okSender{}, tracker, nil,
		dispatch.WithClock(clock.Now))

	svc := New(Deps{
		Store:      leads,
		Intake:     intake.New(leads, validator.New(), tax, intake.WithClock(clock.Now)),
		Directory:  directory,
		Ranker:     engine,
		Tracker:    tracker,
		Dispatcher: d,
		Now:        clock.Now,
	})
	return &fixture{svc: svc, leads: leads, jobs: jobs, directory: directory, dispatcher: d, clock: clock, tax: tax}
}

// berlinBuilder clears the score floor for Berlin technology leads and falls
// below it for leads outside Europe.
func (f *fixture) berlinBuilder() builders.Builder {
	return builders.Builder{
		ID:                     "berlin-stands",
		Name:                   "Berlin Stands",
		Email:                  "team@berlin-stands.test",
		Phone:                  "+4930123456",
		Channels:               []builders.Channel{builders.ChannelEmail, builders.ChannelSMS},
		Locations:              []geo.Location{f.tax.Resolve("Berlin", "Germany")},
		Services:               []string{"Technology"},
		Verified:               true,
		Rating:                 5,
		ResponseTimePercentile: 10,
		ConversionRate:         0.2,
		LastActiveAt:           f.clock.Now().Add(-time.Hour),
	}
}

func (f *fixture) tokyoBuilder() builders.Builder {
	return builders.Builder{
		ID:                     "tokyo-booths",
		Name:                   "Tokyo Booths",
		Email:                  "hello@tokyo-booths.test",
		Channels:               []builders.Channel{builders.ChannelEmail},
		Locations:              []geo.Location{f.tax.Resolve("Tokyo", "Japan")},
		Services:               []string{"Food"},
		Rating:                 4.5,
		ResponseTimePercentile: 20,
		ConversionRate:         0.3,
		LastActiveAt:           f.clock.Now().Add(-time.Hour),
	}
}

func submission(email, city, country, industry string) intake.RawSubmission {
	return intake.RawSubmission{
		CompanyName:  "Acme Robotics",
		ContactName:  "Jana Weber",
		ContactEmail: email,
		Location:     intake.RawLocation{City: city, Country: country},
		Exhibition:   "IFA Berlin",
		Industry:     industry,
		StandSize:    48,
		Budget:       "€20,000 - €30,000",
		Timeline:     "June",
	}
}

func countEvents(t *testing.T, f *fixture, leadID uuid.UUID, typ domain.EventType) int {
	t.Helper()
	evts, err := f.leads.ListEvents(context.Background(), leadID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	n := 0
	for _, e := range evts {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (f *fixture) deliverDue(t *testing.T) {
	t.Helper()
	if _, err := f.dispatcher.RunDue(context.Background(), 50); err != nil {
		t.Fatalf("run due: %v", err)
	}
}

func (f *fixture) status(t *testing.T, id uuid.UUID) domain.Status {
	t.Helper()
	lead, err := f.svc.GetLead(context.Background(), id)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	return lead.Status
}

func TestSubmitMatchesAndNotifies(t *testing.T) {
	f := newFixture(t)
	if err := f.directory.Upsert(context.Background(), f.berlinBuilder()); err != nil {
		t.Fatalf("seed builder: %v", err)
	}

	res, err := f.svc.Submit(context.Background(), submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusMatched || res.BuildersNotified != 1 || res.Duplicate {
		t.Fatalf("unexpected submit result %+v", res)
	}

	f.deliverDue(t)
	if got := f.status(t, res.LeadID); got != domain.StatusNotified {
		t.Fatalf("expected Notified after delivery, got %s", got)
	}
	if n := countEvents(t, f, res.LeadID, domain.EventNotificationSent); n != 2 {
		t.Fatalf("expected email and sms sent, got %d", n)
	}
	if _, ok, err := f.svc.VerifyHistory(context.Background(), res.LeadID); err != nil || !ok {
		t.Fatalf("expected event log to replay to the stored status, ok=%v err=%v", ok, err)
	}
}

func TestSubmitReturnsDuplicateWithinWindow(t *testing.T) {
	f := newFixture(t)
	_ = f.directory.Upsert(context.Background(), f.berlinBuilder())

	first, err := f.svc.Submit(context.Background(), submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.svc.Submit(context.Background(), submission("JANA@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !second.Duplicate || second.LeadID != first.LeadID || second.BuildersNotified != 0 {
		t.Fatalf("expected duplicate of %s, got %+v", first.LeadID, second)
	}
	if n := countEvents(t, f, first.LeadID, domain.EventMatchCompleted); n != 1 {
		t.Fatalf("duplicate submission must not rematch, got %d match runs", n)
	}
}

func TestSubmitRejectsInvalidSubmission(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), intake.RawSubmission{CompanyName: "Acme"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentProcessRunsMatchingOnce(t *testing.T) {
	f := newFixture(t)
	_ = f.directory.Upsert(context.Background(), f.berlinBuilder())
	lead, _, err := f.svc.intake.Ingest(context.Background(), submission("ops@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Process(context.Background(), lead.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("process: %v", err)
	}

	if n := countEvents(t, f, lead.ID, domain.EventMatchCompleted); n != 1 {
		t.Fatalf("expected one match run, got %d", n)
	}
	jobs, _ := f.svc.ListJobs(context.Background(), lead.ID)
	if len(jobs) != 2 {
		t.Fatalf("expected one job per channel, got %d", len(jobs))
	}
}

func TestReopenedLeadSkipsBuildersAlreadyNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.directory.Upsert(ctx, f.berlinBuilder())

	res, err := f.svc.Submit(ctx, submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.deliverDue(t)

	closed, err := f.svc.Manage(ctx, res.LeadID, ActionClose, "ops")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.StatusClosed {
		t.Fatalf("expected Closed, got %s", closed.Status)
	}

	f.clock.Advance(24 * time.Hour)
	reopened, err := f.svc.Manage(ctx, res.LeadID, ActionReopen, "ops")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.StatusNotified {
		t.Fatalf("expected the reopened lead to count earlier notifications, got %s", reopened.Status)
	}
	if reopened.BuildersNotified != 0 {
		t.Fatalf("builders notified within the job TTL must not be notified again, got %d", reopened.BuildersNotified)
	}
	jobs, _ := f.svc.ListJobs(ctx, res.LeadID)
	if len(jobs) != 2 {
		t.Fatalf("expected the original two jobs only, got %d", len(jobs))
	}

	f.deliverDue(t)
	lead, err := f.svc.RecordResponse(ctx, res.LeadID, "berlin-stands")
	if err != nil || lead.Status != domain.StatusContacted {
		t.Fatalf("expected the earlier builder's response to be accepted, got %s err=%v", lead.Status, err)
	}
}

func TestCloseWalksThroughLostAndCancelsPendingJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.directory.Upsert(ctx, f.berlinBuilder())

	res, err := f.svc.Submit(ctx, submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Manage(ctx, res.LeadID, ActionClose, "ops"); err != nil {
		t.Fatalf("close: %v", err)
	}

	evts, _ := f.svc.ListEvents(ctx, res.LeadID)
	var path []domain.Status
	for _, e := range evts {
		if e.Type == domain.EventStatusChanged {
			path = append(path, e.ToStatus)
		}
	}
	want := []domain.Status{domain.StatusMatched, domain.StatusLost, domain.StatusClosed}
	if len(path) != len(want) {
		t.Fatalf("unexpected status path %v", path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("unexpected status path %v", path)
		}
	}

	jobs, _ := f.svc.ListJobs(ctx, res.LeadID)
	for _, j := range jobs {
		if j.Status != outbox.StatusCancelled {
			t.Fatalf("expected pending jobs cancelled, got %s", j.Status)
		}
	}

	if _, err := f.svc.Manage(ctx, res.LeadID, ActionRematch, "ops"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict rematching a closed lead, got %v", err)
	}
}

func TestCloseUnprocessedLeadSkipsUnmatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, _, err := f.svc.intake.Ingest(ctx, submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := f.svc.Manage(ctx, lead.ID, ActionClose, "ops"); err != nil {
		t.Fatalf("close: %v", err)
	}

	evts, _ := f.svc.ListEvents(ctx, lead.ID)
	var path []domain.Status
	for _, e := range evts {
		if e.Type == domain.EventStatusChanged {
			path = append(path, e.ToStatus)
		}
	}
	if len(path) != 2 || path[0] != domain.StatusLost || path[1] != domain.StatusClosed {
		t.Fatalf("expected New -> Lost -> Closed, got %v", path)
	}
}

func TestResponseQuoteAndWin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.directory.Upsert(ctx, f.berlinBuilder())

	res, err := f.svc.Submit(ctx, submission("jana@acme.test", "Berlin", "Germany", "Technology"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.deliverDue(t)

	if _, err := f.svc.RecordOutcome(ctx, res.LeadID, OutcomeWon, 1000, "signed", "ops"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict winning an unquoted lead, got %v", err)
	}
	if _, err := f.svc.RecordResponse(ctx, res.LeadID, "someone-else"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for an unassigned builder, got %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	lead, err := f.svc.RecordResponse(ctx, res.LeadID, "berlin-stands")
	if err != nil || lead.Status != domain.StatusContacted {
		t.Fatalf("expected Contacted, got %s err=%v", lead.Status, err)
	}
	evts, _ := f.svc.ListEvents(ctx, res.LeadID)
	var seconds any
	for _, e := range evts {
		if e.Type == domain.EventBuilderResponded {
			seconds = e.Payload["responseSeconds"]
		}
	}
	if seconds != 7200.0 {
		t.Fatalf("expected a two hour response time, got %v", seconds)
	}

	if lead, err = f.svc.RecordQuote(ctx, res.LeadID, "berlin-stands", 24500, "eur"); err != nil || lead.Status != domain.StatusQuoted {
		t.Fatalf("expected Quoted, got %s err=%v", lead.Status, err)
	}
	if lead, err = f.svc.RecordOutcome(ctx, res.LeadID, OutcomeWon, 24500, "contract signed", "ops"); err != nil || lead.Status != domain.StatusWon {
		t.Fatalf("expected Won, got %s err=%v", lead.Status, err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	archived, err := f.svc.ArchiveTerminal(ctx, 30*24*time.Hour)
	if err != nil || archived != 1 {
		t.Fatalf("expected one archived lead, got %d err=%v", archived, err)
	}
	if got := f.status(t, res.LeadID); got != domain.StatusClosed {
		t.Fatalf("expected Closed after archiving, got %s", got)
	}
}

func TestVerifiedBuilderRematchesUnmatchedLeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.directory.Upsert(ctx, f.berlinBuilder())

	res, err := f.svc.Submit(ctx, submission("buyer@kyoto-foods.test", "Tokyo", "Japan", "Food"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusUnmatched {
		t.Fatalf("expected Unmatched without a builder in Asia, got %s", res.Status)
	}

	bus := events.NewInMemoryBus(nil)
	f.svc.bus = bus
	f.svc.RegisterHandlers(bus)

	_ = f.directory.Upsert(ctx, f.tokyoBuilder())
	if _, err := f.svc.VerifyBuilder(ctx, "tokyo-booths", true); err != nil {
		t.Fatalf("verify builder: %v", err)
	}
	bus.Wait()

	if got := f.status(t, res.LeadID); got != domain.StatusMatched {
		t.Fatalf("expected regional rematch to match the lead, got %s", got)
	}
	matches, _ := f.svc.ListMatches(ctx, res.LeadID)
	if len(matches) != 1 || matches[0].BuilderID != "tokyo-booths" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	summary, err := f.svc.RematchRegion(ctx, "tokyo-booths")
	if err != nil || summary.Reopened != 0 {
		t.Fatalf("expected nothing left to reopen, got %+v err=%v", summary, err)
	}
}

func TestQueriesTranslateMissingLead(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetLead(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.ConfirmDelivery(context.Background(), uuid.New(), "receipt"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
	if _, err := f.svc.RematchRegion(context.Background(), "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown builder, got %v", err)
	}
}
