// Package service runs the lead pipeline: intake, matching, dispatch and the
// admin and builder actions that move a lead through its lifecycle.
package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/intake"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Ranker scores builders for a lead.
type Ranker interface {
	Rank(lead domain.Lead, snapshot []builders.Builder, asOf time.Time) ([]domain.MatchResult, error)
}

// Dispatcher creates and cancels notification jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead domain.Lead, matches []domain.MatchResult) ([]outbox.Job, error)
	CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) ([]outbox.Job, error)
	Confirm(ctx context.Context, jobID uuid.UUID, deliveryID string) (outbox.Job, error)
	ListJobs(ctx context.Context, leadID uuid.UUID) ([]outbox.Job, error)
}

// MatchObserver receives matching timings.
type MatchObserver interface {
	MatchRun(elapsed time.Duration, matched int)
}

type noopMatchObserver struct{}

func (noopMatchObserver) MatchRun(time.Duration, int) {}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      repository.Store
	Intake     *intake.Intake
	Directory  builders.Directory
	Ranker     Ranker
	Tracker    *lifecycle.Tracker
	Dispatcher Dispatcher
	Bus        events.Bus
	Observer   MatchObserver
	Log        *logger.Logger
	Now        func() time.Time
}

type Service struct {
	store      repository.Store
	intake     *intake.Intake
	directory  builders.Directory
	ranker     Ranker
	tracker    *lifecycle.Tracker
	dispatcher Dispatcher
	bus        events.Bus
	observer   MatchObserver
	log        *logger.Logger
	now        func() time.Time
	group      singleflight.Group
}

func New(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		intake:     d.Intake,
		directory:  d.Directory,
		ranker:     d.Ranker,
		tracker:    d.Tracker,
		dispatcher: d.Dispatcher,
		bus:        d.Bus,
		observer:   d.Observer,
		log:        d.Log,
		now:        d.Now,
	}
	if s.observer == nil {
		s.observer = noopMatchObserver{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SetDispatcher injects the notification dispatcher, which itself depends on
// the lead store and tracker.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// SubmitResult is returned to the public form.
type SubmitResult struct {
	LeadID           uuid.UUID     `json:"leadId"`
	Status           domain.Status `json:"status"`
	Duplicate        bool          `json:"duplicate"`
	BuildersNotified int           `json:"buildersNotified"`
}

// Outcome of one matching pass.
type Outcome struct {
	LeadID           uuid.UUID
	Status           domain.Status
	Matches          int
	BuildersNotified int
}

var errNotMatchable = errors.New("lead no longer accepts matching")

// Submit ingests a submission and, for a new lead, runs matching and
// dispatch. A duplicate returns the existing lead untouched.
func (s *Service) Submit(ctx context.Context, raw intake.RawSubmission) (SubmitResult, error) {
	lead, created, err := s.intake.Ingest(ctx, raw)
	if err != nil {
		return SubmitResult{}, translate(err)
	}
	if !created {
		return SubmitResult{LeadID: lead.ID, Status: lead.Status, Duplicate: true}, nil
	}

	out, err := s.Process(ctx, lead.ID)
	if err != nil {
		// The lead is stored; matching can be retried with a rematch.
		s.log.Error("lead pipeline failed after intake", "leadId", lead.ID, "error", err)
		return SubmitResult{LeadID: lead.ID, Status: lead.Status}, nil
	}
	return SubmitResult{LeadID: lead.ID, Status: out.Status, BuildersNotified: out.BuildersNotified}, nil
}

// Process matches a New or Reopened lead, stores the results with the status
// change and dispatches notifications. Concurrent calls for the same lead
// share one run.
func (s *Service) Process(ctx context.Context, leadID uuid.UUID) (Outcome, error) {
	v, err, _ := s.group.Do(leadID.String(), func() (any, error) {
		return s.process(ctx, leadID)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (s *Service) process(ctx context.Context, leadID uuid.UUID) (Outcome, error) {
	ctx = logger.WithLead(ctx, leadID.String())
	lead, err := s.store.Get(ctx, leadID)
	if err != nil {
		return Outcome{}, translate(err)
	}
	if !lead.Status.AcceptsMatching() {
		return Outcome{LeadID: lead.ID, Status: lead.Status}, nil
	}

	snapshot, err := s.directory.List(ctx)
	if err != nil {
		return Outcome{}, err
	}

	started := time.Now()
	results, err := s.ranker.Rank(lead, snapshot, s.now())
	s.observer.MatchRun(time.Since(started), len(results))
	if err != nil && !errors.Is(err, domain.ErrNoEligibleBuilders) {
		return Outcome{}, err
	}

	target, reason := domain.StatusMatched, "builders matched"
	if len(results) == 0 {
		target, reason = domain.StatusUnmatched, domain.ErrNoEligibleBuilders.Error()
	}

	updated, err := s.tracker.Transition(ctx, lifecycle.Request{
		LeadID: lead.ID,
		To:     target,
		Actor:  domain.ActorMatching,
		Reason: reason,
		Guard: func(l domain.Lead) error {
			if !l.Status.AcceptsMatching() {
				return errNotMatchable
			}
			return nil
		},
		Matches: func(domain.Lead) []domain.MatchResult { return results },
		Events: func(l domain.Lead, at time.Time) []domain.LeadEvent {
			return []domain.LeadEvent{matchCompletedEvent(l, results, at)}
		},
	})
	if errors.Is(err, errNotMatchable) {
		return Outcome{LeadID: updated.ID, Status: updated.Status}, nil
	}
	if err != nil {
		return Outcome{}, translate(err)
	}

	out := Outcome{LeadID: updated.ID, Status: updated.Status, Matches: len(results)}
	if updated.Status != domain.StatusMatched {
		return out, nil
	}
	jobs, err := s.dispatcher.Dispatch(ctx, updated, results)
	out.BuildersNotified = countBuilders(jobs)
	if err != nil {
		return out, err
	}
	// Dispatch moves the lead on when a builder was already reached.
	out.Status = s.currentStatus(ctx, leadID, out.Status)
	return out, nil
}

func (s *Service) currentStatus(ctx context.Context, leadID uuid.UUID, fallback domain.Status) domain.Status {
	lead, err := s.store.Get(ctx, leadID)
	if err != nil {
		return fallback
	}
	return lead.Status
}

func matchCompletedEvent(lead domain.Lead, results []domain.MatchResult, at time.Time) domain.LeadEvent {
	e := domain.NewEvent(lead.ID, domain.EventMatchCompleted, at)
	e.Actor = domain.ActorMatching
	payload := map[string]any{
		"builders":   len(results),
		"continent":  lead.Location.Continent,
		"exhibition": lead.Exhibition.Name,
		"priority":   string(lead.Priority),
	}
	if len(results) > 0 {
		sum := 0.0
		for _, r := range results {
			sum += r.Score
		}
		payload["topScore"] = results[0].Score
		payload["averageScore"] = sum / float64(len(results))
		payload["topBuilder"] = results[0].BuilderID
	}
	e.Payload = payload
	return e
}

func countBuilders(jobs []outbox.Job) int {
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		seen[j.BuilderID] = struct{}{}
	}
	return len(seen)
}

// latestRun keeps the matches from the most recent matching pass. Rows of
// builders that dropped out of a later run stay stored for audit.
func latestRun(matches []domain.MatchResult) []domain.MatchResult {
	var latest time.Time
	for _, m := range matches {
		if m.ComputedAt.After(latest) {
			latest = m.ComputedAt
		}
	}
	out := make([]domain.MatchResult, 0, len(matches))
	for _, m := range matches {
		if m.ComputedAt.Equal(latest) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b domain.MatchResult) int { return a.Rank - b.Rank })
	return out
}
