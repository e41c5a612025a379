// Package analytics keeps rolling quote-matching metrics built from the lead
// event stream. It never writes lead, job or match state.
package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
)

const (
	DefaultWindow = 24 * time.Hour

	bucketSize    = time.Hour
	maxRecent     = 20
	unknownRegion = "Unknown"
)

// EventSource replays persisted events for Rebuild.
type EventSource interface {
	ListEventsSince(ctx context.Context, since time.Time) ([]domain.LeadEvent, error)
}

type regionCounts struct {
	leads    int
	matched  int
	scoreSum float64
}

// bucket holds the per-event counters of one hour. Lead counts live in
// Aggregator.leads instead, since a lead can be matched more than once.
type bucket struct {
	start           time.Time
	responses       int
	responseSum     time.Duration
	sent            int
	failedPermanent int
	failedExhausted int
	won             int
}

func newBucket(start time.Time) *bucket {
	return &bucket{start: start}
}

type matchOutcome int

const (
	outcomePending matchOutcome = iota
	outcomeMatched
	outcomeUnmatched
)

// leadStat is one lead seen in the window. Its latest match run decides
// whether it counts as matched or unmatched.
type leadStat struct {
	seenAt    time.Time
	region    string
	outcome   matchOutcome
	outcomeAt time.Time
	topScore  float64
}

func (l *leadStat) touch(e domain.LeadEvent) {
	if e.OccurredAt.After(l.seenAt) {
		l.seenAt = e.OccurredAt
	}
	if region := stringFrom(e.Payload, "continent"); region != "" && region != "Not specified" {
		l.region = region
	}
}

func regionName(name string) string {
	if name == "" {
		return unknownRegion
	}
	return name
}

// Aggregator folds LeadEvents into hourly buckets over a rolling window.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[int64]*bucket
	leads   map[uuid.UUID]*leadStat
	recent  []Activity
	seen    map[uuid.UUID]time.Time
	cursor  int64
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(window time.Duration, log *logger.Logger, opts ...Option) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = logger.Discard()
	}
	a := &Aggregator{
		window:  window,
		buckets: make(map[int64]*bucket),
		leads:   make(map[uuid.UUID]*leadStat),
		seen:    make(map[uuid.UUID]time.Time),
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterHandlers subscribes the aggregator to persisted lead events.
func (a *Aggregator) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadEventRecorded{}.EventName(), a)
}

// Handle implements events.Handler.
func (a *Aggregator) Handle(_ context.Context, event events.Event) error {
	if e, ok := event.(events.LeadEventRecorded); ok {
		a.Observe(e.Event)
	}
	return nil
}

// Rebuild discards current state and replays events since the window start.
func (a *Aggregator) Rebuild(ctx context.Context, src EventSource) error {
	since := a.now().UTC().Add(-a.window)
	evts, err := src.ListEventsSince(ctx, since)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.buckets = make(map[int64]*bucket)
	a.leads = make(map[uuid.UUID]*leadStat)
	a.recent = nil
	a.seen = make(map[uuid.UUID]time.Time)
	a.cursor = 0
	a.mu.Unlock()

	for _, e := range evts {
		a.Observe(e)
	}
	a.log.Info("analytics rebuilt from event log", "events", len(evts), "since", since)
	return nil
}

// Observe folds one event. Events outside the window and events already
// seen are ignored.
func (a *Aggregator) Observe(e domain.LeadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.Seq > a.cursor {
		a.cursor = e.Seq
	}
	now := a.now().UTC()
	cutoff := now.Add(-a.window)
	if e.OccurredAt.Before(cutoff) {
		return
	}
	if _, dup := a.seen[e.ID]; dup && e.ID != uuid.Nil {
		return
	}
	a.seen[e.ID] = e.OccurredAt
	a.pruneLocked(cutoff)

	b := a.bucketLocked(e.OccurredAt)
	switch e.Type {
	case domain.EventLeadCreated:
		a.leadLocked(e.LeadID).touch(e)

	case domain.EventMatchCompleted:
		lead := a.leadLocked(e.LeadID)
		lead.touch(e)
		count := int(numberFrom(e.Payload, "builders"))
		top := numberFrom(e.Payload, "topScore")
		if !e.OccurredAt.Before(lead.outcomeAt) {
			lead.outcomeAt = e.OccurredAt
			lead.outcome, lead.topScore = outcomeUnmatched, 0
			if count > 0 {
				lead.outcome, lead.topScore = outcomeMatched, top
			}
		}
		if count == 0 {
			a.pushLocked(Activity{Type: ActivityUnmatched, Message: describe(e, "found no eligible builders"), Timestamp: e.OccurredAt, Priority: stringFrom(e.Payload, "priority")})
			return
		}
		a.pushLocked(Activity{
			Type:       ActivityMatched,
			Message:    describe(e, "matched with "+pluralBuilders(count)),
			Timestamp:  e.OccurredAt,
			Priority:   stringFrom(e.Payload, "priority"),
			MatchScore: top,
		})

	case domain.EventNotificationSent:
		b.sent++

	case domain.EventNotificationFailed:
		if permanent, _ := e.Payload["permanent"].(bool); permanent {
			b.failedPermanent++
		} else {
			b.failedExhausted++
		}

	case domain.EventBuilderResponded:
		seconds := numberFrom(e.Payload, "responseSeconds")
		if seconds > 0 {
			d := time.Duration(seconds * float64(time.Second))
			b.responses++
			b.responseSum += d
			a.pushLocked(Activity{
				Type:         ActivityResponse,
				Message:      e.BuilderID + " responded to " + exhibitionOf(e),
				Timestamp:    e.OccurredAt,
				ResponseTime: formatHours(d),
			})
		}

	case domain.EventStatusChanged:
		if e.ToStatus == domain.StatusWon {
			b.won++
			a.pushLocked(Activity{
				Type:      ActivityConverted,
				Message:   exhibitionOf(e) + " request converted to a project",
				Timestamp: e.OccurredAt,
				Value:     numberFrom(e.Payload, "value"),
			})
		}
	}
}

func (a *Aggregator) leadLocked(id uuid.UUID) *leadStat {
	l, ok := a.leads[id]
	if !ok {
		l = &leadStat{}
		a.leads[id] = l
	}
	return l
}

func (a *Aggregator) bucketLocked(at time.Time) *bucket {
	start := at.UTC().Truncate(bucketSize)
	key := start.Unix()
	b, ok := a.buckets[key]
	if !ok {
		b = newBucket(start)
		a.buckets[key] = b
	}
	return b
}

// pruneLocked drops buckets that ended before cutoff along with stale
// activity and dedup entries.
func (a *Aggregator) pruneLocked(cutoff time.Time) {
	for key, b := range a.buckets {
		if !b.start.Add(bucketSize).After(cutoff) {
			delete(a.buckets, key)
		}
	}
	for id, l := range a.leads {
		if l.seenAt.Before(cutoff) {
			delete(a.leads, id)
		}
	}
	for id, at := range a.seen {
		if at.Before(cutoff) {
			delete(a.seen, id)
		}
	}
	kept := a.recent[:0]
	for _, act := range a.recent {
		if !act.Timestamp.Before(cutoff) {
			kept = append(kept, act)
		}
	}
	a.recent = kept
}

func (a *Aggregator) pushLocked(act Activity) {
	a.recent = append(a.recent, act)
	if len(a.recent) > maxRecent {
		a.recent = a.recent[len(a.recent)-maxRecent:]
	}
}

func stringFrom(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// numberFrom reads a numeric payload value whether it came from memory or
// was decoded from JSONB.
func numberFrom(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func exhibitionOf(e domain.LeadEvent) string {
	if name := stringFrom(e.Payload, "exhibition"); name != "" {
		return name
	}
	return "lead " + e.LeadID.String()
}

func describe(e domain.LeadEvent, what string) string {
	return exhibitionOf(e) + " request " + what
}

func pluralBuilders(n int) string {
	if n == 1 {
		return "1 builder"
	}
	return strconv.Itoa(n) + " builders"
}
