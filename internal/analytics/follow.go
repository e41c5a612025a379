package analytics

import (
	"context"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
)

const (
	DefaultFollowInterval = 15 * time.Second

	followBatch = 500
	// followOverlap re-reads recent sequence numbers: a BIGSERIAL value can
	// commit after a higher one is already visible.
	followOverlap = 100
)

// EventFeed pages through the persisted event log in insertion order.
type EventFeed interface {
	ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.LeadEvent, error)
}

// Follow reads events appended by any process, including the scheduler's
// deliveries, every interval until ctx is done. Events already seen on the
// bus are skipped by id.
func (a *Aggregator) Follow(ctx context.Context, feed EventFeed, interval time.Duration) {
	if feed == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.CatchUp(ctx, feed); err != nil && ctx.Err() == nil {
				a.log.Warn("analytics event log read failed", "error", err)
			}
		}
	}
}

// CatchUp observes every logged event after the current cursor.
func (a *Aggregator) CatchUp(ctx context.Context, feed EventFeed) error {
	for {
		a.mu.Lock()
		before := a.cursor
		a.mu.Unlock()

		evts, err := feed.ListEventsAfter(ctx, max(before-followOverlap, 0), followBatch)
		if err != nil {
			return err
		}
		for _, e := range evts {
			a.Observe(e)
		}

		a.mu.Lock()
		advanced := a.cursor > before
		a.mu.Unlock()
		if len(evts) < followBatch || !advanced {
			return nil
		}
	}
}
