package scheduler

import (
	"context"
	"time"

	"github.com/syed-c/standzon-sub008/platform/logger"
)

const (
	defaultSweepInterval   = 30 * time.Second
	defaultSweepBatch      = 100
	defaultArchiveInterval = time.Hour
)

// DueRunner delivers every due job, up to limit.
type DueRunner interface {
	RunDue(ctx context.Context, limit int) (int, error)
}

// DueSweeper periodically delivers due jobs whose tasks were lost or never
// enqueued, including jobs whose lease expired mid-attempt.
type DueSweeper struct {
	runner   DueRunner
	log      *logger.Logger
	interval time.Duration
	batch    int
}

func NewDueSweeper(runner DueRunner, log *logger.Logger, interval time.Duration, batch int) *DueSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	if log == nil {
		log = logger.Discard()
	}
	return &DueSweeper{runner: runner, log: log, interval: interval, batch: batch}
}

func (s *DueSweeper) Run(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	runEvery(ctx, s.interval, s.sweep)
}

func (s *DueSweeper) sweep(ctx context.Context) {
	n, err := s.runner.RunDue(ctx, s.batch)
	if err != nil {
		s.log.Warn("due notification sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("due notification sweep delivered jobs", "jobs", n)
	}
}

// Archiver closes Won and Lost leads older than a cutoff.
type Archiver interface {
	ArchiveTerminal(ctx context.Context, olderThan time.Duration) (int, error)
}

// LeadArchiver periodically closes stale terminal leads.
type LeadArchiver struct {
	archiver  Archiver
	log       *logger.Logger
	interval  time.Duration
	olderThan time.Duration
}

func NewLeadArchiver(archiver Archiver, log *logger.Logger, interval, olderThan time.Duration) *LeadArchiver {
	if interval <= 0 {
		interval = defaultArchiveInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &LeadArchiver{archiver: archiver, log: log, interval: interval, olderThan: olderThan}
}

// Run is a no-op when olderThan is not positive.
func (a *LeadArchiver) Run(ctx context.Context) {
	if a == nil || a.archiver == nil || a.olderThan <= 0 {
		return
	}
	runEvery(ctx, a.interval, a.archive)
}

func (a *LeadArchiver) archive(ctx context.Context) {
	n, err := a.archiver.ArchiveTerminal(ctx, a.olderThan)
	if err != nil {
		a.log.Warn("lead archive sweep failed", "error", err)
		return
	}
	if n > 0 {
		a.log.Info("lead archive sweep closed leads", "leads", n)
	}
}

func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
