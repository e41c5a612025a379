package service

import (
	"context"
	"errors"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/platform/apperr"
)

const (
	regionBatch  = 100
	archiveBatch = 200
)

// RegionRematch summarizes a rematch triggered by a newly verified builder.
type RegionRematch struct {
	BuilderID string `json:"builderId"`
	Reopened  int    `json:"reopened"`
	Matched   int    `json:"matched"`
}

// VerifyBuilder updates a builder's verified flag. Verifying publishes
// BuilderVerified, which reopens Unmatched leads in the builder's countries.
func (s *Service) VerifyBuilder(ctx context.Context, builderID string, verified bool) (builders.Builder, error) {
	b, err := s.directory.SetVerified(ctx, builderID, verified)
	if err != nil {
		return b, translate(err)
	}
	if verified && s.bus != nil {
		s.bus.Publish(ctx, events.BuilderVerified{
			BaseEvent: events.At(s.now()),
			BuilderID: b.ID,
			Countries: b.Countries(),
		})
	}
	return b, nil
}

// RegisterHandlers subscribes the service to directory events.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.BuilderVerified{}.EventName(), s)
}

// Handle implements events.Handler.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.BuilderVerified:
		summary, err := s.RematchRegion(ctx, e.BuilderID)
		if err != nil {
			return err
		}
		s.log.Info("regional rematch finished", "builderId", summary.BuilderID, "reopened", summary.Reopened, "matched", summary.Matched)
	}
	return nil
}

// RematchRegion reopens and rematches Unmatched leads located in the
// builder's countries.
func (s *Service) RematchRegion(ctx context.Context, builderID string) (RegionRematch, error) {
	summary := RegionRematch{BuilderID: builderID}
	b, err := s.directory.Get(ctx, builderID)
	if err != nil {
		return summary, translate(err)
	}
	codes := b.Countries()
	if len(codes) == 0 {
		return summary, nil
	}

	leads, err := s.store.ListByStatusInCountries(ctx, domain.StatusUnmatched, codes, regionBatch)
	if err != nil {
		return summary, err
	}
	for _, lead := range leads {
		_, err := s.tracker.Transition(ctx, lifecycle.Request{
			LeadID: lead.ID,
			To:     domain.StatusReopened,
			Actor:  domain.ActorMatching,
			Reason: "builder " + builderID + " verified in region",
			Guard: func(l domain.Lead) error {
				if l.Status != domain.StatusUnmatched {
					return errStepStale
				}
				return nil
			},
		})
		if errors.Is(err, errStepStale) {
			continue
		}
		if err != nil {
			s.log.Warn("failed to reopen lead for regional rematch", "leadId", lead.ID, "error", err)
			continue
		}
		summary.Reopened++

		out, err := s.Process(ctx, lead.ID)
		if err != nil {
			s.log.Warn("regional rematch failed", "leadId", lead.ID, "error", err)
			continue
		}
		if out.Status == domain.StatusMatched {
			summary.Matched++
		}
	}
	return summary, nil
}

// ArchiveTerminal closes Won and Lost leads untouched for olderThan.
func (s *Service) ArchiveTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, apperr.Validation("archive age must be positive")
	}
	before := s.now().UTC().Add(-olderThan)
	leads, err := s.store.ListByStatusUpdatedBefore(ctx, []domain.Status{domain.StatusWon, domain.StatusLost}, before, archiveBatch)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, lead := range leads {
		_, err := s.tracker.Transition(ctx, lifecycle.Request{
			LeadID: lead.ID,
			To:     domain.StatusClosed,
			Actor:  domain.ActorArchiver,
			Reason: "archived after inactivity",
			Guard: func(l domain.Lead) error {
				if l.Status != domain.StatusWon && l.Status != domain.StatusLost {
					return errStepStale
				}
				return nil
			},
		})
		if errors.Is(err, errStepStale) {
			continue
		}
		if err != nil {
			s.log.Warn("failed to archive lead", "leadId", lead.ID, "error", err)
			continue
		}
		if _, err := s.dispatcher.CancelForLead(ctx, lead.ID, closeReason); err != nil {
			s.log.Warn("failed to cancel notifications for archived lead", "leadId", lead.ID, "error", err)
		}
		archived++
	}
	return archived, nil
}
