package service

import (
	"context"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"

	"github.com/google/uuid"
)

func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	return lead, translate(err)
}

func (s *Service) ListEvents(ctx context.Context, id uuid.UUID) ([]domain.LeadEvent, error) {
	if _, err := s.GetLead(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id)
}

func (s *Service) ListMatches(ctx context.Context, id uuid.UUID) ([]domain.MatchResult, error) {
	if _, err := s.GetLead(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMatches(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, id uuid.UUID) ([]outbox.Job, error) {
	if _, err := s.GetLead(ctx, id); err != nil {
		return nil, err
	}
	return s.dispatcher.ListJobs(ctx, id)
}

// ConfirmDelivery records a provider receipt for a sent notification.
func (s *Service) ConfirmDelivery(ctx context.Context, jobID uuid.UUID, deliveryID string) (outbox.Job, error) {
	job, err := s.dispatcher.Confirm(ctx, jobID, deliveryID)
	return job, translate(err)
}

// VerifyHistory replays the lead's event log against its stored status.
func (s *Service) VerifyHistory(ctx context.Context, id uuid.UUID) (domain.Status, bool, error) {
	status, ok, err := s.tracker.Verify(ctx, id)
	return status, ok, translate(err)
}
