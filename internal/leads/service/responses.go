package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/platform/apperr"

	"github.com/google/uuid"
)

// Outcome values accepted by RecordOutcome.
const (
	OutcomeWon  = "won"
	OutcomeLost = "lost"
)

// RecordResponse notes that a notified builder contacted the client and
// moves a Notified lead to Contacted.
func (s *Service) RecordResponse(ctx context.Context, leadID uuid.UUID, builderID string) (domain.Lead, error) {
	lead, err := s.assignedLead(ctx, leadID, builderID)
	if err != nil {
		return lead, err
	}
	switch lead.Status {
	case domain.StatusNotified, domain.StatusContacted, domain.StatusQuoted:
	default:
		return lead, apperr.Conflict(fmt.Sprintf("lead in status %s does not accept builder responses", lead.Status))
	}

	now := s.now().UTC()
	ev := domain.NewEvent(leadID, domain.EventBuilderResponded, now)
	ev.BuilderID = builderID
	ev.Actor = builderID
	ev.Payload = map[string]any{"exhibition": lead.Exhibition.Name}
	if sentAt, ok := s.firstNotified(ctx, leadID, builderID); ok {
		ev.Payload["responseSeconds"] = now.Sub(sentAt).Seconds()
	}
	if err := s.store.AppendEvents(ctx, ev); err != nil {
		return lead, err
	}

	if lead.Status != domain.StatusNotified {
		return lead, nil
	}
	return s.advance(ctx, leadID, domain.StatusContacted, builderID, "builder responded")
}

// RecordQuote notes a builder's quote and moves the lead to Quoted.
func (s *Service) RecordQuote(ctx context.Context, leadID uuid.UUID, builderID string, amount float64, currency string) (domain.Lead, error) {
	if amount < 0 {
		return domain.Lead{}, apperr.Validation("quote amount must not be negative")
	}
	lead, err := s.assignedLead(ctx, leadID, builderID)
	if err != nil {
		return lead, err
	}
	switch lead.Status {
	case domain.StatusNotified, domain.StatusContacted, domain.StatusQuoted:
	default:
		return lead, apperr.Conflict(fmt.Sprintf("lead in status %s does not accept quotes", lead.Status))
	}

	ev := domain.NewEvent(leadID, domain.EventQuoteSubmitted, s.now())
	ev.BuilderID = builderID
	ev.Actor = builderID
	ev.Payload = map[string]any{"amount": amount, "currency": strings.ToUpper(currency), "exhibition": lead.Exhibition.Name}
	if err := s.store.AppendEvents(ctx, ev); err != nil {
		return lead, err
	}

	if lead.Status == domain.StatusNotified {
		if lead, err = s.advance(ctx, leadID, domain.StatusContacted, builderID, "builder quoted"); err != nil {
			return lead, err
		}
	}
	return s.advance(ctx, leadID, domain.StatusQuoted, builderID, "quote submitted")
}

// RecordOutcome finishes a lead as won or lost and cancels notifications
// that have not gone out yet. Only a quoted lead can be won.
func (s *Service) RecordOutcome(ctx context.Context, leadID uuid.UUID, outcome string, value float64, reason, actor string) (domain.Lead, error) {
	var (
		lead domain.Lead
		err  error
	)
	switch strings.ToLower(outcome) {
	case OutcomeWon:
		current, getErr := s.store.Get(ctx, leadID)
		if getErr != nil {
			return current, translate(getErr)
		}
		payload := map[string]any{"value": value, "exhibition": current.Exhibition.Name}
		lead, err = s.transition(ctx, leadID, domain.StatusWon, actor, reason, payload)
	case OutcomeLost:
		lead, err = s.walk(ctx, leadID, domain.StatusLost, actor, reason)
	default:
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("unknown outcome %q", outcome))
	}
	if err != nil {
		return lead, err
	}
	if _, err := s.dispatcher.CancelForLead(ctx, leadID, "lead "+strings.ToLower(outcome)); err != nil {
		return lead, err
	}
	return lead, nil
}

func (s *Service) assignedLead(ctx context.Context, leadID uuid.UUID, builderID string) (domain.Lead, error) {
	lead, err := s.store.Get(ctx, leadID)
	if err != nil {
		return lead, translate(err)
	}
	if !lead.IsAssigned(builderID) {
		return lead, apperr.Validation(fmt.Sprintf("builder %s was not notified about this lead", builderID))
	}
	return lead, nil
}

// advance applies one forward step, accepting a lead that another writer
// already moved past it.
func (s *Service) advance(ctx context.Context, leadID uuid.UUID, to domain.Status, actor, reason string) (domain.Lead, error) {
	lead, err := s.transition(ctx, leadID, to, actor, reason, nil)
	var te *domain.TransitionError
	if errors.As(err, &te) && te.From != to && !te.From.IsTerminal() && rankOf(te.From) > rankOf(to) {
		return lead, nil
	}
	return lead, err
}

func rankOf(st domain.Status) int {
	switch st {
	case domain.StatusMatched:
		return 1
	case domain.StatusNotified:
		return 2
	case domain.StatusContacted:
		return 3
	case domain.StatusQuoted:
		return 4
	}
	return 0
}

func (s *Service) firstNotified(ctx context.Context, leadID uuid.UUID, builderID string) (time.Time, bool) {
	evts, err := s.store.ListEvents(ctx, leadID)
	if err != nil {
		s.log.Warn("failed to load events for response time", "leadId", leadID, "error", err)
		return time.Time{}, false
	}
	for _, e := range evts {
		if e.Type == domain.EventNotificationSent && e.BuilderID == builderID {
			return e.OccurredAt, true
		}
	}
	return time.Time{}, false
}
