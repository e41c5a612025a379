package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/platform/apperr"

	"github.com/google/uuid"
)

// Action is an admin operation on a lead.
type Action string

const (
	ActionRematch Action = "rematch"
	ActionNotify  Action = "notify"
	ActionClose   Action = "close"
	ActionReopen  Action = "reopen"
)

func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRematch, ActionNotify, ActionClose, ActionReopen:
		return a, true
	}
	return "", false
}

// ManageResult is returned for every admin action.
type ManageResult struct {
	LeadID           uuid.UUID     `json:"leadId"`
	Status           domain.Status `json:"status"`
	BuildersNotified int           `json:"buildersNotified"`
}

const closeReason = "lead closed"

// Manage runs an admin action. actor identifies the operator.
func (s *Service) Manage(ctx context.Context, leadID uuid.UUID, action Action, actor string) (ManageResult, error) {
	switch action {
	case ActionRematch:
		return s.rematch(ctx, leadID, actor)
	case ActionNotify:
		return s.notify(ctx, leadID)
	case ActionClose:
		return s.close(ctx, leadID, actor)
	case ActionReopen:
		return s.reopen(ctx, leadID, actor)
	}
	return ManageResult{}, apperr.Validation(fmt.Sprintf("unknown action %q", action))
}

func (s *Service) rematch(ctx context.Context, leadID uuid.UUID, actor string) (ManageResult, error) {
	lead, err := s.store.Get(ctx, leadID)
	if err != nil {
		return ManageResult{}, translate(err)
	}
	if lead.Status == domain.StatusUnmatched {
		if lead, err = s.transition(ctx, leadID, domain.StatusReopened, actor, "rematch requested", nil); err != nil {
			return ManageResult{}, err
		}
	}
	if !lead.Status.AcceptsMatching() {
		return ManageResult{}, apperr.Conflict(fmt.Sprintf("lead in status %s cannot be rematched", lead.Status))
	}
	return s.processResult(ctx, leadID)
}

func (s *Service) notify(ctx context.Context, leadID uuid.UUID) (ManageResult, error) {
	lead, err := s.store.Get(ctx, leadID)
	if err != nil {
		return ManageResult{}, translate(err)
	}
	switch lead.Status {
	case domain.StatusMatched, domain.StatusNotified, domain.StatusContacted:
	default:
		return ManageResult{}, apperr.Conflict(fmt.Sprintf("lead in status %s has no matches to notify", lead.Status))
	}

	matches, err := s.store.ListMatches(ctx, leadID)
	if err != nil {
		return ManageResult{}, err
	}
	jobs, err := s.dispatcher.Dispatch(ctx, lead, latestRun(matches))
	if err != nil {
		return ManageResult{}, err
	}
	return ManageResult{
		LeadID:           lead.ID,
		Status:           s.currentStatus(ctx, leadID, lead.Status),
		BuildersNotified: countBuilders(jobs),
	}, nil
}

// close walks the lead to Closed through Lost where needed and cancels its
// pending notifications.
func (s *Service) close(ctx context.Context, leadID uuid.UUID, actor string) (ManageResult, error) {
	lead, err := s.walk(ctx, leadID, domain.StatusClosed, actor, closeReason)
	if err != nil {
		return ManageResult{}, err
	}
	if _, err := s.dispatcher.CancelForLead(ctx, leadID, closeReason); err != nil {
		return ManageResult{}, err
	}
	return ManageResult{LeadID: lead.ID, Status: lead.Status}, nil
}

func (s *Service) reopen(ctx context.Context, leadID uuid.UUID, actor string) (ManageResult, error) {
	_, err := s.tracker.Transition(ctx, lifecycle.Request{
		LeadID: leadID,
		To:     domain.StatusReopened,
		Actor:  actor,
		Reason: "reopened by admin",
		Guard: func(l domain.Lead) error {
			if !l.Status.IsTerminal() {
				return apperr.Conflict(fmt.Sprintf("lead in status %s is not closed", l.Status))
			}
			return nil
		},
	})
	if err != nil {
		return ManageResult{}, translate(err)
	}
	return s.processResult(ctx, leadID)
}

func (s *Service) processResult(ctx context.Context, leadID uuid.UUID) (ManageResult, error) {
	out, err := s.Process(ctx, leadID)
	if err != nil {
		return ManageResult{}, err
	}
	return ManageResult{LeadID: out.LeadID, Status: out.Status, BuildersNotified: out.BuildersNotified}, nil
}

// walk moves the lead step by step toward Lost or Closed, re-reading state
// before each step so concurrent changes are followed rather than fought.
func (s *Service) walk(ctx context.Context, leadID uuid.UUID, goal domain.Status, actor, reason string) (domain.Lead, error) {
	const maxSteps = 4
	var lead domain.Lead
	var err error
	for step := 0; step < maxSteps+1; step++ {
		if lead, err = s.store.Get(ctx, leadID); err != nil {
			return lead, translate(err)
		}
		if lead.Status == goal {
			return lead, nil
		}
		next, ok := nextToward(lead.Status, goal)
		if !ok {
			return lead, apperr.Conflict(fmt.Sprintf("lead in status %s cannot move to %s", lead.Status, goal))
		}
		from := lead.Status
		_, err = s.tracker.Transition(ctx, lifecycle.Request{
			LeadID: leadID,
			To:     next,
			Actor:  actor,
			Reason: reason,
			Guard: func(l domain.Lead) error {
				if l.Status != from {
					return errStepStale
				}
				return nil
			},
		})
		if err != nil && !errors.Is(err, errStepStale) {
			return lead, translate(err)
		}
	}
	return lead, apperr.Conflict("lead kept changing while closing")
}

var errStepStale = errors.New("lead changed before the step was applied")

// nextToward returns the next status on the shortest path from s to goal,
// where goal is Lost or Closed.
func nextToward(s, goal domain.Status) (domain.Status, bool) {
	switch s {
	case domain.StatusNew, domain.StatusReopened, domain.StatusUnmatched, domain.StatusMatched, domain.StatusNotified,
		domain.StatusContacted, domain.StatusQuoted:
		return domain.StatusLost, true
	case domain.StatusWon, domain.StatusLost:
		if goal == domain.StatusClosed {
			return domain.StatusClosed, true
		}
	}
	return "", false
}

func (s *Service) transition(ctx context.Context, leadID uuid.UUID, to domain.Status, actor, reason string, payload map[string]any) (domain.Lead, error) {
	lead, err := s.tracker.Transition(ctx, lifecycle.Request{
		LeadID:  leadID,
		To:      to,
		Actor:   actor,
		Reason:  reason,
		Payload: payload,
	})
	if err != nil {
		return lead, translate(err)
	}
	return lead, nil
}
