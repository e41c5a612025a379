package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLeadNotFound is returned by stores when no lead has the requested id.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrConcurrencyConflict reports an optimistic version mismatch.
	ErrConcurrencyConflict = errors.New("lead was modified concurrently")
	// ErrNoEligibleBuilders is non-fatal: the lead is flagged Unmatched for review.
	ErrNoEligibleBuilders = errors.New("no eligible builders above the score floor")
)

// TransitionError rejects a status change that is not an edge of the lifecycle graph.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid lead transition %s -> %s", e.From, e.To)
}
