package domain

import "strings"

// Status is a lead lifecycle state.
type Status string

const (
	StatusNew       Status = "New"
	StatusMatched   Status = "Matched"
	StatusNotified  Status = "Notified"
	StatusContacted Status = "Contacted"
	StatusQuoted    Status = "Quoted"
	StatusWon       Status = "Won"
	StatusLost      Status = "Lost"
	StatusClosed    Status = "Closed"
	StatusUnmatched Status = "Unmatched"
	StatusReopened  Status = "Reopened"
)

// transitions is the lifecycle graph. A status missing from the map has no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusNew:       {StatusMatched, StatusUnmatched, StatusLost},
	StatusReopened:  {StatusMatched, StatusUnmatched, StatusLost},
	StatusUnmatched: {StatusReopened, StatusLost},
	StatusMatched:   {StatusNotified, StatusLost},
	StatusNotified:  {StatusContacted, StatusLost},
	StatusContacted: {StatusQuoted, StatusLost},
	StatusQuoted:    {StatusWon, StatusLost},
	StatusWon:       {StatusClosed, StatusReopened},
	StatusLost:      {StatusClosed, StatusReopened},
	StatusClosed:    {StatusReopened},
}

var terminalStatuses = map[Status]bool{
	StatusWon:    true,
	StatusLost:   true,
	StatusClosed: true,
}

// ParseStatus accepts a status name case-insensitively.
func ParseStatus(s string) (Status, bool) {
	for status := range transitions {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, true
		}
	}
	return "", false
}

// IsTerminal returns true for statuses that need explicit admin action to leave.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// AcceptsMatching reports whether MatchResults may be recomputed in s.
func (s Status) AcceptsMatching() bool {
	return s == StatusNew || s == StatusReopened
}

// IsActive reports whether notifications for the lead may still be sent.
func (s Status) IsActive() bool {
	return !s.IsTerminal()
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the legal targets from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// ValidateTransition returns a *TransitionError when from -> to is not an edge.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s Status) String() string { return string(s) }
