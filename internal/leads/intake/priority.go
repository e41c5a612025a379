package intake

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
)

var (
	urgentTimelines = []string{"asap", "urgent", "immediately", "this month"}
	lowTimelines    = []string{"next year", "flexible"}

	// timelineSpan reads "<1 month", "within 2 weeks", "1-2 months", "6+ months".
	timelineSpan = regexp.MustCompile(`(<|less than|under|within)?\s*(\d+)\s*\+?\s*(?:(?:-|–|to)\s*\d+\s*)?(week|month|year)s?`)
)

// AssignPriority applies the rules in order: a valid explicit priority,
// then timeline urgency, then budget band, then medium.
func AssignPriority(explicit, timeline string, budget domain.Budget) domain.Priority {
	if p, ok := domain.ParsePriority(explicit); ok {
		return p
	}
	if p, ok := timelinePriority(strings.ToLower(strings.TrimSpace(timeline))); ok {
		return p
	}

	switch budget.Band {
	case domain.Budget50to100k, domain.Budget100kPlus:
		return domain.PriorityHigh
	case domain.BudgetUnder10k:
		return domain.PriorityLow
	}
	return domain.PriorityMedium
}

// timelinePriority ranks a timeline by how soon it starts: ranges resolve
// by their lower bound, so "3-6 months" decides nothing.
func timelinePriority(t string) (domain.Priority, bool) {
	switch {
	case t == "":
		return "", false
	case containsAny(t, urgentTimelines):
		return domain.PriorityUrgent, true
	case containsAny(t, lowTimelines):
		return domain.PriorityLow, true
	}

	m := timelineSpan.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	months := float64(n)
	switch m[3] {
	case "week":
		months /= 4
	case "year":
		months *= 12
	}

	if m[1] != "" {
		// Only an upper bound: urgent when it is a month or less.
		if months <= 1 {
			return domain.PriorityUrgent, true
		}
		return "", false
	}
	switch {
	case months < 1:
		return domain.PriorityUrgent, true
	case months <= 2:
		return domain.PriorityHigh, true
	case months >= 6:
		return domain.PriorityLow, true
	}
	return "", false
}
