// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"slices"
	"time"

	"github.com/syed-c/standzon-sub008/internal/geo"

	"github.com/google/uuid"
)

// Priority is the intake-assigned urgency of a lead.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts a priority case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(normalizeToken(s)); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return "", false
}

// BudgetBand buckets a parsed budget.
type BudgetBand string

const (
	BudgetUnknown  BudgetBand = ""
	BudgetUnder10k BudgetBand = "under-10k"
	Budget10to25k  BudgetBand = "10k-25k"
	Budget25to50k  BudgetBand = "25k-50k"
	Budget50to100k BudgetBand = "50k-100k"
	Budget100kPlus BudgetBand = "100k-plus"
)

// Budget is the parsed form of the free-text budget field.
type Budget struct {
	Raw      string     `json:"raw"`
	Min      int        `json:"min"`
	Max      int        `json:"max"`
	Currency string     `json:"currency,omitempty"`
	Band     BudgetBand `json:"band,omitempty"`
}

// Exhibition identifies the trade fair a stand is needed for.
type Exhibition struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Requirements captures what the client asked for.
type Requirements struct {
	Industry            string   `json:"industry"`
	Services            []string `json:"services,omitempty"`
	StandSize           int      `json:"standSize"`
	Budget              Budget   `json:"budget"`
	Timeline            string   `json:"timeline"`
	SpecialRequirements string   `json:"specialRequirements"`
}

// Tags returns the capability tags matched against builder services.
func (r Requirements) Tags() []string {
	tags := make([]string, 0, len(r.Services)+1)
	if r.Industry != "" && r.Industry != geo.NotSpecified {
		tags = append(tags, r.Industry)
	}
	for _, s := range r.Services {
		if s != "" && !slices.Contains(tags, s) {
			tags = append(tags, s)
		}
	}
	return tags
}

// Contact is the client contact on a lead.
type Contact struct {
	CompanyName string `json:"companyName"`
	Name        string `json:"contactName"`
	Email       string `json:"contactEmail"`
	Phone       string `json:"contactPhone,omitempty"`
}

// Lead is the canonical inbound project request.
type Lead struct {
	ID               uuid.UUID    `json:"id"`
	Contact          Contact      `json:"contact"`
	Location         geo.Location `json:"location"`
	Exhibition       Exhibition   `json:"exhibition"`
	Requirements     Requirements `json:"requirements"`
	Priority         Priority     `json:"priority"`
	Status           Status       `json:"status"`
	Version          int64        `json:"version"`
	Source           string       `json:"source,omitempty"`
	AssignedBuilders []string     `json:"assignedBuilders"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// IsAssigned reports whether builderID is already assigned to the lead.
func (l Lead) IsAssigned(builderID string) bool {
	return slices.Contains(l.AssignedBuilders, builderID)
}
