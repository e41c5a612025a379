package domain

import (
	"time"

	"github.com/google/uuid"
)

// Breakdown holds the normalized (0..1) factor values behind a score.
type Breakdown struct {
	Geographic float64 `json:"geographic"`
	Capability float64 `json:"capability"`
	Quality    float64 `json:"quality"`
	Capacity   float64 `json:"capacity"`
}

// MatchResult scores one builder for one lead.
type MatchResult struct {
	LeadID     uuid.UUID `json:"leadId"`
	BuilderID  string    `json:"builderId"`
	Score      float64   `json:"score"`
	Rank       int       `json:"rank"`
	Reasons    []string  `json:"reasons"`
	Breakdown  Breakdown `json:"breakdown"`
	ComputedAt time.Time `json:"computedAt"`
}
