// Package matching scores and ranks builders against a lead.
//
// Rank is pure: the same lead, builder snapshot and asOf always yield the
// same ordered results, so match runs can be audited and replayed.
package matching

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
)

const (
	DefaultScoreFloor = 40.0
	DefaultTopN       = 20

	// activeLeadSaturation is the active lead count at which the workload
	// component of capacity reaches zero.
	activeLeadSaturation = 10.0
)

// Weights are the relative importance of each factor. They need not sum to
// 100; the composite is normalized by their total.
type Weights struct {
	Geographic float64
	Capability float64
	Quality    float64
	Capacity   float64
}

// DefaultWeights is the 35/25/25/15 split.
func DefaultWeights() Weights {
	return Weights{Geographic: 35, Capability: 25, Quality: 25, Capacity: 15}
}

func (w Weights) total() float64 {
	return w.Geographic + w.Capability + w.Quality + w.Capacity
}

func (w Weights) validate() error {
	for name, v := range map[string]float64{
		"geographic": w.Geographic, "capability": w.Capability, "quality": w.Quality, "capacity": w.Capacity,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("matching weight %s must be non-negative", name)
		}
	}
	if w.total() <= 0 {
		return errors.New("matching weights must not all be zero")
	}
	return nil
}

// Config is the tunable part of the engine.
type Config interface {
	GetMatchWeights() (geographic, capability, quality, capacity float64)
	GetMatchScoreFloor() float64
	GetMatchTopN() int
}

// Engine ranks builders. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	weights Weights
	floor   float64
	topN    int
}

// New builds an engine. A topN below 1 falls back to DefaultTopN.
func New(weights Weights, floor float64, topN int) (*Engine, error) {
	if err := weights.validate(); err != nil {
		return nil, err
	}
	if topN < 1 {
		topN = DefaultTopN
	}
	return &Engine{weights: weights, floor: floor, topN: topN}, nil
}

// NewFromConfig builds an engine from the MATCH_* settings.
func NewFromConfig(cfg Config) (*Engine, error) {
	g, c, q, p := cfg.GetMatchWeights()
	return New(Weights{Geographic: g, Capability: c, Quality: q, Capacity: p}, cfg.GetMatchScoreFloor(), cfg.GetMatchTopN())
}

type candidate struct {
	builder builders.Builder
	result  domain.MatchResult
}

// Rank returns up to topN results at or above the score floor, ordered by
// score desc, then response-time percentile asc, then builder id asc.
// It returns domain.ErrNoEligibleBuilders when nothing clears the floor.
func (e *Engine) Rank(lead domain.Lead, snapshot []builders.Builder, asOf time.Time) ([]domain.MatchResult, error) {
	asOf = asOf.UTC()
	tags := lead.Requirements.Tags()

	candidates := make([]candidate, 0, len(snapshot))
	for _, b := range snapshot {
		if !eligible(b) {
			continue
		}
		res := e.score(lead, tags, b, asOf)
		if res.Score < e.floor {
			continue
		}
		candidates = append(candidates, candidate{builder: b, result: res})
	}

	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleBuilders
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.result.Score, a.result.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.builder.ResponseTimePercentile, b.builder.ResponseTimePercentile); c != 0 {
			return c
		}
		return strings.Compare(a.builder.ID, b.builder.ID)
	})

	if len(candidates) > e.topN {
		candidates = candidates[:e.topN]
	}

	results := make([]domain.MatchResult, len(candidates))
	for i, c := range candidates {
		c.result.Rank = i + 1
		results[i] = c.result
	}
	return results, nil
}

func eligible(b builders.Builder) bool {
	for _, ch := range b.Channels {
		if b.Recipient(ch) != "" {
			return true
		}
	}
	return false
}

type reason struct {
	text   string
	weight float64
}

func (e *Engine) score(lead domain.Lead, tags []string, b builders.Builder, asOf time.Time) domain.MatchResult {
	var reasons []reason
	addReason := func(weight float64, format string, args ...any) {
		if weight > 0 {
			reasons = append(reasons, reason{text: fmt.Sprintf(format, args...), weight: weight})
		}
	}

	geoFactor, proximity, at := geographicFit(lead.Location, b.Locations)
	switch proximity {
	case geo.ProximityCity:
		addReason(geoFactor*e.weights.Geographic, "serves %s, %s", at.City, at.Country)
	case geo.ProximityCountry:
		addReason(geoFactor*e.weights.Geographic, "serves %s", at.Country)
	case geo.ProximityContinent:
		addReason(geoFactor*e.weights.Geographic, "operates in %s", at.Continent)
	}

	capFactor, shared := capabilityFit(tags, b.Services)
	if len(shared) > 0 {
		addReason(capFactor*e.weights.Capability, "offers %s", strings.Join(shared, ", "))
	}

	qualFactor := e.quality(b, addReason)
	capacityFactor := e.capacity(b, asOf, addReason)

	breakdown := domain.Breakdown{
		Geographic: round(geoFactor, 4),
		Capability: round(capFactor, 4),
		Quality:    round(qualFactor, 4),
		Capacity:   round(capacityFactor, 4),
	}
	composite := (geoFactor*e.weights.Geographic +
		capFactor*e.weights.Capability +
		qualFactor*e.weights.Quality +
		capacityFactor*e.weights.Capacity) / e.weights.total() * 100

	slices.SortStableFunc(reasons, func(a, b reason) int { return cmp.Compare(b.weight, a.weight) })
	texts := make([]string, len(reasons))
	for i, r := range reasons {
		texts[i] = r.text
	}

	return domain.MatchResult{
		LeadID:     lead.ID,
		BuilderID:  b.ID,
		Score:      round(clampFloat(composite, 0, 100), 2),
		Reasons:    texts,
		Breakdown:  breakdown,
		ComputedAt: asOf,
	}
}

func geographicFit(target geo.Location, served []geo.Location) (float64, geo.Proximity, geo.Location) {
	proximity, at := geo.Best(target, served)
	switch proximity {
	case geo.ProximityCity:
		return 1.0, proximity, at
	case geo.ProximityCountry:
		return 0.8, proximity, at
	case geo.ProximityContinent:
		return 0.6, proximity, at
	default:
		return 0, proximity, at
	}
}

// capabilityFit is the share of lead tags the builder offers. A lead with no
// tags scores neutral.
func capabilityFit(tags, services []string) (float64, []string) {
	if len(tags) == 0 {
		return 0.5, nil
	}
	offered := make(map[string]bool, len(services))
	for _, s := range services {
		offered[geo.Fold(s)] = true
	}
	shared := make([]string, 0, len(tags))
	for _, tag := range tags {
		if offered[geo.Fold(tag)] {
			shared = append(shared, tag)
		}
	}
	return float64(len(shared)) / float64(len(tags)), shared
}

func (e *Engine) quality(b builders.Builder, addReason func(float64, string, ...any)) float64 {
	w := e.weights.Quality
	var q float64
	if b.Verified {
		q += 0.30
		addReason(0.30*w, "verified builder")
	}
	rating := clampFloat(b.Rating, 0, 5) / 5 * 0.30
	q += rating
	if b.Rating >= 4 {
		addReason(rating*w, "rated %.1f/5", b.Rating)
	}
	speed := (1 - clampFloat(b.ResponseTimePercentile, 0, 100)/100) * 0.20
	q += speed
	if b.ResponseTimePercentile <= 25 {
		addReason(speed*w, "responds faster than %.0f%% of builders", 100-b.ResponseTimePercentile)
	}
	q += clampFloat(b.ConversionRate, 0, 1) * 0.20
	return q
}

func (e *Engine) capacity(b builders.Builder, asOf time.Time, addReason func(float64, string, ...any)) float64 {
	w := e.weights.Capacity
	workload := 1 - math.Min(float64(max(b.ActiveLeadCount, 0))/activeLeadSaturation, 1)
	recency := recencyFactor(b.LastActiveAt, asOf)
	if workload >= 0.7 {
		addReason(0.6*workload*w, "has capacity (%d active leads)", b.ActiveLeadCount)
	}
	if recency >= 0.7 {
		addReason(0.4*recency*w, "recently active")
	}
	return 0.6*workload + 0.4*recency
}

func recencyFactor(lastActive, asOf time.Time) float64 {
	if lastActive.IsZero() {
		return 0.1
	}
	age := asOf.Sub(lastActive)
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 7*24*time.Hour:
		return 0.7
	case age <= 30*24*time.Hour:
		return 0.4
	default:
		return 0.1
	}
}

func clampFloat(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
