package matching

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/google/uuid"
)

var asOf = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultWeights(), DefaultScoreFloor, DefaultTopN)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func berlinLead() domain.Lead {
	tax := geo.Default()
	return domain.Lead{
		ID:       uuid.MustParse("8f3a9bde-3c1e-4c2a-9a55-1b6e0f7d2a10"),
		Location: tax.Resolve("Berlin", "Germany"),
		Requirements: domain.Requirements{
			Industry: "Technology",
			Budget:   domain.Budget{Raw: "$10k–20k", Min: 10000, Max: 20000, Currency: "USD", Band: domain.Budget10to25k},
		},
		Status: domain.StatusNew,
	}
}

func builderAt(id, city, country string, services ...string) builders.Builder {
	return builders.Builder{
		ID:                     id,
		Email:                  id + "@builders.test",
		Channels:               []builders.Channel{builders.ChannelEmail},
		Locations:              []geo.Location{geo.Default().Resolve(city, country)},
		Services:               services,
		Verified:               true,
		Rating:                 4.5,
		ResponseTimePercentile: 20,
		ConversionRate:         0.3,
		ActiveLeadCount:        2,
		LastActiveAt:           asOf.Add(-2 * time.Hour),
	}
}

func TestRankPrefersLocalCapableBuilders(t *testing.T) {
	snapshot := []builders.Builder{
		builderAt("paris-tech", "Paris", "France", "Technology"),
		builderAt("berlin-tech", "Berlin", "Germany", "Technology"),
		builderAt("munich-tech", "Munich", "Germany", "Technology"),
	}

	results, err := newEngine(t).Rank(berlinLead(), snapshot, asOf)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	order := []string{results[0].BuilderID, results[1].BuilderID, results[2].BuilderID}
	want := []string{"berlin-tech", "munich-tech", "paris-tech"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("unexpected order %v, want %v", order, want)
	}
	if !(results[0].Score > results[1].Score && results[1].Score > results[2].Score) {
		t.Fatalf("expected strictly decreasing scores, got %v %v %v", results[0].Score, results[1].Score, results[2].Score)
	}
	if results[0].Rank != 1 || results[0].Breakdown.Geographic != 1 {
		t.Fatalf("unexpected top result %+v", results[0])
	}
	if results[2].Breakdown.Geographic != 0.6 {
		t.Fatalf("expected continent factor 0.6, got %v", results[2].Breakdown.Geographic)
	}
	if len(results[0].Reasons) == 0 || results[0].Reasons[0] != "serves Berlin, Germany" {
		t.Fatalf("expected geographic reason first, got %v", results[0].Reasons)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	snapshot := []builders.Builder{
		builderAt("a", "Berlin", "Germany", "Technology"),
		builderAt("b", "Hamburg", "Germany", "Technology"),
		builderAt("c", "Vienna", "Austria"),
		builderAt("d", "Berlin", "Germany"),
	}
	engine := newEngine(t)

	first, err := engine.Rank(berlinLead(), snapshot, asOf)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	for i := 0; i < 20; i++ {
		reversed := make([]builders.Builder, len(snapshot))
		for j := range snapshot {
			reversed[len(snapshot)-1-j] = snapshot[j]
		}
		again, err := engine.Rank(berlinLead(), reversed, asOf)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("rank output changed between runs")
		}
	}
}

func TestRankTieBreaksOnResponseTimeThenID(t *testing.T) {
	fast := builderAt("zeta", "Berlin", "Germany", "Technology")
	slow := builderAt("alpha", "Berlin", "Germany", "Technology")
	twin := builderAt("beta", "Berlin", "Germany", "Technology")
	// Same composite: the speed bonus is balanced by conversion rate.
	fast.ResponseTimePercentile, fast.ConversionRate = 10, 0.2
	slow.ResponseTimePercentile, slow.ConversionRate = 20, 0.3
	twin.ResponseTimePercentile, twin.ConversionRate = 20, 0.3

	results, err := newEngine(t).Rank(berlinLead(), []builders.Builder{twin, slow, fast}, asOf)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if results[0].Score != results[1].Score || results[1].Score != results[2].Score {
		t.Fatalf("expected equal scores, got %v", results)
	}
	got := []string{results[0].BuilderID, results[1].BuilderID, results[2].BuilderID}
	if !reflect.DeepEqual(got, []string{"zeta", "alpha", "beta"}) {
		t.Fatalf("unexpected tie order %v", got)
	}
}

func TestRankFloorAndEligibility(t *testing.T) {
	far := builderAt("far", "Sydney", "Australia")
	far.Verified, far.Rating, far.ActiveLeadCount, far.LastActiveAt = false, 1, 12, time.Time{}
	silent := builderAt("silent", "Berlin", "Germany", "Technology")
	silent.Channels = nil

	_, err := newEngine(t).Rank(berlinLead(), []builders.Builder{far, silent}, asOf)
	if !errors.Is(err, domain.ErrNoEligibleBuilders) {
		t.Fatalf("expected ErrNoEligibleBuilders, got %v", err)
	}
}

func TestRankCapsAtTopN(t *testing.T) {
	engine, err := New(DefaultWeights(), DefaultScoreFloor, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snapshot := []builders.Builder{
		builderAt("a", "Berlin", "Germany", "Technology"),
		builderAt("b", "Berlin", "Germany", "Technology"),
		builderAt("c", "Berlin", "Germany", "Technology"),
	}
	results, err := engine.Rank(berlinLead(), snapshot, asOf)
	if err != nil || len(results) != 2 {
		t.Fatalf("expected 2 results, got %d (%v)", len(results), err)
	}
}

func TestCapabilityFitNeutralWithoutTags(t *testing.T) {
	if got, _ := capabilityFit(nil, []string{"Technology"}); got != 0.5 {
		t.Fatalf("expected neutral 0.5, got %v", got)
	}
	got, shared := capabilityFit([]string{"Technology", "Automotive"}, []string{"technology"})
	if got != 0.5 || len(shared) != 1 {
		t.Fatalf("expected half overlap, got %v %v", got, shared)
	}
}

func TestRecencyFactor(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{time.Hour, 1.0},
		{3 * 24 * time.Hour, 0.7},
		{20 * 24 * time.Hour, 0.4},
		{90 * 24 * time.Hour, 0.1},
	}
	for _, tc := range cases {
		if got := recencyFactor(asOf.Add(-tc.age), asOf); got != tc.want {
			t.Errorf("age %s: got %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestNewRejectsInvalidWeights(t *testing.T) {
	if _, err := New(Weights{}, 40, 20); err == nil {
		t.Fatalf("expected all-zero weights to be rejected")
	}
	if _, err := New(Weights{Geographic: -1, Capability: 1}, 40, 20); err == nil {
		t.Fatalf("expected negative weight to be rejected")
	}
}
