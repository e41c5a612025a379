package analytics

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Activity types in Snapshot.RecentActivity.
const (
	ActivityMatched   = "quote_matched"
	ActivityUnmatched = "quote_unmatched"
	ActivityResponse  = "builder_response"
	ActivityConverted = "quote_converted"
)

// Insight types.
const (
	InsightOptimization = "optimization"
	InsightTrend        = "trend"
	InsightAlert        = "alert"
)

type Activity struct {
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Priority     string    `json:"priority,omitempty"`
	MatchScore   float64   `json:"matchScore,omitempty"`
	ResponseTime string    `json:"responseTime,omitempty"`
	Value        float64   `json:"value,omitempty"`
}

type RegionPerformance struct {
	Region       string  `json:"region"`
	Leads        int     `json:"leads"`
	SuccessRate  float64 `json:"successRate"`
	AverageScore float64 `json:"averageScore"`
}

type PerformanceMetrics struct {
	QuotesPerHour        float64             `json:"quotesPerHour"`
	MatchSuccessRate     float64             `json:"matchSuccessRate"`
	DeliverySuccessRate  float64             `json:"deliverySuccessRate"`
	NotificationsSent    int                 `json:"notificationsSent"`
	PermanentFailures    int                 `json:"permanentFailures"`
	ExhaustedFailures    int                 `json:"exhaustedFailures"`
	TopPerformingRegions []RegionPerformance `json:"topPerformingRegions"`
}

type Insight struct {
	Type           string `json:"type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	ActionRequired bool   `json:"actionRequired"`
}

// Snapshot is the dashboard view of the current window. Rates are
// percentages rounded to one decimal.
type Snapshot struct {
	TotalQuotesProcessed   int                `json:"totalQuotesProcessed"`
	SuccessfulMatches      int                `json:"successfulMatches"`
	UnmatchedQuotes        int                `json:"unmatchedQuotes"`
	AverageMatchScore      float64            `json:"averageMatchScore"`
	AverageResponseTime    string             `json:"averageResponseTime"`
	AverageResponseSeconds float64            `json:"averageResponseSeconds"`
	MatchingEfficiency     float64            `json:"matchingEfficiency"`
	ConvertedQuotes        int                `json:"convertedQuotes"`
	RecentActivity         []Activity         `json:"recentActivity"`
	PerformanceMetrics     PerformanceMetrics `json:"performanceMetrics"`
	Insights               []Insight          `json:"insights"`
	WindowStart            time.Time          `json:"windowStart"`
	GeneratedAt            time.Time          `json:"generatedAt"`
}

const (
	minLeadsForInsight   = 4
	minAttemptsForAlert  = 5
	deliveryAlertPercent = 80
	slowResponse         = 24 * time.Hour
)

// windowTotals sums the hourly buckets and the per-lead outcomes.
type windowTotals struct {
	bucket
	leadsProcessed int
	matched        int
	unmatched      int
	scoreSum       float64
}

// Snapshot summarizes the window ending at now.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now = now.UTC()
	cutoff := now.Add(-a.window)
	a.pruneLocked(cutoff)

	var total windowTotals
	regions := make(map[string]*regionCounts)
	for _, l := range a.leads {
		r, ok := regions[regionName(l.region)]
		if !ok {
			r = &regionCounts{}
			regions[regionName(l.region)] = r
		}
		total.leadsProcessed++
		r.leads++
		switch l.outcome {
		case outcomeMatched:
			total.matched++
			total.scoreSum += l.topScore
			r.matched++
			r.scoreSum += l.topScore
		case outcomeUnmatched:
			total.unmatched++
		}
	}
	for _, b := range a.buckets {
		total.responses += b.responses
		total.responseSum += b.responseSum
		total.sent += b.sent
		total.failedPermanent += b.failedPermanent
		total.failedExhausted += b.failedExhausted
		total.won += b.won
	}

	s := Snapshot{
		TotalQuotesProcessed: total.leadsProcessed,
		SuccessfulMatches:    total.matched,
		UnmatchedQuotes:      total.unmatched,
		ConvertedQuotes:      total.won,
		AverageResponseTime:  "n/a",
		WindowStart:          cutoff,
		GeneratedAt:          now,
	}
	if total.matched > 0 {
		s.AverageMatchScore = round1(total.scoreSum / float64(total.matched))
	}
	if total.responses > 0 {
		avg := total.responseSum / time.Duration(total.responses)
		s.AverageResponseSeconds = math.Round(avg.Seconds())
		s.AverageResponseTime = formatHours(avg)
	}
	s.MatchingEfficiency = percent(total.matched, total.leadsProcessed)

	attempts := total.sent + total.failedPermanent + total.failedExhausted
	s.PerformanceMetrics = PerformanceMetrics{
		QuotesPerHour:        round1(float64(total.leadsProcessed) / a.window.Hours()),
		MatchSuccessRate:     percent(total.matched, total.matched+total.unmatched),
		DeliverySuccessRate:  percent(total.sent, attempts),
		NotificationsSent:    total.sent,
		PermanentFailures:    total.failedPermanent,
		ExhaustedFailures:    total.failedExhausted,
		TopPerformingRegions: rankRegions(regions),
	}

	s.RecentActivity = make([]Activity, 0, len(a.recent))
	for i := len(a.recent) - 1; i >= 0; i-- {
		s.RecentActivity = append(s.RecentActivity, a.recent[i])
	}
	slices.SortStableFunc(s.RecentActivity, func(x, y Activity) int { return y.Timestamp.Compare(x.Timestamp) })

	s.Insights = insights(s, total, attempts)
	return s
}

func rankRegions(regions map[string]*regionCounts) []RegionPerformance {
	out := make([]RegionPerformance, 0, len(regions))
	for name, r := range regions {
		if r.leads == 0 && r.matched == 0 {
			continue
		}
		rp := RegionPerformance{Region: name, Leads: r.leads, SuccessRate: percent(r.matched, r.leads)}
		if r.matched > 0 {
			rp.AverageScore = round1(r.scoreSum / float64(r.matched))
		}
		out = append(out, rp)
	}
	slices.SortFunc(out, func(x, y RegionPerformance) int {
		if x.SuccessRate != y.SuccessRate {
			if x.SuccessRate > y.SuccessRate {
				return -1
			}
			return 1
		}
		if x.Leads != y.Leads {
			return y.Leads - x.Leads
		}
		return strings.Compare(x.Region, y.Region)
	})
	return out
}

// insights derives dashboard hints from the window totals. Rules are
// evaluated in a fixed order so the output is stable.
func insights(s Snapshot, total windowTotals, attempts int) []Insight {
	out := make([]Insight, 0, 4)

	if attempts >= minAttemptsForAlert && s.PerformanceMetrics.DeliverySuccessRate < deliveryAlertPercent {
		out = append(out, Insight{
			Type:           InsightAlert,
			Title:          "Notification delivery degraded",
			Description:    fmt.Sprintf("Only %.1f%% of %d delivery attempts succeeded; %d failed permanently.", s.PerformanceMetrics.DeliverySuccessRate, attempts, total.failedPermanent),
			Impact:         "High",
			ActionRequired: true,
		})
	}

	if total.leadsProcessed >= minLeadsForInsight {
		if weakest, ok := weakestRegion(s.PerformanceMetrics.TopPerformingRegions); ok {
			out = append(out, Insight{
				Type:           InsightOptimization,
				Title:          "Builder coverage gap in " + weakest.Region,
				Description:    fmt.Sprintf("%s matched %.1f%% of %d leads. Recruiting or verifying builders there would lift match rates.", weakest.Region, weakest.SuccessRate, weakest.Leads),
				Impact:         "High",
				ActionRequired: true,
			})
		}
		if top := busiestRegion(s.PerformanceMetrics.TopPerformingRegions); top.Leads > 0 {
			out = append(out, Insight{
				Type:        InsightTrend,
				Title:       top.Region + " leads the request volume",
				Description: fmt.Sprintf("%s accounts for %.1f%% of requests in the current window.", top.Region, percent(top.Leads, total.leadsProcessed)),
				Impact:      "Medium",
			})
		}
	}

	if total.responses > 0 && total.responseSum/time.Duration(total.responses) > slowResponse {
		out = append(out, Insight{
			Type:           InsightAlert,
			Title:          "Slow builder responses",
			Description:    "Builders take " + s.AverageResponseTime + " on average to respond to a matched request.",
			Impact:         "Medium",
			ActionRequired: true,
		})
	}
	return out
}

func weakestRegion(regions []RegionPerformance) (RegionPerformance, bool) {
	var weakest RegionPerformance
	found := false
	for _, r := range regions {
		if r.Leads < 2 || r.SuccessRate >= 50 {
			continue
		}
		if !found || r.SuccessRate < weakest.SuccessRate {
			weakest, found = r, true
		}
	}
	return weakest, found
}

func busiestRegion(regions []RegionPerformance) RegionPerformance {
	var top RegionPerformance
	for _, r := range regions {
		if r.Leads > top.Leads || (r.Leads == top.Leads && r.Region < top.Region) {
			top = r
		}
	}
	return top
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%.1f hours", d.Hours())
}
