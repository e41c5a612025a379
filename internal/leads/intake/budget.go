package intake

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
)

var (
	amountPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(k|m)?\b`)

	currencySymbols = map[string]string{
		"$": "USD", "usd": "USD",
		"€": "EUR", "eur": "EUR",
		"£": "GBP", "gbp": "GBP",
		"aed": "AED", "chf": "CHF",
	}
	upperBoundMarkers = []string{"under", "below", "less than", "up to", "max", "<"}
	lowerBoundMarkers = []string{"over", "above", "more than", "from", "min", "+"}
)

// ParseBudget reads ranges like "$10k–20k", "Under $10k" or
// "€25,000 - €50,000". Max is 0 for open-ended budgets. Unparseable input
// keeps only Raw.
func ParseBudget(raw string) domain.Budget {
	b := domain.Budget{Raw: raw}
	lower := strings.ToLower(raw)
	b.Currency = detectCurrency(lower)

	matches := amountPattern.FindAllStringSubmatch(lower, 2)
	if len(matches) == 0 {
		return b
	}

	amounts := make([]int, len(matches))
	suffixes := make([]string, len(matches))
	for i, m := range matches {
		suffixes[i] = m[2]
		amounts[i] = parseAmount(m[1], m[2])
	}
	// "10-20k" shares the trailing multiplier.
	if len(amounts) == 2 && suffixes[0] == "" && suffixes[1] != "" {
		amounts[0] = parseAmount(matches[0][1], suffixes[1])
	}

	switch {
	case len(amounts) == 2:
		b.Min, b.Max = min(amounts[0], amounts[1]), max(amounts[0], amounts[1])
	case containsAny(lower, upperBoundMarkers):
		b.Max = amounts[0]
	case containsAny(lower, lowerBoundMarkers):
		b.Min = amounts[0]
	default:
		b.Min, b.Max = amounts[0], amounts[0]
	}
	b.Band = bandFor(b)
	return b
}

func parseAmount(digits, suffix string) int {
	clean := digits
	if i := strings.LastIndexAny(clean, ".,"); i >= 0 && len(clean)-i-1 != 3 {
		// Decimal part, as in "2.5k".
		clean = strings.NewReplacer(",", "", ".", "").Replace(clean[:i]) + "." + clean[i+1:]
	} else {
		clean = strings.NewReplacer(",", "", ".", "").Replace(clean)
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	switch suffix {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return int(v)
}

func bandFor(b domain.Budget) domain.BudgetBand {
	ref := b.Min
	if b.Max > 0 {
		ref = (b.Min + b.Max) / 2
	}
	switch {
	case ref <= 0:
		return domain.BudgetUnknown
	case ref < 10_000:
		return domain.BudgetUnder10k
	case ref < 25_000:
		return domain.Budget10to25k
	case ref < 50_000:
		return domain.Budget25to50k
	case ref < 100_000:
		return domain.Budget50to100k
	default:
		return domain.Budget100kPlus
	}
}

func detectCurrency(lower string) string {
	for _, sym := range []string{"$", "€", "£"} {
		if strings.Contains(lower, sym) {
			return currencySymbols[sym]
		}
	}
	for _, field := range strings.FieldsFunc(lower, func(r rune) bool { return r < 'a' || r > 'z' }) {
		if code, ok := currencySymbols[field]; ok {
			return code
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
