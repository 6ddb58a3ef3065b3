package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/flyerlens/backend/internal/domain"
)

const weekDuration = 7 * 24 * time.Hour

// Evaluate computes the deal insight of item against its SKU statistics and
// the other records of the same week. It returns false when the SKU has no
// statistics or the item has no normalized price.
func (a *Analytics) Evaluate(item domain.PriceRecord, weekContext []domain.PriceRecord, now time.Time) (domain.DealInsight, bool) {
	if a == nil {
		return domain.DealInsight{}, false
	}
	key := SKU(item)
	stats, ok := a.Stats[key]
	if !ok {
		return domain.DealInsight{}, false
	}
	value, ok := NormalizedUnitPrice(item)
	if !ok {
		return domain.DealInsight{}, false
	}

	history := a.History[key]
	insight := domain.DealInsight{
		SKU:              key,
		Value:            value,
		Basis:            BasisFor(item.Unit),
		PercentVsAverage: percentDiff(value, stats.Average),
		Percentile:       Percentile(history, value),
		Stats:            stats,
	}

	if best, store, ok := bestCompetitor(item, key, weekContext); ok {
		pct := percentDiff(value, best)
		insight.PercentVsBestCompetitor = &pct
		insight.BestCompetitorStore = store
	}

	if seen, ok := lastSeenAtPrice(item, value, history, a.opts.SimilarityTolerance); ok {
		weeks := int(math.Round(math.Abs(float64(now.Sub(seen))) / float64(weekDuration)))
		insight.WeeksSinceLastSeen = &weeks
	}

	insight.Badge = Classify(insight.Percentile, value, stats.Average, a.opts)
	insight.BadgeLabel = insight.Badge.Label()
	return insight, true
}

// Classify assigns the badge tier; the first matching rule wins
func Classify(percentile, value, average float64, opts Options) domain.BadgeTier {
	switch {
	case percentile <= opts.BestEverPercentile:
		return domain.BadgeBestEver
	case percentile <= opts.ExcellentPercentile:
		return domain.BadgeExcellent
	case value < average:
		return domain.BadgeGood
	default:
		return domain.BadgeRegularHigh
	}
}

// Percentile ranks value among the history values: the share of values less
// than or equal to it, in percent. An empty history ranks at 100.
func Percentile(history []domain.HistoryEntry, value float64) float64 {
	if len(history) == 0 {
		return 100
	}
	values := make([]float64, len(history))
	for i, h := range history {
		values[i] = h.Value
	}
	sort.Float64s(values)
	rank := sort.Search(len(values), func(i int) bool { return values[i] > value })
	return float64(rank) / float64(len(values)) * 100
}

// bestCompetitor finds the lowest normalized price among the other offers of
// the same SKU in the week context, the item's own store included
func bestCompetitor(item domain.PriceRecord, key string, weekContext []domain.PriceRecord) (float64, string, bool) {
	found := false
	best, bestStore := 0.0, ""
	for _, other := range weekContext {
		if isSameOffer(item, other) || SKU(other) != key {
			continue
		}
		v, ok := NormalizedUnitPrice(other)
		if !ok {
			continue
		}
		if !found || v < best {
			best, bestStore, found = v, other.StoreName, true
		}
	}
	return best, bestStore, found
}

// isSameOffer reports whether other is the item itself rather than a sibling
// offer. Repeated rows of the same store, date and price count as the item.
func isSameOffer(item, other domain.PriceRecord) bool {
	return normalizeText(other.StoreName) == normalizeText(item.StoreName) &&
		strings.TrimSpace(other.Date) == strings.TrimSpace(item.Date) &&
		other.Price() == item.Price()
}

// lastSeenAtPrice returns the date of the newest observation within tolerance
// of value that is not from the item's own date
func lastSeenAtPrice(item domain.PriceRecord, value float64, history []domain.HistoryEntry, tolerance float64) (time.Time, bool) {
	itemDate, itemHasDate := item.ParsedDate()
	for _, h := range history {
		if !h.HasDate || (itemHasDate && h.Date.Equal(itemDate)) {
			continue
		}
		if math.Abs((h.Value-value)/value) <= tolerance {
			return h.Date, true
		}
	}
	return time.Time{}, false
}

func percentDiff(value, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (value - reference) / reference * 100
}

// SameStore reports whether two store names refer to the same store
func SameStore(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
