package domain

import "time"

// BadgeTier is the discrete deal-quality classification of an item
type BadgeTier string

const (
	BadgeBestEver    BadgeTier = "best-ever"
	BadgeExcellent   BadgeTier = "excellent"
	BadgeGood        BadgeTier = "good"
	BadgeRegularHigh BadgeTier = "regular-high"
)

// Rank orders tiers from best (highest) to regular (lowest).
func (b BadgeTier) Rank() int {
	switch b {
	case BadgeBestEver:
		return 3
	case BadgeExcellent:
		return 2
	case BadgeGood:
		return 1
	default:
		return 0
	}
}

// Label is the human readable name shown next to a deal
func (b BadgeTier) Label() string {
	switch b {
	case BadgeBestEver:
		return "Best price ever"
	case BadgeExcellent:
		return "Excellent"
	case BadgeGood:
		return "Good price"
	default:
		return "Regular/high price"
	}
}

// ParseBadgeTier converts a tier name into a BadgeTier.
func ParseBadgeTier(s string) (BadgeTier, bool) {
	switch BadgeTier(s) {
	case BadgeBestEver, BadgeExcellent, BadgeGood, BadgeRegularHigh:
		return BadgeTier(s), true
	}
	return "", false
}

// HistoryEntry is one normalized observation in a SKU's price history
type HistoryEntry struct {
	Value   float64     `json:"value"`
	Date    time.Time   `json:"date,omitempty"`
	HasDate bool        `json:"hasDate"`
	Record  PriceRecord `json:"record"`
}

// SkuStatistics aggregates the normalized values of one SKU.
// Windowed is false when the analysis window was empty and the whole
// history was used instead.
type SkuStatistics struct {
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Count    int     `json:"count"`
	Windowed bool    `json:"windowed"`
}

// DealInsight is the comparative summary attached to one priced item
type DealInsight struct {
	SKU                     string        `json:"sku"`
	Value                   float64       `json:"normalizedPrice"`
	Basis                   string        `json:"basis"`
	Badge                   BadgeTier     `json:"badge"`
	BadgeLabel              string        `json:"badgeLabel"`
	Percentile              float64       `json:"percentile"`
	PercentVsAverage        float64       `json:"percentVsAverage"`
	PercentVsBestCompetitor *float64      `json:"percentVsBestCompetitor,omitempty"`
	BestCompetitorStore     string        `json:"bestCompetitorStore,omitempty"`
	WeeksSinceLastSeen      *int          `json:"weeksSinceLastSeen,omitempty"`
	Stats                   SkuStatistics `json:"stats"`
}

// WeekSummary describes one ISO week that has records
type WeekSummary struct {
	Key       string    `json:"key"`
	Year      int       `json:"year"`
	Week      int       `json:"week"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ItemCount int       `json:"itemCount"`
}

// PricePoint is one point of a per-store price series
type PricePoint struct {
	Date            time.Time `json:"date"`
	Week            string    `json:"week"`
	Price           float64   `json:"price"`
	NormalizedPrice float64   `json:"normalizedPrice"`
}

// PriceHistory is the full history of one SKU, split by store
type PriceHistory struct {
	SKU       string                  `json:"sku"`
	Title     string                  `json:"title"`
	Quantity  *float64                `json:"quantity,omitempty"`
	Unit      string                  `json:"unit,omitempty"`
	Stats     SkuStatistics           `json:"stats"`
	Series    map[string][]PricePoint `json:"series"`
	IdealZone float64                 `json:"idealZone"` // 25th percentile of shelf prices
}
