package analytics

import (
	"math"
	"sort"

	"github.com/flyerlens/backend/internal/domain"
)

// SortMode selects how a list of records is ordered
type SortMode string

const (
	SortNone          SortMode = ""
	SortPriceAsc      SortMode = "price-asc"
	SortPriceDesc     SortMode = "price-desc"
	SortUnitPriceAsc  SortMode = "unit-price-asc"
	SortUnitPriceDesc SortMode = "unit-price-desc"
)

// ParseSortMode validates a sort mode name; empty means unsorted
func ParseSortMode(s string) (SortMode, bool) {
	switch m := SortMode(s); m {
	case SortNone, SortPriceAsc, SortPriceDesc, SortUnitPriceAsc, SortUnitPriceDesc:
		return m, true
	}
	return SortNone, false
}

// SortRecords returns a sorted copy of records. Missing shelf prices count as
// zero; records without a normalized price always go last in unit-price modes.
func SortRecords(records []domain.PriceRecord, mode SortMode) []domain.PriceRecord {
	sorted := make([]domain.PriceRecord, len(records))
	copy(sorted, records)

	switch mode {
	case SortPriceAsc:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price() < sorted[j].Price() })
	case SortPriceDesc:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price() > sorted[j].Price() })
	case SortUnitPriceAsc, SortUnitPriceDesc:
		desc := mode == SortUnitPriceDesc
		sort.SliceStable(sorted, func(i, j int) bool {
			a, aok := NormalizedUnitPrice(sorted[i])
			b, bok := NormalizedUnitPrice(sorted[j])
			if !aok || !bok {
				return aok && !bok
			}
			if desc {
				return a > b
			}
			return a < b
		})
	}
	return sorted
}

// CompactGroup is one product (name and brand) with its cheapest offer first
type CompactGroup struct {
	Key    string               `json:"key"`
	Best   domain.PriceRecord   `json:"best"`
	Others []domain.PriceRecord `json:"others"`
}

// CompactGroups collapses records of the same product into one group each,
// in order of first appearance. Within a group, offers are ranked by unit
// price, then by shelf price for offers without a unit price.
func CompactGroups(records []domain.PriceRecord) []CompactGroup {
	order := make([]string, 0)
	members := make(map[string][]domain.PriceRecord)
	for _, r := range records {
		key := ProductKey(r)
		if _, seen := members[key]; !seen {
			order = append(order, key)
		}
		members[key] = append(members[key], r)
	}

	groups := make([]CompactGroup, 0, len(order))
	for _, key := range order {
		offers := members[key]
		sort.SliceStable(offers, func(i, j int) bool {
			a, aok := NormalizedUnitPrice(offers[i])
			b, bok := NormalizedUnitPrice(offers[j])
			switch {
			case aok && bok:
				return a < b
			case aok != bok:
				return aok
			default:
				return shelfPriceOrInf(offers[i]) < shelfPriceOrInf(offers[j])
			}
		})
		groups = append(groups, CompactGroup{Key: key, Best: offers[0], Others: offers[1:]})
	}
	return groups
}

func shelfPriceOrInf(r domain.PriceRecord) float64 {
	if r.UnitPrice == nil || *r.UnitPrice == 0 {
		return math.Inf(1)
	}
	return *r.UnitPrice
}
