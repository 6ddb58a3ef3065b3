// Package analytics turns a flat list of price records into comparable unit
// prices, per-product statistics and deal insights. Every function here is
// pure and total: degraded input yields a false/nil result, never a panic.
package analytics

import (
	"math"
	"strings"

	"github.com/flyerlens/backend/internal/domain"
)

// Display bases for normalized prices
const (
	BasisPerUnit  = "$/unit"
	BasisPer100g  = "$/100g"
	BasisPer100ml = "$/100ml"
)

// NormalizedUnitPrice returns the record's price per 100 g, per 100 ml or per
// unit. The second return value is false when quantity, unit or price is
// missing, zero, negative or not finite.
func NormalizedUnitPrice(r domain.PriceRecord) (float64, bool) {
	if r.Quantity == nil || r.UnitPrice == nil {
		return 0, false
	}
	return Normalize(*r.Quantity, *r.UnitPrice, r.Unit)
}

// Normalize applies the unit policy to a raw (quantity, price, unit) triple.
func Normalize(quantity, price float64, unit string) (float64, bool) {
	u := normalizeUnit(unit)
	if u == "" || !usable(quantity) || !usable(price) {
		return 0, false
	}

	perUnit := price / quantity
	switch u {
	case "g", "ml":
		return perUnit * 100, true
	case "kg", "l":
		return perUnit / 10, true
	default:
		// "un" and undeclared units stay per declared unit
		return perUnit, true
	}
}

// BasisFor returns the display basis of a normalized price for the given unit
func BasisFor(unit string) string {
	switch u := normalizeUnit(unit); u {
	case "un":
		return BasisPerUnit
	case "g", "kg":
		return BasisPer100g
	case "ml", "l":
		return BasisPer100ml
	case "":
		return ""
	default:
		return "$/" + u
	}
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
