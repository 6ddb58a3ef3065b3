package analytics

import (
	"strconv"
	"strings"

	"github.com/flyerlens/backend/internal/domain"
)

// skuSeparator joins key components; it does not occur in product names
const skuSeparator = "__"

// SKU derives the logical product identity of a record from its name, brand,
// quantity and unit. Records that differ in any of these normalized fields are
// different products.
func SKU(r domain.PriceRecord) string {
	return strings.Join([]string{
		normalizeText(r.Item),
		normalizeText(r.Brand),
		formatQuantity(r.Quantity),
		normalizeText(r.Unit),
	}, skuSeparator)
}

// ProductKey groups records by name and brand only, across pack sizes
func ProductKey(r domain.PriceRecord) string {
	return normalizeText(r.Item) + skuSeparator + normalizeText(r.Brand)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatQuantity(q *float64) string {
	if q == nil || *q == 0 {
		return ""
	}
	return strconv.FormatFloat(*q, 'f', -1, 64)
}
