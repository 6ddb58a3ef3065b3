package postgrest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/flyerlens/backend/internal/domain"
)

// Column names of the flyer item table
const (
	ColumnItem      = "item"
	ColumnBrand     = "brand"
	ColumnQuantity  = "quantity"
	ColumnUnit      = "unit"
	ColumnUnitPrice = "unit_price"
	ColumnStoreName = "store_name"
	ColumnCategory  = "categorie"
	ColumnDate      = "date"
)

// placeholder the scraper writes for fields it could not read
const notAvailable = "N/D"

// MapRow converts one decoded table row into a PriceRecord. Numbers may
// arrive as JSON numbers or as strings using either decimal separator.
func MapRow(row map[string]interface{}) domain.PriceRecord {
	return domain.PriceRecord{
		Item:      text(row[ColumnItem]),
		Brand:     text(row[ColumnBrand]),
		Quantity:  number(row[ColumnQuantity]),
		Unit:      text(row[ColumnUnit]),
		UnitPrice: number(row[ColumnUnitPrice]),
		StoreName: text(row[ColumnStoreName]),
		Category:  text(row[ColumnCategory]),
		Date:      text(row[ColumnDate]),
	}
}

// MapRows converts a page of rows
func MapRows(rows []map[string]interface{}) []domain.PriceRecord {
	records := make([]domain.PriceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, MapRow(row))
	}
	return records
}

// text returns the trimmed string form of a value, or "" for nulls and placeholders
func text(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, notAvailable) {
		return ""
	}
	return s
}

// number parses a numeric value, returning nil when absent or not a finite number
func number(v interface{}) *float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, ok := ParseNumber(val)
		if !ok {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// digitGrouping strips the thousands separators used in French prices.
var digitGrouping = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// ParseNumber parses a decimal written with a dot or a comma separator,
// optionally followed by a currency sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "$")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" || strings.EqualFold(s, notAvailable) {
		return 0, false
	}
	s = digitGrouping.Replace(s)
	s = strings.Replace(s, ",", ".", 1)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
