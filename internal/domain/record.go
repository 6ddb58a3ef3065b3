package domain

import (
	"strings"
	"time"
)

// PriceRecord is one observed flyer price at one store on one date.
// Every field may be absent; numeric fields use pointers so that a missing
// value is distinguishable from zero.
type PriceRecord struct {
	Item      string   `json:"item"`
	Brand     string   `json:"brand,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	StoreName string   `json:"store_name,omitempty"`
	Category  string   `json:"categorie,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// Float64 returns a pointer to v, for building records in code and tests.
func Float64(v float64) *float64 {
	return &v
}

// dateLayouts are the date formats accepted from record sources
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05.999999",
}

// ParsedDate returns the calendar date of the record at UTC midnight.
// The second return value is false when the date is absent or unparseable.
func (r PriceRecord) ParsedDate() (time.Time, bool) {
	return ParseDate(r.Date)
}

// ParseDate parses a record date string into its calendar day (UTC midnight).
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Price returns the shelf price, or zero when absent.
func (r PriceRecord) Price() float64 {
	if r.UnitPrice == nil {
		return 0
	}
	return *r.UnitPrice
}
