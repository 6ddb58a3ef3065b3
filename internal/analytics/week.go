package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flyerlens/backend/internal/domain"
)

// WeekBuckets maps an ISO week key (YYYY-Wnn) to the records of that week
type WeekBuckets map[string][]domain.PriceRecord

// ISOWeek returns the ISO-8601 week-numbering year and week of t.
// A late-December date can belong to week 1 of the next year and an early
// January date to the last week of the previous one.
func ISOWeek(t time.Time) (year, week int) {
	return t.ISOWeek()
}

// FormatWeekKey produces the zero-padded key YYYY-Wnn
func FormatWeekKey(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ParseWeekKey is the inverse of FormatWeekKey. It only accepts the exact
// shape FormatWeekKey produces: four year digits and two week digits.
func ParseWeekKey(key string) (year, week int, err error) {
	y, w, ok := strings.Cut(key, "-W")
	if !ok || len(y) != 4 || len(w) != 2 || !isDigits(y) || !isDigits(w) {
		return 0, 0, fmt.Errorf("%w: %q", domain.ErrInvalidWeekKey, key)
	}
	year, _ = strconv.Atoi(y)
	week, _ = strconv.Atoi(w)
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("%w: %q", domain.ErrInvalidWeekKey, key)
	}
	return year, week, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// WeekKeyOf returns the week key of a record's date
func WeekKeyOf(r domain.PriceRecord) (string, bool) {
	d, ok := r.ParsedDate()
	if !ok {
		return "", false
	}
	return FormatWeekKey(ISOWeek(d)), true
}

// GroupByWeek buckets records by ISO week. Records without a usable date are
// left out.
func GroupByWeek(records []domain.PriceRecord) WeekBuckets {
	buckets := make(WeekBuckets)
	for _, r := range records {
		key, ok := WeekKeyOf(r)
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], r)
	}
	return buckets
}

// MostRecentWeek returns the largest week key. Zero-padded keys sort
// chronologically.
func MostRecentWeek(buckets WeekBuckets) (string, bool) {
	latest := ""
	for key := range buckets {
		if key > latest {
			latest = key
		}
	}
	return latest, latest != ""
}

// Keys returns the available weeks, newest first
func (b WeekBuckets) Keys() []string {
	keys := make([]string, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// PreviousWeek returns the week just older than current in a newest-first list
func PreviousWeek(keys []string, current string) (string, bool) {
	i := indexOf(keys, current)
	if i < 0 || i >= len(keys)-1 {
		return "", false
	}
	return keys[i+1], true
}

// NextWeek returns the week just newer than current in a newest-first list
func NextWeek(keys []string, current string) (string, bool) {
	i := indexOf(keys, current)
	if i <= 0 {
		return "", false
	}
	return keys[i-1], true
}

// WeekBounds returns the Monday and Sunday (UTC) of an ISO week
func WeekBounds(year, week int) (start, end time.Time) {
	// January 4th is always in week 1
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start = jan4.AddDate(0, 0, 1-weekday+(week-1)*7)
	return start, start.AddDate(0, 0, 6)
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
