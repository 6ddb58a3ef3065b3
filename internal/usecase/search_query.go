package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
)

var multiSpacePattern = regexp.MustCompile(`\s+`)

// SearchQuery matches records by item name or brand, ignoring case and accents
type SearchQuery struct {
	raw    string
	folded string
}

// NewSearchQuery prepares a free-text search
func NewSearchQuery(raw string) SearchQuery {
	return SearchQuery{raw: raw, folded: foldText(raw)}
}

// Empty reports whether the query matches everything
func (q SearchQuery) Empty() bool {
	return q.folded == ""
}

// String returns the query as typed
func (q SearchQuery) String() string {
	return q.raw
}

// Matches reports whether the record's item or brand contains the query
func (q SearchQuery) Matches(r domain.PriceRecord) bool {
	if q.Empty() {
		return true
	}
	return strings.Contains(foldText(r.Item), q.folded) || strings.Contains(foldText(r.Brand), q.folded)
}

// foldText lower-cases, strips diacritics and collapses whitespace so that
// "Crème  Glacée" and "creme glacee" compare equal.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = multiSpacePattern.ReplaceAllString(folded, " ")
	return strings.ToLower(strings.TrimSpace(folded))
}

// Query narrows and orders the records of a view
type Query struct {
	Stores   []string
	Category string
	Search   string
	Sort     analytics.SortMode
	Compact  bool
}

// matcher is a compiled Query
type matcher struct {
	stores   []string
	category string
	search   SearchQuery
}

func (q Query) matcher() matcher {
	stores := make([]string, 0, len(q.Stores))
	for _, s := range q.Stores {
		if s = strings.TrimSpace(s); s != "" {
			stores = append(stores, s)
		}
	}
	return matcher{
		stores:   stores,
		category: strings.TrimSpace(q.Category),
		search:   NewSearchQuery(q.Search),
	}
}

// Matches applies the store, category and search filters. A record with no
// store always passes the store filter.
func (m matcher) Matches(r domain.PriceRecord) bool {
	if len(m.stores) > 0 && strings.TrimSpace(r.StoreName) != "" {
		found := false
		for _, s := range m.stores {
			if analytics.SameStore(s, r.StoreName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.category != "" && !strings.EqualFold(m.category, strings.TrimSpace(r.Category)) {
		return false
	}
	return m.search.Matches(r)
}

// Filter returns the records matching the query, in input order
func (q Query) Filter(records []domain.PriceRecord) []domain.PriceRecord {
	m := q.matcher()
	out := make([]domain.PriceRecord, 0, len(records))
	for _, r := range records {
		if m.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
