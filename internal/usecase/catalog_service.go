package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/logging"
)

// LatestWeek selects the most recent week in WeekView
const LatestWeek = "latest"

// unknownStore labels history points that carry no store
const unknownStore = "Other"

// Snapshot is an immutable, fully built view of one dataset load. A new
// snapshot is built on every refresh and swapped in whole.
type Snapshot struct {
	Records   []domain.PriceRecord
	Weeks     analytics.WeekBuckets
	WeekKeys  []string // newest first
	Analytics *analytics.Analytics
	LoadedAt  time.Time
}

// NewSnapshot groups and analyses records as of now
func NewSnapshot(records []domain.PriceRecord, now time.Time, opts analytics.Options) *Snapshot {
	weeks := analytics.GroupByWeek(records)
	return &Snapshot{
		Records:   records,
		Weeks:     weeks,
		WeekKeys:  weeks.Keys(),
		Analytics: analytics.Build(records, now, opts),
		LoadedAt:  now,
	}
}

// CatalogServiceConfig holds configuration for the catalog service
type CatalogServiceConfig struct {
	Analytics analytics.Options
	Clock     func() time.Time
}

// invalidator is implemented by record sources that cache their data
type invalidator interface {
	Invalidate(ctx context.Context) error
}

// CatalogService owns the current snapshot and answers every read from it
type CatalogService struct {
	source    domain.RecordSource
	publisher domain.DealPublisher
	opts      analytics.Options
	now       func() time.Time
	snapshot  atomic.Pointer[Snapshot]
	refreshes singleflight.Group
	logger    zerolog.Logger
}

// NewCatalogService creates a catalog service. publisher may be nil.
func NewCatalogService(source domain.RecordSource, publisher domain.DealPublisher, config CatalogServiceConfig) *CatalogService {
	opts := config.Analytics
	if opts.Window == 0 {
		opts = analytics.DefaultOptions()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	return &CatalogService{
		source:    source,
		publisher: publisher,
		opts:      opts,
		now:       clock,
		logger:    logging.Component("catalog"),
	}
}

// Refresh loads the dataset and swaps in a new snapshot. Concurrent calls
// share a single load.
func (s *CatalogService) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, shared := s.refreshes.Do("refresh", func() (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug().Msg("joined in-flight refresh")
	}
	return v.(*Snapshot), nil
}

// Reload drops any cached copy of the dataset before refreshing
func (s *CatalogService) Reload(ctx context.Context) (*Snapshot, error) {
	if inv, ok := s.source.(invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("could not invalidate cached records")
		}
	}
	return s.Refresh(ctx)
}

func (s *CatalogService) load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	records, err := s.source.FetchRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("record fetch failed")
		if errors.Is(err, domain.ErrSourceFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}

	snap := NewSnapshot(records, s.now(), s.opts)
	s.snapshot.Store(snap)

	s.logger.Info().
		Int("records", len(records)).
		Int("weeks", len(snap.WeekKeys)).
		Int("skus", len(snap.Analytics.History)).
		Dur("took", time.Since(start)).
		Msg("snapshot built")

	s.publishBestDeals(ctx, snap)
	return snap, nil
}

// Snapshot returns the current snapshot
func (s *CatalogService) Snapshot() (*Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, domain.ErrNotLoaded
	}
	return snap, nil
}

// Weeks lists the weeks that have records, newest first
func (s *CatalogService) Weeks() ([]domain.WeekSummary, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.WeekSummary, 0, len(snap.WeekKeys))
	for _, key := range snap.WeekKeys {
		summary, err := weekSummary(key, len(snap.Weeks[key]))
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func weekSummary(key string, count int) (domain.WeekSummary, error) {
	year, week, err := analytics.ParseWeekKey(key)
	if err != nil {
		return domain.WeekSummary{}, err
	}
	start, end := analytics.WeekBounds(year, week)
	return domain.WeekSummary{
		Key:       key,
		Year:      year,
		Week:      week,
		Start:     start,
		End:       end,
		ItemCount: count,
	}, nil
}

// ItemView is one displayed record with its derived figures
type ItemView struct {
	Record          domain.PriceRecord  `json:"record"`
	SKU             string              `json:"sku"`
	NormalizedPrice *float64            `json:"normalizedPrice,omitempty"`
	Basis           string              `json:"basis,omitempty"`
	Insight         *domain.DealInsight `json:"insight,omitempty"`
}

// CompactItemView groups the offers for one product, cheapest first
type CompactItemView struct {
	Key    string     `json:"key"`
	Best   ItemView   `json:"best"`
	Others []ItemView `json:"others"`
}

// WeekView is the filtered, sorted content of one week (or of the whole
// dataset when no week applies)
type WeekView struct {
	Summary  *domain.WeekSummary `json:"summary,omitempty"`
	Previous string              `json:"previous,omitempty"`
	Next     string              `json:"next,omitempty"`
	Total    int                 `json:"total"`
	Matched  int                 `json:"matched"`
	Items    []ItemView          `json:"items,omitempty"`
	Groups   []CompactItemView   `json:"groups,omitempty"`
}

// WeekView returns the records of a week. An empty key or "latest" selects
// the most recent week; with no dated records at all the whole dataset is
// returned instead.
func (s *CatalogService) WeekView(weekKey string, q Query) (*WeekView, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	key, err := resolveWeek(snap, weekKey)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return s.allView(snap, q), nil
	}

	records := snap.Weeks[key]
	summary, _ := weekSummary(key, len(records))
	view := s.buildView(snap, records, q, func(domain.PriceRecord) []domain.PriceRecord { return records })
	view.Summary = &summary
	view.Previous, _ = analytics.PreviousWeek(snap.WeekKeys, key)
	view.Next, _ = analytics.NextWeek(snap.WeekKeys, key)
	return view, nil
}

// AllItems returns every record regardless of week
func (s *CatalogService) AllItems(q Query) (*WeekView, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.allView(snap, q), nil
}

func (s *CatalogService) allView(snap *Snapshot, q Query) *WeekView {
	return s.buildView(snap, snap.Records, q, snap.contextFor)
}

// resolveWeek turns a requested key into a bucket key, "" meaning no week
func resolveWeek(snap *Snapshot, weekKey string) (string, error) {
	weekKey = strings.TrimSpace(weekKey)
	if weekKey == "" || strings.EqualFold(weekKey, LatestWeek) {
		key, _ := analytics.MostRecentWeek(snap.Weeks)
		return key, nil
	}

	year, week, err := analytics.ParseWeekKey(weekKey)
	if err != nil {
		return "", err
	}
	key := analytics.FormatWeekKey(year, week)
	if _, ok := snap.Weeks[key]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrWeekNotFound, key)
	}
	return key, nil
}

// contextFor returns the records an item is compared against: its own week
// when dated, otherwise every undated record.
func (snap *Snapshot) contextFor(r domain.PriceRecord) []domain.PriceRecord {
	if key, ok := analytics.WeekKeyOf(r); ok {
		return snap.Weeks[key]
	}
	var undated []domain.PriceRecord
	for _, other := range snap.Records {
		if _, ok := other.ParsedDate(); !ok {
			undated = append(undated, other)
		}
	}
	return undated
}

func (s *CatalogService) buildView(
	snap *Snapshot,
	records []domain.PriceRecord,
	q Query,
	contextFor func(domain.PriceRecord) []domain.PriceRecord,
) *WeekView {
	now := s.now()
	filtered := analytics.SortRecords(q.Filter(records), q.Sort)

	item := func(r domain.PriceRecord) ItemView {
		return s.itemView(snap, r, contextFor(r), now)
	}

	view := &WeekView{Total: len(records), Matched: len(filtered)}
	if q.Compact {
		for _, g := range analytics.CompactGroups(filtered) {
			group := CompactItemView{Key: g.Key, Best: item(g.Best), Others: make([]ItemView, 0, len(g.Others))}
			for _, o := range g.Others {
				group.Others = append(group.Others, item(o))
			}
			view.Groups = append(view.Groups, group)
		}
		return view
	}

	view.Items = make([]ItemView, 0, len(filtered))
	for _, r := range filtered {
		view.Items = append(view.Items, item(r))
	}
	return view
}

func (s *CatalogService) itemView(snap *Snapshot, r domain.PriceRecord, weekContext []domain.PriceRecord, now time.Time) ItemView {
	view := ItemView{Record: r, SKU: analytics.SKU(r)}
	if v, ok := analytics.NormalizedUnitPrice(r); ok {
		view.NormalizedPrice = &v
		view.Basis = analytics.BasisFor(r.Unit)
	}
	if insight, ok := snap.Analytics.Evaluate(r, weekContext, now); ok {
		view.Insight = &insight
	}
	return view
}

// Evaluate computes the insight for an arbitrary record. weekKey selects
// the comparison week; when empty the record's own week is used. The bool
// is false when no insight is available for the record.
func (s *CatalogService) Evaluate(record domain.PriceRecord, weekKey string) (domain.DealInsight, bool, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return domain.DealInsight{}, false, err
	}

	weekContext := snap.contextFor(record)
	if strings.TrimSpace(weekKey) != "" {
		key, err := resolveWeek(snap, weekKey)
		if err != nil {
			return domain.DealInsight{}, false, err
		}
		weekContext = snap.Weeks[key]
	}

	insight, ok := snap.Analytics.Evaluate(record, weekContext, s.now())
	return insight, ok, nil
}

// History returns the per-store price history of one SKU
func (s *CatalogService) History(sku string) (*domain.PriceHistory, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	entries := snap.Analytics.HistoryOf(sku)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, sku)
	}

	ref := entries[0].Record
	title := ref.Item
	if ref.Brand != "" {
		title += " - " + ref.Brand
	}

	history := &domain.PriceHistory{
		SKU:      sku,
		Title:    title,
		Quantity: ref.Quantity,
		Unit:     ref.Unit,
		Series:   make(map[string][]domain.PricePoint),
	}
	history.Stats, _ = snap.Analytics.StatsOf(sku)

	var prices []float64
	for _, e := range entries {
		if !e.HasDate {
			continue
		}
		store := strings.TrimSpace(e.Record.StoreName)
		if store == "" {
			store = unknownStore
		}
		year, week := analytics.ISOWeek(e.Date)
		history.Series[store] = append(history.Series[store], domain.PricePoint{
			Date:            e.Date,
			Week:            analytics.FormatWeekKey(year, week),
			Price:           e.Record.Price(),
			NormalizedPrice: e.Value,
		})
		prices = append(prices, e.Record.Price())
	}

	for store := range history.Series {
		points := history.Series[store]
		sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	}
	history.IdealZone = lowerQuartile(prices)

	return history, nil
}

// lowerQuartile returns the 25th percentile of values by nearest rank
func lowerQuartile(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[int(math.Floor(float64(len(sorted))*0.25))]
}

// Deals lists the items of a week whose badge is at least minTier, best
// deals first
func (s *CatalogService) Deals(weekKey string, minTier domain.BadgeTier) ([]ItemView, error) {
	view, err := s.WeekView(weekKey, Query{})
	if err != nil {
		return nil, err
	}

	deals := make([]ItemView, 0)
	for _, item := range view.Items {
		if item.Insight != nil && item.Insight.Badge.Rank() >= minTier.Rank() {
			deals = append(deals, item)
		}
	}

	sort.SliceStable(deals, func(i, j int) bool {
		a, b := deals[i].Insight, deals[j].Insight
		if a.Badge.Rank() != b.Badge.Rank() {
			return a.Badge.Rank() > b.Badge.Rank()
		}
		return a.PercentVsAverage < b.PercentVsAverage
	})
	return deals, nil
}

// FilterOptions lists the values the filters accept
type FilterOptions struct {
	Stores     []string `json:"stores"`
	Categories []string `json:"categories"`
}

// Filters returns the distinct stores and categories of the dataset
func (s *CatalogService) Filters() (*FilterOptions, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	return &FilterOptions{
		Stores:     distinct(snap.Records, func(r domain.PriceRecord) string { return r.StoreName }),
		Categories: distinct(snap.Records, func(r domain.PriceRecord) string { return r.Category }),
	}, nil
}

func distinct(records []domain.PriceRecord, field func(domain.PriceRecord) string) []string {
	seen := make(map[string]bool)
	values := make([]string, 0)
	for _, r := range records {
		v := strings.TrimSpace(field(r))
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// publishBestDeals sends best-ever deals of the latest week to the alert
// publisher. Failures are logged only.
func (s *CatalogService) publishBestDeals(ctx context.Context, snap *Snapshot) {
	if s.publisher == nil {
		return
	}
	key, ok := analytics.MostRecentWeek(snap.Weeks)
	if !ok {
		return
	}

	now := s.now()
	week := snap.Weeks[key]
	var alerts []domain.DealAlert
	for _, r := range week {
		insight, ok := snap.Analytics.Evaluate(r, week, now)
		if ok && insight.Badge == domain.BadgeBestEver {
			alerts = append(alerts, domain.DealAlert{Week: key, Record: r, Insight: insight})
		}
	}
	if len(alerts) == 0 {
		return
	}

	if err := s.publisher.Publish(ctx, alerts); err != nil {
		s.logger.Error().Err(err).Str("week", key).Int("alerts", len(alerts)).Msg("deal alert publish failed")
		return
	}
	s.logger.Info().Str("week", key).Int("alerts", len(alerts)).Msg("deal alerts published")
}
