package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
)

func record(item, brand string, qty float64, unit string, price float64, store, category, date string) domain.PriceRecord {
	return domain.PriceRecord{
		Item:      item,
		Brand:     brand,
		Quantity:  domain.Float64(qty),
		Unit:      unit,
		UnitPrice: domain.Float64(price),
		StoreName: store,
		Category:  category,
		Date:      date,
	}
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

var (
	laitA   = record("Lait", "X", 2, "l", 3.00, "A", "Laitiers", "2025-01-06")
	laitB   = record("Lait", "X", 2, "l", 5.00, "B", "Laitiers", "2025-01-06")
	painA   = record("Pain", "Y", 1, "un", 2.49, "A", "Boulangerie", "2025-01-13")
	painB   = record("Pain", "Y", 1, "un", 2.99, "B", "Boulangerie", "2024-12-30")
	fromage = record("Fromage", "Z", 200, "g", 4.99, "C", "", "")
)

func newLoadedCatalog(t *testing.T) (*CatalogService, *MockRecordSource) {
	t.Helper()
	source := &MockRecordSource{records: []domain.PriceRecord{laitA, laitB, painA, painB, fromage}}
	service := NewCatalogService(source, nil, CatalogServiceConfig{Clock: fixedClock("2025-01-15")})
	_, err := service.Refresh(context.Background())
	require.NoError(t, err)
	return service, source
}

func TestCatalogService_NotLoaded(t *testing.T) {
	service := NewCatalogService(&MockRecordSource{}, nil, CatalogServiceConfig{})

	_, err := service.WeekView("", Query{})
	assert.ErrorIs(t, err, domain.ErrNotLoaded)

	_, err = service.Weeks()
	assert.ErrorIs(t, err, domain.ErrNotLoaded)

	_, err = service.History("x")
	assert.ErrorIs(t, err, domain.ErrNotLoaded)
}

func TestCatalogService_Weeks(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	weeks, err := service.Weeks()
	require.NoError(t, err)
	require.Len(t, weeks, 3)

	assert.Equal(t, "2025-W03", weeks[0].Key)
	assert.Equal(t, 1, weeks[0].ItemCount)
	assert.Equal(t, "2025-01-13", weeks[0].Start.Format("2006-01-02"))
	assert.Equal(t, "2025-W02", weeks[1].Key)
	assert.Equal(t, 2, weeks[1].ItemCount)
	assert.Equal(t, "2025-W01", weeks[2].Key, "2024-12-30 belongs to the first week of 2025")
}

func TestCatalogService_WeekView(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	t.Run("latest week by default", func(t *testing.T) {
		view, err := service.WeekView("", Query{})
		require.NoError(t, err)

		require.NotNil(t, view.Summary)
		assert.Equal(t, "2025-W03", view.Summary.Key)
		assert.Equal(t, "2025-W02", view.Previous)
		assert.Empty(t, view.Next)
		require.Len(t, view.Items, 1)

		insight := view.Items[0].Insight
		require.NotNil(t, insight)
		assert.Equal(t, domain.BadgeGood, insight.Badge)
		assert.Nil(t, insight.PercentVsBestCompetitor, "bread has no other offer this week")
	})

	t.Run("explicit week with sort", func(t *testing.T) {
		view, err := service.WeekView("2025-W02", Query{Sort: analytics.SortPriceDesc})
		require.NoError(t, err)

		assert.Equal(t, "2025-W01", view.Previous)
		assert.Equal(t, "2025-W03", view.Next)
		assert.Equal(t, 2, view.Total)
		require.Len(t, view.Items, 2)
		assert.Equal(t, "B", view.Items[0].Record.StoreName)

		a := view.Items[1]
		require.NotNil(t, a.NormalizedPrice)
		assert.InDelta(t, 0.15, *a.NormalizedPrice, 1e-9)
		assert.Equal(t, analytics.BasisPer100ml, a.Basis)
		require.NotNil(t, a.Insight)
		assert.InDelta(t, -25, a.Insight.PercentVsAverage, 1e-9)
		assert.InDelta(t, -40, *a.Insight.PercentVsBestCompetitor, 1e-9)
		assert.Equal(t, domain.BadgeGood, a.Insight.Badge)
	})

	t.Run("filters keep the whole week as comparison context", func(t *testing.T) {
		view, err := service.WeekView("2025-W02", Query{Stores: []string{"a"}})
		require.NoError(t, err)

		assert.Equal(t, 2, view.Total)
		assert.Equal(t, 1, view.Matched)
		require.Len(t, view.Items, 1)
		require.NotNil(t, view.Items[0].Insight.PercentVsBestCompetitor)
		assert.Equal(t, "B", view.Items[0].Insight.BestCompetitorStore)
	})

	t.Run("compact mode", func(t *testing.T) {
		view, err := service.WeekView("2025-W02", Query{Compact: true})
		require.NoError(t, err)

		assert.Empty(t, view.Items)
		require.Len(t, view.Groups, 1)
		assert.Equal(t, "A", view.Groups[0].Best.Record.StoreName)
		require.Len(t, view.Groups[0].Others, 1)
		assert.Equal(t, "B", view.Groups[0].Others[0].Record.StoreName)
	})

	t.Run("unknown week", func(t *testing.T) {
		_, err := service.WeekView("2024-W10", Query{})
		assert.ErrorIs(t, err, domain.ErrWeekNotFound)
	})

	t.Run("malformed week", func(t *testing.T) {
		_, err := service.WeekView("last-week", Query{})
		assert.ErrorIs(t, err, domain.ErrInvalidWeekKey)
	})
}

func TestCatalogService_AllItems(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	view, err := service.AllItems(Query{})
	require.NoError(t, err)

	assert.Nil(t, view.Summary)
	assert.Equal(t, 5, view.Total)
	require.Len(t, view.Items, 5)

	undated := view.Items[4]
	assert.Equal(t, "Fromage", undated.Record.Item)
	require.NotNil(t, undated.Insight)
	assert.Equal(t, domain.BadgeRegularHigh, undated.Insight.Badge)
	assert.False(t, undated.Insight.Stats.Windowed)
}

func TestCatalogService_WeekView_NoDatedRecords(t *testing.T) {
	source := &MockRecordSource{records: []domain.PriceRecord{fromage}}
	service := NewCatalogService(source, nil, CatalogServiceConfig{})
	_, err := service.Refresh(context.Background())
	require.NoError(t, err)

	view, err := service.WeekView(LatestWeek, Query{})
	require.NoError(t, err)
	assert.Nil(t, view.Summary)
	assert.Len(t, view.Items, 1)
}

func TestCatalogService_Evaluate(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	t.Run("ad hoc record uses its own week", func(t *testing.T) {
		item := record("Lait", "X", 2, "l", 2.50, "D", "", "2025-01-06")
		insight, ok, err := service.Evaluate(item, "")
		require.NoError(t, err)
		require.True(t, ok)

		assert.InDelta(t, 0.125, insight.Value, 1e-9)
		assert.InDelta(t, 0, insight.Percentile, 1e-9)
		assert.Equal(t, domain.BadgeBestEver, insight.Badge)
		assert.Equal(t, "A", insight.BestCompetitorStore)
		assert.InDelta(t, -16.6667, *insight.PercentVsBestCompetitor, 1e-3)
	})

	t.Run("unknown product is unavailable", func(t *testing.T) {
		_, ok, err := service.Evaluate(record("Thé", "T", 20, "un", 3, "A", "", ""), "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid week", func(t *testing.T) {
		_, _, err := service.Evaluate(laitA, "bad")
		assert.ErrorIs(t, err, domain.ErrInvalidWeekKey)
	})
}

func TestCatalogService_History(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	history, err := service.History(analytics.SKU(laitA))
	require.NoError(t, err)

	assert.Equal(t, "Lait - X", history.Title)
	assert.Equal(t, "l", history.Unit)
	assert.Equal(t, 2, history.Stats.Count)
	require.Len(t, history.Series, 2)
	require.Len(t, history.Series["A"], 1)
	assert.Equal(t, 3.00, history.Series["A"][0].Price)
	assert.Equal(t, "2025-W02", history.Series["A"][0].Week)
	assert.InDelta(t, 3.00, history.IdealZone, 1e-9)

	_, err = service.History("missing__sku____")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCatalogService_Deals(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	deals, err := service.Deals("2025-W02", domain.BadgeGood)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "A", deals[0].Record.StoreName)

	all, err := service.Deals("2025-W02", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Record.StoreName)
}

func TestCatalogService_Filters(t *testing.T) {
	service, _ := newLoadedCatalog(t)

	filters, err := service.Filters()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, filters.Stores)
	assert.Equal(t, []string{"Boulangerie", "Laitiers"}, filters.Categories)
}

func TestCatalogService_RefreshFailureKeepsSnapshot(t *testing.T) {
	service, source := newLoadedCatalog(t)
	before, _ := service.Snapshot()

	source.mu.Lock()
	source.err = errors.New("connection refused")
	source.mu.Unlock()

	_, err := service.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceFailure)

	after, err := service.Snapshot()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestCatalogService_ConcurrentRefreshSharesLoad(t *testing.T) {
	source := &MockRecordSource{records: []domain.PriceRecord{laitA}, release: make(chan struct{})}
	service := NewCatalogService(source, nil, CatalogServiceConfig{})

	var wg sync.WaitGroup
	results := make([]*Snapshot, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := service.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}

	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	assert.Equal(t, 1, source.Calls())
	for _, snap := range results {
		assert.Same(t, results[0], snap)
	}
}

func TestCatalogService_Reload(t *testing.T) {
	cache := NewMockCacheRepository()
	source := &MockRecordSource{records: []domain.PriceRecord{laitA}}
	cached := NewCachedRecordSource(source, cache, time.Minute)
	service := NewCatalogService(cached, nil, CatalogServiceConfig{})
	ctx := context.Background()

	_, err := service.Refresh(ctx)
	require.NoError(t, err)
	_, err = service.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.Calls(), "second refresh served from cache")

	_, err = service.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.Calls())
	assert.Equal(t, 1, cache.deleteCalls)
}

func weeklyRecords(item string, latest time.Time, prices []float64) []domain.PriceRecord {
	records := make([]domain.PriceRecord, 0, len(prices))
	for i, p := range prices {
		date := latest.AddDate(0, 0, -7*i).Format("2006-01-02")
		records = append(records, record(item, "V", 1, "un", p, "A", "Fruits", date))
	}
	return records
}

func TestCatalogService_PublishesBestDeals(t *testing.T) {
	latest := time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)
	records := weeklyRecords("Pomme", latest, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	t.Run("publishes best-ever items of the latest week", func(t *testing.T) {
		publisher := &MockDealPublisher{}
		service := NewCatalogService(&MockRecordSource{records: records}, publisher, CatalogServiceConfig{Clock: fixedClock("2025-01-15")})

		_, err := service.Refresh(context.Background())
		require.NoError(t, err)

		require.Len(t, publisher.published, 1)
		alerts := publisher.published[0]
		require.Len(t, alerts, 1)
		assert.Equal(t, "2025-W03", alerts[0].Week)
		assert.Equal(t, domain.BadgeBestEver, alerts[0].Insight.Badge)
	})

	t.Run("publish failure does not fail the refresh", func(t *testing.T) {
		publisher := &MockDealPublisher{err: domain.ErrPublishFailure}
		service := NewCatalogService(&MockRecordSource{records: records}, publisher, CatalogServiceConfig{Clock: fixedClock("2025-01-15")})

		_, err := service.Refresh(context.Background())
		assert.NoError(t, err)
	})

	t.Run("nothing to publish", func(t *testing.T) {
		publisher := &MockDealPublisher{}
		service := NewCatalogService(&MockRecordSource{records: []domain.PriceRecord{laitA, laitB}}, publisher, CatalogServiceConfig{})

		_, err := service.Refresh(context.Background())
		require.NoError(t, err)
		assert.Empty(t, publisher.published)
	})
}

func TestLowerQuartile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{7}, want: 7},
		{name: "three values take the first", values: []float64{5, 1, 3}, want: 1},
		{name: "four values take index one", values: []float64{4, 2, 8, 6}, want: 4},
		{name: "five values take index one", values: []float64{9, 3, 1, 7, 5}, want: 3},
		{name: "eight values take index two", values: []float64{8, 7, 6, 5, 4, 3, 2, 1}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lowerQuartile(tt.values))
		})
	}
}

func TestLowerQuartileLeavesInputUnsorted(t *testing.T) {
	values := []float64{4, 2, 8, 6}
	lowerQuartile(values)
	assert.Equal(t, []float64{4, 2, 8, 6}, values)
}
