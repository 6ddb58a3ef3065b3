package analytics

import (
	"sort"
	"time"

	"github.com/flyerlens/backend/internal/domain"
)

// Options tunes the statistics window and the deal classification
type Options struct {
	Window              time.Duration
	SimilarityTolerance float64
	BestEverPercentile  float64
	ExcellentPercentile float64
}

// DefaultOptions returns the standard 12-week analysis setup
func DefaultOptions() Options {
	return Options{
		Window:              84 * 24 * time.Hour,
		SimilarityTolerance: 0.02,
		BestEverPercentile:  10,
		ExcellentPercentile: 25,
	}
}

// Analytics holds the per-SKU history and statistics of one dataset load.
// It is built once and never modified afterwards.
type Analytics struct {
	History map[string][]domain.HistoryEntry
	Stats   map[string]domain.SkuStatistics
	BuiltAt time.Time
	opts    Options
}

// Build computes the history and statistics of every SKU in records.
// Histories are kept whole and sorted newest first; statistics only cover
// entries within opts.Window of now, or the whole history when none do.
func Build(records []domain.PriceRecord, now time.Time, opts Options) *Analytics {
	a := &Analytics{
		History: make(map[string][]domain.HistoryEntry),
		Stats:   make(map[string]domain.SkuStatistics),
		BuiltAt: now,
		opts:    opts,
	}

	for _, r := range records {
		value, ok := NormalizedUnitPrice(r)
		if !ok {
			continue
		}
		entry := domain.HistoryEntry{Value: value, Record: r}
		entry.Date, entry.HasDate = r.ParsedDate()
		key := SKU(r)
		a.History[key] = append(a.History[key], entry)
	}

	cutoff := now.Add(-opts.Window)
	for key, entries := range a.History {
		sortNewestFirst(entries)

		recent := make([]float64, 0, len(entries))
		for _, e := range entries {
			if e.HasDate && !e.Date.Before(cutoff) {
				recent = append(recent, e.Value)
			}
		}

		if len(recent) > 0 {
			a.Stats[key] = summarize(recent, true)
			continue
		}
		all := make([]float64, len(entries))
		for i, e := range entries {
			all[i] = e.Value
		}
		a.Stats[key] = summarize(all, false)
	}

	return a
}

// Options returns the options the analytics were built with
func (a *Analytics) Options() Options {
	return a.opts
}

// HistoryOf returns the full newest-first history of a SKU
func (a *Analytics) HistoryOf(sku string) []domain.HistoryEntry {
	if a == nil {
		return nil
	}
	return a.History[sku]
}

// StatsOf returns the statistics of a SKU
func (a *Analytics) StatsOf(sku string) (domain.SkuStatistics, bool) {
	if a == nil {
		return domain.SkuStatistics{}, false
	}
	s, ok := a.Stats[sku]
	return s, ok
}

// sortNewestFirst orders entries by date descending; undated entries sort last
func sortNewestFirst(entries []domain.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.HasDate != b.HasDate {
			return a.HasDate
		}
		return a.Date.After(b.Date)
	})
}

func summarize(values []float64, windowed bool) domain.SkuStatistics {
	stats := domain.SkuStatistics{
		Min:      values[0],
		Max:      values[0],
		Count:    len(values),
		Windowed: windowed,
	}
	sum := 0.0
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Average = sum / float64(len(values))
	return stats
}
