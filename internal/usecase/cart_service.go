package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
)

const (
	otherStores   = "Others"
	miscCategory  = "Misc"
	defaultBudget = 100
)

// SnapshotProvider exposes the current analysed dataset
type SnapshotProvider interface {
	Snapshot() (*Snapshot, error)
}

// CartServiceConfig holds configuration for the cart service
type CartServiceConfig struct {
	DefaultBudget decimal.Decimal
	Clock         func() time.Time
}

// CartService manages the shopping list and its budget
type CartService struct {
	repo          domain.CartRepository
	catalog       SnapshotProvider
	defaultBudget decimal.Decimal
	now           func() time.Time
	newID         func() string
}

// NewCartService creates a cart service. catalog may be nil, in which case
// savings are never computed.
func NewCartService(repo domain.CartRepository, catalog SnapshotProvider, config CartServiceConfig) *CartService {
	budget := config.DefaultBudget
	if budget.IsZero() {
		budget = decimal.NewFromInt(defaultBudget)
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	return &CartService{
		repo:          repo,
		catalog:       catalog,
		defaultBudget: budget,
		now:           clock,
		newID:         uuid.NewString,
	}
}

// Add saves a record to the list. The same product from the same store
// can only be listed once.
func (s *CartService) Add(ctx context.Context, record domain.PriceRecord) (*domain.CartEntry, error) {
	if strings.TrimSpace(record.Item) == "" {
		return nil, fmt.Errorf("%w: item name is required", domain.ErrInvalidRequest)
	}

	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sku := analytics.SKU(record)
	for _, e := range entries {
		if analytics.SKU(e.Record) == sku && analytics.SameStore(e.Record.StoreName, record.StoreName) {
			return nil, domain.ErrDuplicateCartItem
		}
	}

	entry := domain.CartEntry{
		ID:      s.newID(),
		Record:  record,
		AddedAt: s.now().UTC(),
	}
	if err := s.repo.Add(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Remove deletes one entry
func (s *CartService) Remove(ctx context.Context, id string) error {
	return s.repo.Remove(ctx, id)
}

// Clear empties the list
func (s *CartService) Clear(ctx context.Context) error {
	return s.repo.Clear(ctx)
}

// SetBudget stores the shopping budget
func (s *CartService) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: budget cannot be negative", domain.ErrInvalidRequest)
	}
	return s.repo.SetBudget(ctx, amount.Round(2))
}

// Summary groups the list by store then category and totals it against
// the budget
func (s *CartService) Summary(ctx context.Context) (*domain.CartSummary, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	budget, ok, err := s.repo.Budget(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		budget = s.defaultBudget
	}

	var stats *analytics.Analytics
	if s.catalog != nil {
		if snap, err := s.catalog.Snapshot(); err == nil {
			stats = snap.Analytics
		}
	}

	total := decimal.Zero
	savings := decimal.Zero
	byStore := make(map[string]map[string][]domain.CartEntry)
	for _, e := range entries {
		price := decimal.NewFromFloat(e.Record.Price())
		total = total.Add(price)
		savings = savings.Add(entrySavings(e.Record, stats))

		store := groupName(e.Record.StoreName, otherStores)
		category := groupName(e.Record.Category, miscCategory)
		if byStore[store] == nil {
			byStore[store] = make(map[string][]domain.CartEntry)
		}
		byStore[store][category] = append(byStore[store][category], e)
	}

	summary := &domain.CartSummary{
		Stores:    make([]domain.CartStoreGroup, 0, len(byStore)),
		ItemCount: len(entries),
		Total:     total.Round(2),
		Savings:   savings.Round(2),
		Budget:    budget.Round(2),
	}
	summary.Remaining = summary.Budget.Sub(summary.Total)
	summary.OverBudget = summary.Budget.IsPositive() && summary.Total.GreaterThan(summary.Budget)

	for _, store := range sortedKeys(byStore) {
		group := domain.CartStoreGroup{Store: store, Subtotal: decimal.Zero}
		categories := byStore[store]
		for _, category := range sortedKeys(categories) {
			for _, e := range categories[category] {
				group.Subtotal = group.Subtotal.Add(decimal.NewFromFloat(e.Record.Price()))
			}
			group.Categories = append(group.Categories, domain.CartCategoryGroup{
				Category: category,
				Entries:  categories[category],
			})
		}
		group.Subtotal = group.Subtotal.Round(2)
		summary.Stores = append(summary.Stores, group)
	}

	return summary, nil
}

// entrySavings is what buying this offer saves against the product's
// average normalized price, expressed in shelf-price dollars
func entrySavings(r domain.PriceRecord, stats *analytics.Analytics) decimal.Decimal {
	if stats == nil || r.Price() <= 0 {
		return decimal.Zero
	}
	value, ok := analytics.NormalizedUnitPrice(r)
	if !ok {
		return decimal.Zero
	}
	st, ok := stats.StatsOf(analytics.SKU(r))
	if !ok || st.Average <= 0 || value >= st.Average {
		return decimal.Zero
	}

	factor := decimal.NewFromFloat(r.Price()).Div(decimal.NewFromFloat(value))
	return decimal.NewFromFloat(st.Average).Sub(decimal.NewFromFloat(value)).Mul(factor)
}

func groupName(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Export writes the shopping list as CSV through exporter and returns
// where it was stored
func (s *CartService) Export(ctx context.Context, exporter domain.Exporter) (string, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return "", err
	}

	body, err := renderCartCSV(summary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExportFailure, err)
	}

	name := fmt.Sprintf("shopping-list-%s.csv", s.now().UTC().Format("20060102-150405"))
	location, err := exporter.Export(ctx, name, "text/csv", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExportFailure, err)
	}
	return location, nil
}

func renderCartCSV(summary *domain.CartSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{"store", "category", "item", "brand", "quantity", "unit", "price"}}
	for _, store := range summary.Stores {
		for _, cat := range store.Categories {
			for _, e := range cat.Entries {
				quantity := ""
				if e.Record.Quantity != nil {
					quantity = strconv.FormatFloat(*e.Record.Quantity, 'f', -1, 64)
				}
				rows = append(rows, []string{
					store.Store,
					cat.Category,
					e.Record.Item,
					e.Record.Brand,
					quantity,
					e.Record.Unit,
					decimal.NewFromFloat(e.Record.Price()).StringFixed(2),
				})
			}
		}
	}
	rows = append(rows,
		[]string{"", "", "total", "", "", "", summary.Total.StringFixed(2)},
		[]string{"", "", "budget", "", "", "", summary.Budget.StringFixed(2)},
		[]string{"", "", "savings", "", "", "", summary.Savings.StringFixed(2)},
	)

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
