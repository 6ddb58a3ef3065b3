package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RecordSource delivers the full set of price records
type RecordSource interface {
	FetchRecords(ctx context.Context) ([]PriceRecord, error)
}

// CacheRepository defines the interface for caching operations.
// Get decodes the cached value into dest.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CartRepository persists the shopping list and the budget
type CartRepository interface {
	List(ctx context.Context) ([]CartEntry, error)
	Add(ctx context.Context, entry CartEntry) error
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Budget(ctx context.Context) (decimal.Decimal, bool, error)
	SetBudget(ctx context.Context, amount decimal.Decimal) error
}

// DealAlert is published when a best-ever deal shows up in the latest week
type DealAlert struct {
	Week    string      `json:"week"`
	Record  PriceRecord `json:"record"`
	Insight DealInsight `json:"insight"`
}

// DealPublisher delivers deal alerts to subscribers
type DealPublisher interface {
	Publish(ctx context.Context, alerts []DealAlert) error
}

// Exporter writes a named document somewhere durable and returns its location
type Exporter interface {
	Export(ctx context.Context, name, contentType string, body []byte) (string, error)
}
