package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flyerlens/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data        map[string][]byte
	getError    error
	setError    error
	getCalled   int
	setCalled   int
	deleteCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	m.getCalled++
	if m.getError != nil {
		return m.getError
	}
	payload, ok := m.data[key]
	if !ok {
		return domain.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalled++
	if m.setError != nil {
		return m.setError
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = payload
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.deleteCalls++
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockRecordSource is a mock implementation of domain.RecordSource
type MockRecordSource struct {
	mu      sync.Mutex
	records []domain.PriceRecord
	err     error
	calls   int
	release chan struct{}
}

func (m *MockRecordSource) FetchRecords(ctx context.Context) ([]domain.PriceRecord, error) {
	m.mu.Lock()
	m.calls++
	records, err, release := m.records, m.err, m.release
	m.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (m *MockRecordSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockDealPublisher records published alerts
type MockDealPublisher struct {
	published [][]domain.DealAlert
	err       error
}

func (m *MockDealPublisher) Publish(ctx context.Context, alerts []domain.DealAlert) error {
	m.published = append(m.published, alerts)
	return m.err
}

// MockCartRepository is an in-memory domain.CartRepository
type MockCartRepository struct {
	entries   []domain.CartEntry
	budget    *decimal.Decimal
	listError error
}

func (m *MockCartRepository) List(ctx context.Context) ([]domain.CartEntry, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return append([]domain.CartEntry(nil), m.entries...), nil
}

func (m *MockCartRepository) Add(ctx context.Context, entry domain.CartEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockCartRepository) Remove(ctx context.Context, id string) error {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return domain.ErrCartItemNotFound
}

func (m *MockCartRepository) Clear(ctx context.Context) error {
	m.entries = nil
	return nil
}

func (m *MockCartRepository) Budget(ctx context.Context) (decimal.Decimal, bool, error) {
	if m.budget == nil {
		return decimal.Zero, false, nil
	}
	return *m.budget, true, nil
}

func (m *MockCartRepository) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	m.budget = &amount
	return nil
}

// MockExporter keeps the last exported document
type MockExporter struct {
	name        string
	contentType string
	body        []byte
	err         error
}

func (m *MockExporter) Export(ctx context.Context, name, contentType string, body []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.name, m.contentType, m.body = name, contentType, body
	return "mock://" + name, nil
}
