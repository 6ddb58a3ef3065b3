package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flyerlens/backend/internal/domain"
)

func TestCachedRecordSource(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches once within TTL", func(t *testing.T) {
		source := &MockRecordSource{records: []domain.PriceRecord{laitA, laitB}}
		cache := NewMockCacheRepository()
		cached := NewCachedRecordSource(source, cache, time.Minute)

		for i := 0; i < 3; i++ {
			records, err := cached.FetchRecords(ctx)
			if err != nil {
				t.Fatalf("FetchRecords() error = %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("FetchRecords() returned %d records, want 2", len(records))
			}
		}

		if source.Calls() != 1 {
			t.Errorf("source called %d times, want 1", source.Calls())
		}
		if cache.setCalled != 1 {
			t.Errorf("cache.Set called %d times, want 1", cache.setCalled)
		}
	})

	t.Run("source error is returned and not cached", func(t *testing.T) {
		source := &MockRecordSource{err: domain.ErrSourceFailure}
		cache := NewMockCacheRepository()
		cached := NewCachedRecordSource(source, cache, time.Minute)

		if _, err := cached.FetchRecords(ctx); !errors.Is(err, domain.ErrSourceFailure) {
			t.Errorf("FetchRecords() error = %v, want %v", err, domain.ErrSourceFailure)
		}
		if cache.setCalled != 0 {
			t.Errorf("cache.Set called %d times, want 0", cache.setCalled)
		}
	})

	t.Run("cache failures fall through to the source", func(t *testing.T) {
		source := &MockRecordSource{records: []domain.PriceRecord{laitA}}
		cache := NewMockCacheRepository()
		cache.getError = errors.New("corrupt entry")
		cache.setError = errors.New("out of memory")
		cached := NewCachedRecordSource(source, cache, time.Minute)

		records, err := cached.FetchRecords(ctx)
		if err != nil {
			t.Fatalf("FetchRecords() error = %v, want nil", err)
		}
		if len(records) != 1 {
			t.Errorf("FetchRecords() returned %d records, want 1", len(records))
		}
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		source := &MockRecordSource{records: []domain.PriceRecord{laitA}}
		cached := NewCachedRecordSource(source, NewMockCacheRepository(), 0)

		_, _ = cached.FetchRecords(ctx)
		if err := cached.Invalidate(ctx); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		_, _ = cached.FetchRecords(ctx)

		if source.Calls() != 2 {
			t.Errorf("source called %d times, want 2", source.Calls())
		}
	})
}
