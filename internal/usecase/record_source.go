package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/logging"
)

const recordsCacheKey = "records:all"

// CachedRecordSource keeps the last fetched record set in a cache so that
// repeated refreshes within the TTL do not hit the backend.
type CachedRecordSource struct {
	source domain.RecordSource
	cache  domain.CacheRepository
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedRecordSource wraps source with cache
func NewCachedRecordSource(source domain.RecordSource, cache domain.CacheRepository, ttl time.Duration) *CachedRecordSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedRecordSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logging.Component("record-cache"),
	}
}

// FetchRecords returns the cached record set, fetching it on a miss
func (s *CachedRecordSource) FetchRecords(ctx context.Context) ([]domain.PriceRecord, error) {
	var records []domain.PriceRecord
	err := s.cache.Get(ctx, recordsCacheKey, &records)
	if err == nil {
		s.logger.Debug().Int("records", len(records)).Msg("cache hit")
		return records, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn().Err(err).Msg("cache read failed, fetching from source")
	}

	records, err = s.source.FetchRecords(ctx)
	if err != nil {
		return nil, err
	}

	// A failed cache write only costs a refetch next time
	if err := s.cache.Set(ctx, recordsCacheKey, records, s.ttl); err != nil {
		s.logger.Warn().Err(err).Msg("cache write failed")
	}
	return records, nil
}

// Invalidate drops the cached record set so the next fetch hits the source
func (s *CachedRecordSource) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, recordsCacheKey)
}
