// Package app wires configuration into the services shared by the API
// server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/flyerlens/backend/config"
	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/infrastructure/cache"
	"github.com/flyerlens/backend/internal/infrastructure/csvfile"
	"github.com/flyerlens/backend/internal/infrastructure/export"
	"github.com/flyerlens/backend/internal/infrastructure/kafka"
	"github.com/flyerlens/backend/internal/infrastructure/postgres"
	"github.com/flyerlens/backend/internal/infrastructure/postgrest"
	"github.com/flyerlens/backend/internal/infrastructure/sqlite"
	"github.com/flyerlens/backend/internal/logging"
	"github.com/flyerlens/backend/internal/usecase"
)

// App holds the long-lived services and the resources they own
type App struct {
	Config   *config.Config
	Catalog  *usecase.CatalogService
	Cart     *usecase.CartService
	Exporter domain.Exporter

	logger  zerolog.Logger
	closers []func() error
}

// NewCatalogOnly builds the record source and catalog without the shopping
// list, for read-only tools
func NewCatalogOnly(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.Component("app")}

	source, err := a.newSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = usecase.NewCatalogService(source, nil, usecase.CatalogServiceConfig{
		Analytics: cfg.AnalyticsOptions(),
	})
	return a, nil
}

// New builds every service the API needs
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.Component("app")}

	source, err := a.newSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	memoryCache := cache.NewMemoryCache()
	a.onClose(func() error { memoryCache.Close(); return nil })
	cached := usecase.NewCachedRecordSource(source, memoryCache, cfg.Cache.TTL)

	var publisher domain.DealPublisher
	if cfg.Alerts.Enabled {
		p, err := kafka.NewPublisher(cfg.Alerts.Brokers, cfg.Alerts.Topic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.onClose(p.Close)
		publisher = p
		a.logger.Info().Strs("brokers", cfg.Alerts.Brokers).Str("topic", cfg.Alerts.Topic).Msg("deal alerts enabled")
	}

	a.Catalog = usecase.NewCatalogService(cached, publisher, usecase.CatalogServiceConfig{
		Analytics: cfg.AnalyticsOptions(),
	})

	repo, err := sqlite.Open(ctx, cfg.Cart.SQLitePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(repo.Close)
	a.Cart = usecase.NewCartService(repo, a.Catalog, usecase.CartServiceConfig{
		DefaultBudget: decimal.NewFromFloat(cfg.Cart.DefaultBudget),
	})

	a.Exporter, err = NewExporter(ctx, cfg.Export)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) newSource(ctx context.Context) (domain.RecordSource, error) {
	source, closer, err := NewSource(ctx, a.Config)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.onClose(func() error { closer(); return nil })
	}
	a.logger.Info().Str("type", a.Config.Source.Type).Msg("record source configured")
	return source, nil
}

// NewSource creates the record source selected by cfg.Source.Type. The
// returned func releases its resources and may be nil.
func NewSource(ctx context.Context, cfg *config.Config) (domain.RecordSource, func(), error) {
	switch cfg.Source.Type {
	case "postgrest", "":
		pc := cfg.Source.PostgREST
		client := postgrest.NewClient(pc.APIKey, pc.BaseURL, pc.Table, cfg.RateLimit.Source)
		client.SetPageSize(pc.PageSize)
		client.SetDebug(cfg.Server.Environment == "development")
		return client, nil, nil
	case "postgres":
		source, err := postgres.NewSource(ctx, cfg.Source.Postgres.DSN, cfg.Source.Postgres.Table)
		if err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	case "csv":
		return csvfile.NewSource(cfg.Source.CSV.Path), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// NewExporter creates the shopping list exporter selected by cfg.Type
func NewExporter(ctx context.Context, cfg config.ExportConfig) (domain.Exporter, error) {
	switch cfg.Type {
	case "local", "":
		return export.NewLocalExporter(cfg.Dir), nil
	case "s3":
		return export.NewS3Exporter(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown export type %q", cfg.Type)
	}
}

// RunRefresher rebuilds the catalog every interval until ctx is done. Ticks
// go through the record cache; forcing a fetch is left to Reload.
// Failures keep the previous snapshot.
func (a *App) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Catalog.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("scheduled refresh failed, keeping previous snapshot")
			}
		}
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
