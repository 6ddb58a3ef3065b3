// Package postgres reads flyer price records straight from the Postgres
// database behind the PostgREST endpoint.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/infrastructure/postgrest"
	"github.com/flyerlens/backend/internal/logging"
)

var columns = []string{
	postgrest.ColumnItem,
	postgrest.ColumnBrand,
	postgrest.ColumnQuantity,
	postgrest.ColumnUnit,
	postgrest.ColumnUnitPrice,
	postgrest.ColumnStoreName,
	postgrest.ColumnCategory,
	postgrest.ColumnDate,
}

type Source struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// NewSource connects a pool to dsn. table may be schema qualified.
func NewSource(ctx context.Context, dsn, table string) (*Source, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &Source{pool: pool, table: table, logger: logging.Component("postgres")}, nil
}

func (s *Source) Close() {
	s.pool.Close()
}

// FetchRecords loads every row, most recent first. Columns are read as
// text so the same tolerant parsing applies as for the REST source.
func (s *Source) FetchRecords(ctx context.Context) ([]domain.PriceRecord, error) {
	rows, err := s.pool.Query(ctx, selectQuery(s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	defer rows.Close()

	var records []domain.PriceRecord
	for rows.Next() {
		values := make([]*string, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
		}
		records = append(records, recordFromText(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}

	s.logger.Debug().Int("records", len(records)).Str("table", s.table).Msg("fetched records")
	return records, nil
}

func selectQuery(table string) string {
	selected := make([]string, len(columns))
	for i, c := range columns {
		selected[i] = pgx.Identifier{c}.Sanitize() + "::text"
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC NULLS LAST",
		strings.Join(selected, ", "), pgx.Identifier(strings.Split(table, ".")).Sanitize(), pgx.Identifier{postgrest.ColumnDate}.Sanitize())
}

func recordFromText(values []*string) domain.PriceRecord {
	row := make(map[string]interface{}, len(columns))
	for i, c := range columns {
		if values[i] != nil {
			row[c] = *values[i]
		}
	}
	return postgrest.MapRow(row)
}
