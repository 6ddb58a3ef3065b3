// Package csvfile reads flyer price records from a CSV export, either the
// grocery scraper's French headers or the column names used by the API.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/infrastructure/postgrest"
	"github.com/flyerlens/backend/internal/logging"
)

// headerAliases maps accepted header names to the record column they fill
var headerAliases = map[string]string{
	"date_releve":   postgrest.ColumnDate,
	"nom_produit":   postgrest.ColumnItem,
	"marque":        postgrest.ColumnBrand,
	"quantite":      postgrest.ColumnQuantity,
	"unite_mesure":  postgrest.ColumnUnit,
	"prix_unitaire": postgrest.ColumnUnitPrice,
	"epicerie":      postgrest.ColumnStoreName,
	"categorie":     postgrest.ColumnCategory,

	postgrest.ColumnItem:      postgrest.ColumnItem,
	postgrest.ColumnBrand:     postgrest.ColumnBrand,
	postgrest.ColumnQuantity:  postgrest.ColumnQuantity,
	postgrest.ColumnUnit:      postgrest.ColumnUnit,
	postgrest.ColumnUnitPrice: postgrest.ColumnUnitPrice,
	postgrest.ColumnStoreName: postgrest.ColumnStoreName,
	postgrest.ColumnDate:      postgrest.ColumnDate,
}

// Source reads the whole file on every fetch
type Source struct {
	path   string
	logger zerolog.Logger
}

func NewSource(path string) *Source {
	return &Source{path: path, logger: logging.Component("csvfile")}
}

func (s *Source) FetchRecords(ctx context.Context) ([]domain.PriceRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	defer f.Close()

	records, err := Read(ctx, f)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("path", s.path).Int("records", len(records)).Msg("read records")
	return records, nil
}

// Read parses CSV from r. The first row is the header; unknown columns
// are ignored and rows with a different field count are rejected.
func Read(ctx context.Context, r io.Reader) ([]domain.PriceRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", domain.ErrSourceFailure, err)
	}

	fields := make([]string, len(header))
	known := 0
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if column, ok := headerAliases[name]; ok {
			fields[i] = column
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("%w: no recognised columns in header %v", domain.ErrSourceFailure, header)
	}

	var records []domain.PriceRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
		}

		row := make(map[string]interface{}, known)
		for i, value := range line {
			if fields[i] != "" {
				row[fields[i]] = value
			}
		}
		records = append(records, postgrest.MapRow(row))
	}
	return records, nil
}
