package export

import (
	"fmt"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
)

// HistoryRow is one price observation in the columnar history export
type HistoryRow struct {
	SKU             string   `parquet:"name=sku, type=BYTE_ARRAY, convertedtype=UTF8"`
	Week            string   `parquet:"name=week, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date            string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Item            string   `parquet:"name=item, type=BYTE_ARRAY, convertedtype=UTF8"`
	Brand           string   `parquet:"name=brand, type=BYTE_ARRAY, convertedtype=UTF8"`
	Store           string   `parquet:"name=store, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category        string   `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity        *float64 `parquet:"name=quantity, type=DOUBLE, repetitiontype=OPTIONAL"`
	Unit            string   `parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price           *float64 `parquet:"name=price, type=DOUBLE, repetitiontype=OPTIONAL"`
	NormalizedPrice *float64 `parquet:"name=normalized_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	Basis           string   `parquet:"name=basis, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// HistoryRows flattens records into rows ordered by SKU then date
func HistoryRows(records []domain.PriceRecord) []HistoryRow {
	rows := make([]HistoryRow, 0, len(records))
	for _, r := range records {
		row := HistoryRow{
			SKU:      analytics.SKU(r),
			Date:     r.Date,
			Item:     r.Item,
			Brand:    r.Brand,
			Store:    r.StoreName,
			Category: r.Category,
			Quantity: r.Quantity,
			Unit:     r.Unit,
			Price:    r.UnitPrice,
			Basis:    analytics.BasisFor(r.Unit),
		}
		if week, ok := analytics.WeekKeyOf(r); ok {
			row.Week = week
		}
		if d, ok := r.ParsedDate(); ok {
			row.Date = d.Format("2006-01-02")
		}
		if v, ok := analytics.NormalizedUnitPrice(r); ok {
			row.NormalizedPrice = &v
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SKU != rows[j].SKU {
			return rows[i].SKU < rows[j].SKU
		}
		return rows[i].Date < rows[j].Date
	})
	return rows
}

// WriteHistoryParquet writes every record to a snappy-compressed parquet file
func WriteHistoryParquet(path string, records []domain.PriceRecord) (int, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file writer: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(HistoryRow), 4)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := HistoryRows(records)
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return 0, fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("failed to finalise parquet file: %w", err)
	}
	return len(rows), nil
}
