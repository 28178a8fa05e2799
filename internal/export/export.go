// Package export writes the stored exam bank to an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"exambank/internal/engine"
)

// Exporter writes one sheet per registered table. Sheets follow table
// creation order with relation tables last; columns follow field
// declaration order.
type Exporter struct {
	db  *engine.DB
	log *zap.Logger
}

func New(db *engine.DB, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{db: db, log: logger.Named("export")}
}

// Workbook builds the workbook in memory.
func (x *Exporter) Workbook(ctx context.Context) (*excelize.File, error) {
	entities, err := x.db.Registry().Ordered()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const defaultSheet = "Sheet1"

	sheets := 0
	addSheet := func(name string, cols []string, rows []map[string]any) error {
		if sheets == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		sheets++
		if err := writeSheet(f, name, cols, rows); err != nil {
			return err
		}
		x.log.Debug("export.sheet", zap.String("table", name), zap.Int("rows", len(rows)))
		return nil
	}

	for _, e := range entities {
		rows, err := x.db.SelectOf(ctx, e.Table, nil)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.Table, err)
		}
		if err := addSheet(e.Table, e.Columns(), rows); err != nil {
			return nil, err
		}
	}
	for _, rel := range x.db.Registry().AllRelations() {
		rows, err := x.db.Links(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", rel.Table, err)
		}
		if err := addSheet(rel.Table, []string{rel.LeftKey, rel.RightKey}, rows); err != nil {
			return nil, err
		}
	}
	if sheets > 0 {
		f.SetActiveSheet(0)
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, cols []string, rows []map[string]any) error {
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, c); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for i, c := range cols {
			v, ok := row[c]
			if !ok || v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Write builds the workbook and writes it to w.
func (x *Exporter) Write(ctx context.Context, w io.Writer) error {
	start := time.Now()
	f, err := x.Workbook(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	x.log.Info("export.xlsx.ok", zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nil
}
