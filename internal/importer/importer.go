// Package importer loads business records from an .xlsx workbook into the
// record store.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"template-docgen/internal/domain"
)

const DefaultIDColumn = "Tender ID"

type RecordWriter interface {
	InsertRecords(ctx context.Context, records []domain.Record, replace bool) (int, error)
}

type Options struct {
	// Sheet defaults to the first sheet of the workbook.
	Sheet    string
	IDColumn string
	Replace  bool
}

type Importer struct {
	store  RecordWriter
	logger *slog.Logger
}

func New(store RecordWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import reads the workbook and writes its rows in one transaction.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts Options) (int, error) {
	start := time.Now()

	records, err := ReadRecords(r, opts, i.logger)
	if err != nil {
		return 0, err
	}
	n, err := i.store.InsertRecords(ctx, records, opts.Replace)
	if err != nil {
		return 0, fmt.Errorf("insert records: %w", err)
	}

	i.logger.Info("import.xlsx.ok",
		"rows", n,
		"replace", opts.Replace,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// ReadRecords turns each data row into a Record keyed by the IDColumn cell.
// The first row holds the headers. Empty cells become null. Numeric and
// boolean cells are typed by the workbook, text cells stay text (ISO dates are
// recognised), and every value keeps the text the sheet displays. Rows without
// an id are skipped.
func ReadRecords(r io.Reader, opts Options, logger *slog.Logger) ([]domain.Record, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idColumn := opts.IDColumn
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", domain.ErrInvalidInput, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidInput)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", domain.ErrInvalidInput, sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", domain.ErrInvalidInput, sheet)
	}

	headers := normalizeHeaders(rows[0])
	idIndex := -1
	for col, h := range headers {
		if h == idColumn {
			idIndex = col
			break
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("%w: id column %q not found in sheet %q", domain.ErrInvalidInput, idColumn, sheet)
	}

	records := make([]domain.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		id := strings.TrimSpace(cell(row, idIndex))
		if id == "" {
			if !blankRow(row) {
				logger.Warn("import.row_skipped", "sheet", sheet, "row", n+2, "reason", "missing id")
			}
			continue
		}

		fields := make(domain.FieldSet, 0, len(headers))
		for col, h := range headers {
			v, err := cellValue(f, sheet, col+1, n+2, cell(row, col))
			if err != nil {
				return nil, fmt.Errorf("%w: sheet %q row %d: %v", domain.ErrInvalidInput, sheet, n+2, err)
			}
			fields = append(fields, domain.FieldEntry{Name: h, Value: v})
		}
		// The id keeps its text form even when it looks numeric.
		fields.Set(idColumn, domain.StringValue(id))
		records = append(records, domain.Record{ID: id, Fields: fields})
	}
	return records, nil
}

// normalizeHeaders trims header text, names blank headers after their column
// letter and suffixes repeats so every field name is unique.
func normalizeHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, 0, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			col, _ := excelize.ColumnNumberToName(i + 1)
			name = "Column " + col
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s (%d)", name, n+1)
		} else {
			seen[name] = 1
		}
		out = append(out, name)
	}
	return out
}

// cellValue types a cell from its stored kind rather than from its text, so a
// text cell like "00123" is never read as a number.
func cellValue(f *excelize.File, sheet string, col, row int, text string) (domain.Value, error) {
	if strings.TrimSpace(text) == "" {
		return domain.NullValue(), nil
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return domain.Value{}, err
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return domain.Value{}, err
	}

	switch typ {
	case excelize.CellTypeBool:
		raw, err := f.GetCellValue(sheet, name, excelize.Options{RawCellValue: true})
		if err != nil {
			return domain.Value{}, err
		}
		v := domain.BoolValue(raw == "1" || strings.EqualFold(raw, "true"))
		v.Raw = text
		return v, nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		raw, err := f.GetCellValue(sheet, name, excelize.Options{RawCellValue: true})
		if err != nil {
			return domain.Value{}, err
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			v := domain.NumberValue(n)
			v.Raw = text
			return v, nil
		}
	}
	return domain.ParseScalar(text, false), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
