package workbook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Formula is cell formula text. A leading '=' is optional.
type Formula string

// DateTimeFormat is the display format of timestamp cells.
const DateTimeFormat = "dd/mm/yyyy hh:mm:ss"

// Sheet is one worksheet to write. Row cells may be string, int64, int,
// float64, decimal.Decimal, time.Time, Formula or nil.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// SheetFromTable converts a table into a sheet, typing numeric-looking text
// as numbers so lookups against other numeric cells match.
func SheetFromTable(name string, t *Table) Sheet {
	s := Sheet{Name: name, Headers: append([]string(nil), t.Headers...)}
	for _, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = Typed(v)
		}
		s.Rows = append(s.Rows, cells)
	}
	return s
}

var (
	integerPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]{0,14})$`)
	decimalPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)\.[0-9]+$`)
)

// Typed returns v as int64 or float64 when it is a plain number, nil when
// blank, and the text itself otherwise. Codes with leading zeros stay text.
func Typed(v string) any {
	s := strings.TrimSpace(v)
	switch {
	case s == "":
		return nil
	case integerPattern.MatchString(s):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case decimalPattern.MatchString(s):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return v
}

// Writer builds or amends one workbook.
type Writer struct {
	f           *excelize.File
	fresh       bool
	wholeStyle  int
	dateStyle   int
	stylesReady bool
}

// NewWriter starts an empty workbook.
func NewWriter() *Writer {
	return &Writer{f: excelize.NewFile(), fresh: true}
}

// OpenWriter opens an existing workbook for amendment.
func OpenWriter(path string) (*Writer, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// WriteSheet writes s, replacing any sheet of the same name.
func (w *Writer) WriteSheet(s Sheet) error {
	if err := w.ensureStyles(); err != nil {
		return err
	}
	if err := w.prepareSheet(s.Name); err != nil {
		return err
	}

	header := make([]any, len(s.Headers))
	for i, h := range s.Headers {
		header[i] = h
	}
	if err := w.f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of sheet %s: %w", s.Name, err)
	}

	for r, row := range s.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := w.setCell(s.Name, cell, v); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", s.Name, cell, err)
			}
		}
	}
	return nil
}

// SaveAs writes the workbook to path.
func (w *Writer) SaveAs(path string) error {
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// Close releases the workbook.
func (w *Writer) Close() error {
	return w.f.Close()
}

// WriteWorkbook writes sheets into a new workbook at path.
func WriteWorkbook(path string, sheets ...Sheet) error {
	w := NewWriter()
	defer w.Close()
	for _, s := range sheets {
		if err := w.WriteSheet(s); err != nil {
			return err
		}
	}
	return w.SaveAs(path)
}

// WriteTable writes one table as a single-sheet workbook.
func WriteTable(path, sheet string, t *Table) error {
	return WriteWorkbook(path, SheetFromTable(sheet, t))
}

func (w *Writer) ensureStyles() error {
	if w.stylesReady {
		return nil
	}
	whole, err := w.f.NewStyle(&excelize.Style{NumFmt: 1})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}
	format := DateTimeFormat
	date, err := w.f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}
	w.wholeStyle, w.dateStyle, w.stylesReady = whole, date, true
	return nil
}

// prepareSheet leaves an empty sheet called name in the workbook.
func (w *Writer) prepareSheet(name string) error {
	if w.fresh {
		// The default sheet of a new file takes the first name.
		w.fresh = false
		return w.f.SetSheetName(w.f.GetSheetName(0), name)
	}

	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx == -1 {
		_, err := w.f.NewSheet(name)
		return err
	}

	// Replace through a scratch sheet so a workbook never drops to zero sheets.
	scratch := "~" + name
	if len(scratch) > 31 {
		scratch = scratch[:31]
	}
	if _, err := w.f.NewSheet(scratch); err != nil {
		return err
	}
	if err := w.f.DeleteSheet(name); err != nil {
		return err
	}
	return w.f.SetSheetName(scratch, name)
}

func (w *Writer) setCell(sheet, cell string, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case Formula:
		return w.f.SetCellFormula(sheet, cell, strings.TrimPrefix(string(val), "="))
	case decimal.Decimal:
		return w.f.SetCellFloat(sheet, cell, val.InexactFloat64(), -1, 64)
	case int64:
		if err := w.f.SetCellInt(sheet, cell, val); err != nil {
			return err
		}
		if val >= 1e10 || val <= -1e10 {
			return w.f.SetCellStyle(sheet, cell, cell, w.wholeStyle)
		}
		return nil
	case int:
		return w.setCell(sheet, cell, int64(val))
	case time.Time:
		if val.IsZero() {
			return nil
		}
		if err := w.f.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
		return w.f.SetCellStyle(sheet, cell, cell, w.dateStyle)
	default:
		return w.f.SetCellValue(sheet, cell, val)
	}
}
