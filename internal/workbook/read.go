package workbook

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// NamedTable is one worksheet read back as a table.
type NamedTable struct {
	Name  string
	Table *Table
}

// ReadTable reads one worksheet as a table. An empty sheet name selects the
// first sheet. The first non-empty row is the header row.
func ReadTable(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	return readSheet(f, sheet)
}

// ReadSheets reads every worksheet in workbook order.
func ReadSheets(path string) ([]NamedTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	var out []NamedTable
	for _, name := range f.GetSheetList() {
		t, err := readSheet(f, name)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedTable{Name: name, Table: t})
	}
	return out, nil
}

// SheetNames lists the worksheets of a workbook.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func readSheet(f *excelize.File, sheet string) (*Table, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return tableFromRows(rows), nil
}

// tableFromRows turns raw grid rows into a table, skipping blank rows.
func tableFromRows(rows [][]string) *Table {
	t := &Table{}
	headerSeen := false
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if !headerSeen {
			t.Headers = trimRight(row)
			headerSeen = true
			continue
		}
		if len(row) > len(t.Headers) {
			// Unnamed trailing cells get positional headers.
			for i := len(t.Headers); i < len(row); i++ {
				t.Headers = append(t.Headers, fmt.Sprintf("Unnamed: %d", i))
			}
			for r := range t.Rows {
				t.Rows[r] = fit(t.Rows[r], len(t.Headers))
			}
		}
		t.Append(row)
	}
	return t
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimRight(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return append([]string(nil), row[:end]...)
}
