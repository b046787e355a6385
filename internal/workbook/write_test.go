package workbook

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	at := time.Date(2024, time.January, 5, 10, 30, 0, 0, time.UTC)

	err := WriteWorkbook(path,
		Sheet{
			Name:    "8471",
			Headers: []string{"S.No", "DateTime", "EWB No.", "Qty", " ", "Link"},
			Rows: [][]any{
				{1, at, int64(331000000001), decimal.RequireFromString("0.15"), "", Formula(`=VLOOKUP(C2,TollUniq!A:B,2,FALSE)`)},
			},
		},
		Sheet{Name: "0401", Headers: []string{"a"}, Rows: [][]any{{"x"}, {nil}}},
	)
	require.NoError(t, err)

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"8471", "0401"}, names)

	tbl, err := ReadTable(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"S.No", "DateTime", "EWB No.", "Qty", " ", "Link"}, tbl.Headers)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "1", tbl.Rows[0][0])
	assert.NotEmpty(t, tbl.Rows[0][1])
	assert.Equal(t, "331000000001", tbl.Rows[0][2])
	assert.Equal(t, "0.15", tbl.Rows[0][3])

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	formula, err := f.GetCellFormula("8471", "F2")
	require.NoError(t, err)
	assert.Equal(t, "VLOOKUP(C2,TollUniq!A:B,2,FALSE)", formula)
}

func TestOpenWriterReplacesSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stmt.xlsx")
	require.NoError(t, WriteWorkbook(path,
		Sheet{Name: "8471", Headers: []string{"EWB No."}, Rows: [][]any{{int64(1)}}},
		Sheet{Name: "TollData", Headers: []string{"ewb"}, Rows: [][]any{{int64(1)}, {int64(2)}, {int64(3)}}},
	))

	w, err := OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteSheet(Sheet{Name: "TollData", Headers: []string{"ewb", "State"}, Rows: [][]any{{int64(9), "Gujarat"}}}))
	require.NoError(t, w.WriteSheet(Sheet{Name: "TollUniq", Headers: []string{"ewb", "State"}}))
	require.NoError(t, w.SaveAs(path))
	require.NoError(t, w.Close())

	sheets, err := ReadSheets(path)
	require.NoError(t, err)
	require.Len(t, sheets, 3)
	assert.Equal(t, "8471", sheets[0].Name)
	assert.Equal(t, "TollData", sheets[1].Name)
	assert.Equal(t, [][]string{{"9", "Gujarat"}}, sheets[1].Table.Rows)
	assert.Equal(t, "TollUniq", sheets[2].Name)
	assert.Equal(t, 0, sheets[2].Table.Len())
}

func TestTableFromRowsSkipsBlankRowsAndWidensHeaders(t *testing.T) {
	tbl := tableFromRows([][]string{
		{},
		{"EWB No.", "HSN Code", ""},
		{"1", "8471"},
		{"", " "},
		{"2", "0401", "", "stray"},
	})

	assert.Equal(t, []string{"EWB No.", "HSN Code", "Unnamed: 2", "Unnamed: 3"}, tbl.Headers)
	assert.Equal(t, [][]string{{"1", "8471", "", ""}, {"2", "0401", "", "stray"}}, tbl.Rows)
}

func TestWriteTableTypesNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.xlsx")
	require.NoError(t, WriteTable(path, "Sheet1", &Table{
		Headers: []string{"ewb", "hsn"},
		Rows:    [][]string{{"331000000001", "0401"}},
	}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	typ, err := f.GetCellType("Sheet1", "A2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeUnset, typ)

	typ, err = f.GetCellType("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeSharedString, typ)
}
