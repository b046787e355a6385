package workbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcatUnionsHeadersInFirstSeenOrder(t *testing.T) {
	a := &Table{Headers: []string{"EWB No.", "HSN Code"}, Rows: [][]string{{"1", "8471"}}}
	b := &Table{Headers: []string{"HSN Code", "Tax Val.", "EWB No."}, Rows: [][]string{{"0401", "9.5", "2"}}}

	out := Concat(a, nil, b)

	assert.Equal(t, []string{"EWB No.", "HSN Code", "Tax Val."}, out.Headers)
	assert.Equal(t, [][]string{{"1", "8471", ""}, {"2", "0401", "9.5"}}, out.Rows)
}

func TestTableHelpers(t *testing.T) {
	tbl := NewTable("Sr", "State", " Toll Name ")
	tbl.Append([]string{"1", "Gujarat"})
	tbl.Append([]string{"2", "Delhi", "Kherki", "extra"})
	tbl.AddColumn("ewb", "331000000001")

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 2, tbl.Index("Toll Name"))
	assert.True(t, tbl.Has("State", "ewb"))
	assert.False(t, tbl.Has("Vehicle"))
	assert.Equal(t, "", tbl.Value(tbl.Rows[0], "Toll Name"))
	assert.Equal(t, "Kherki", tbl.Value(tbl.Rows[1], "Toll Name"))
	assert.Equal(t, "", tbl.Value(tbl.Rows[1], "missing"))

	tbl.MoveFirst("ewb")
	assert.Equal(t, []string{"ewb", "Sr", "State", " Toll Name "}, tbl.Headers)
	assert.Equal(t, []string{"331000000001", "2", "Delhi", "Kherki"}, tbl.Rows[1])

	var empty *Table
	assert.Equal(t, 0, empty.Len())
}

func TestTyped(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"  ", nil},
		{"331000000001", int64(331000000001)},
		{"0", int64(0)},
		{"-12", int64(-12)},
		{"150.75", 150.75},
		{"0401", "0401"},
		{"27AAPFU0939F1ZV", "27AAPFU0939F1ZV"},
		{"150 KG", "150 KG"},
		{"1234567890123456789", "1234567890123456789"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Typed(tt.in), tt.in)
	}
}
