package workbook

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoHTMLTable is returned when a document holds no <table>.
var ErrNoHTMLTable = errors.New("no table in html")

// ParseHTMLTables parses every top-level <table> of an HTML document. The
// first row of each table is its header row; colspan cells are repeated.
func ParseHTMLTables(r io.Reader) ([]*Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var tables []*Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		// Nested grids (pagers) belong to their outer table.
		if sel.ParentsFiltered("table").Length() > 0 {
			return
		}
		if t := tableFromSelection(sel); t != nil {
			tables = append(tables, t)
		}
	})

	if len(tables) == 0 {
		return nil, ErrNoHTMLTable
	}
	return tables, nil
}

// ParseHTMLTable parses the first table of an HTML fragment, such as the
// outer HTML of a grid element.
func ParseHTMLTable(html string) (*Table, error) {
	tables, err := ParseHTMLTables(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return tables[0], nil
}

func tableFromSelection(table *goquery.Selection) *Table {
	rows := table.ChildrenFiltered("thead, tbody, tfoot").ChildrenFiltered("tr")
	rows = rows.AddSelection(table.ChildrenFiltered("tr"))

	var grid [][]string
	rows.Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.Join(strings.Fields(cell.Text()), " ")
			span := 1
			if v, ok := cell.Attr("colspan"); ok {
				if n, err := strconv.Atoi(v); err == nil && n > 1 {
					span = n
				}
			}
			for i := 0; i < span; i++ {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			grid = append(grid, cells)
		}
	})

	if len(grid) == 0 {
		return nil
	}

	t := &Table{Headers: grid[0]}
	for _, row := range grid[1:] {
		t.Append(row)
	}
	return t
}
