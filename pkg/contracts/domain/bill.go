package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportRow is one record of the consolidated EWB export.
type ReportRow struct {
	BillNo      string          `json:"bill_no"`
	BillNoDate  string          `json:"bill_no_date"`
	Timestamp   time.Time       `json:"timestamp"`
	HSN         string          `json:"hsn"`
	FromParty   string          `json:"from_party"`
	ToParty     string          `json:"to_party"`
	AssessValue decimal.Decimal `json:"assess_value"`
	TaxValue    decimal.Decimal `json:"tax_value"`
	Vehicle     string          `json:"vehicle"`
}

// BillHeader holds the labelled fields read from a bill's detail page.
type BillHeader struct {
	Distance      string `json:"distance"`
	TransportType string `json:"transport_type"`
	FromAddress   string `json:"from_address"`
	ToAddress     string `json:"to_address"`
}

// DetailShape tells which page layout a bill's detail data came from.
type DetailShape string

const (
	ShapePrimary     DetailShape = "primary"
	ShapeAlternate   DetailShape = "alternate"
	ShapePlaceholder DetailShape = "placeholder"
	ShapeEmpty       DetailShape = "empty"
)

// DetailItem is one row of a bill's item table. The primary table shows
// amount and unit together in Quantity ("150 KG"); the IRN table has a
// separate Unit column.
type DetailItem struct {
	HSN           string `json:"hsn"`
	Quantity      string `json:"quantity"`
	Unit          string `json:"unit,omitempty"`
	TaxableAmount string `json:"taxable_amount"`
}

// QuantityText returns amount and unit as one string.
func (i DetailItem) QuantityText() string {
	if i.Unit == "" {
		return i.Quantity
	}
	return i.Quantity + " " + i.Unit
}

// DetailResult is the outcome of extracting one bill. Items is empty for
// ShapeEmpty and holds a single blank item for ShapePlaceholder.
type DetailResult struct {
	BillNo string       `json:"bill_no"`
	Shape  DetailShape  `json:"shape"`
	Header BillHeader   `json:"header"`
	Items  []DetailItem `json:"items"`
}

// Primary builds a result from the main item table.
func Primary(bill string, header BillHeader, items []DetailItem) DetailResult {
	return DetailResult{BillNo: bill, Shape: ShapePrimary, Header: header, Items: items}
}

// Alternate builds a result from the IRN item table.
func Alternate(bill string, header BillHeader, items []DetailItem) DetailResult {
	return DetailResult{BillNo: bill, Shape: ShapeAlternate, Header: header, Items: items}
}

// Placeholder builds the single blank record used when the IRN dialog intercepts extraction.
func Placeholder(bill string, header BillHeader) DetailResult {
	return DetailResult{BillNo: bill, Shape: ShapePlaceholder, Header: header, Items: []DetailItem{{}}}
}

// Empty marks a bill with no extractable detail.
func Empty(bill string, header BillHeader) DetailResult {
	return DetailResult{BillNo: bill, Shape: ShapeEmpty, Header: header}
}

// HasData reports whether the result carries any item rows.
func (r DetailResult) HasData() bool {
	return r.Shape != ShapeEmpty && len(r.Items) > 0
}

// TollTable holds the toll-crossing rows scraped for one bill. Headers are the
// portal's own column titles; one of them is normally "State".
type TollTable struct {
	BillNo  string     `json:"bill_no"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
