package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side says whether a statement row is a purchase or a sale for the taxpayer.
type Side string

const (
	SidePurchase Side = "purchase"
	SideSale     Side = "sale"
	SideUnknown  Side = "unknown"
)

// Movement is one side of a statement row.
type Movement struct {
	Party    string          `json:"party"`
	Address  string          `json:"address"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
	TaxValue decimal.Decimal `json:"tax_value"`
	Vehicle  string          `json:"vehicle"`
}

// StatementRow is one reconciled line of a stock statement. Party text is
// kept on both sides; quantity, values and vehicle are zeroed on the side
// that does not apply.
type StatementRow struct {
	BillNo        string          `json:"bill_no"`
	Timestamp     time.Time       `json:"timestamp"`
	HSN           string          `json:"hsn"`
	Group         string          `json:"group"`
	Unit          string          `json:"unit"`
	Side          Side            `json:"side"`
	Purchase      Movement        `json:"purchase"`
	Sale          Movement        `json:"sale"`
	Opening       decimal.Decimal `json:"opening"`
	TotalStock    decimal.Decimal `json:"total_stock"`
	Closing       decimal.Decimal `json:"closing"`
	Distance      string          `json:"distance"`
	TransportType string          `json:"transport_type"`
}

// GroupStatement is the ordered statement of one 4-digit HSN group.
type GroupStatement struct {
	Group string         `json:"group"`
	Rows  []StatementRow `json:"rows"`
}
