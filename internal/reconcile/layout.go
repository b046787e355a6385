package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Statement sheet columns. The bill number must stay in column D: both
// formula columns refer to it.
var StatementHeaders = []string{
	"S.No", "DateTime", "0B", "EWB No.", "EWB Toll", "HSN Code", "Trans",
	"Purchase from", "From", "Pur_Qty", "Pur_Value", "Pur_TaxVal", "Pur_Vehicle",
	"Total Stock", " ",
	"Sale To", "To", "Sale_Qty", "Sale_Value", "Sale_TaxVal", "Sale_Vehicle",
	"CB", "Dist", "States in which vehicle movement exists",
}

const (
	billColumn = "D"
	// firstDataRow is the sheet row of the first statement row, below the header.
	firstDataRow = 2
)

// TollLinkFormula jumps to the bill's first row on the toll data sheet.
func TollLinkFormula(row int) workbook.Formula {
	return workbook.Formula(fmt.Sprintf(
		`HYPERLINK("#"&CELL("address",INDEX(%[1]s!A:A,MATCH(%[2]s%[3]d,%[1]s!A:A,0))),%[2]s%[3]d)`,
		config.SheetTollData, billColumn, row))
}

// TollStatesFormula looks up the bill's crossed states on the toll summary sheet.
func TollStatesFormula(row int) workbook.Formula {
	return workbook.Formula(fmt.Sprintf(`VLOOKUP(%s%d,%s!A:B,2,FALSE)`, billColumn, row, config.SheetTollUniq))
}

// Layout renders a group statement as a sheet named after the group.
// Balances are rounded to two places here and nowhere else.
func Layout(g domain.GroupStatement) workbook.Sheet {
	sheet := workbook.Sheet{Name: SheetName(g.Group), Headers: StatementHeaders}
	for i, r := range g.Rows {
		excelRow := firstDataRow + i
		sheet.Rows = append(sheet.Rows, []any{
			i + 1,
			r.Timestamp,
			round(r.Opening),
			workbook.Typed(r.BillNo),
			TollLinkFormula(excelRow),
			workbook.Typed(r.HSN),
			r.TransportType,
			r.Purchase.Party,
			r.Purchase.Address,
			r.Purchase.Quantity,
			r.Purchase.Value,
			r.Purchase.TaxValue,
			r.Purchase.Vehicle,
			round(r.TotalStock),
			"",
			r.Sale.Party,
			r.Sale.Address,
			r.Sale.Quantity,
			r.Sale.Value,
			r.Sale.TaxValue,
			r.Sale.Vehicle,
			round(r.Closing),
			workbook.Typed(r.Distance),
			TollStatesFormula(excelRow),
		})
	}
	return sheet
}

var sheetNameReplacer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", `\`, "_",
)

// SheetName makes a group usable as a worksheet name.
func SheetName(group string) string {
	name := sheetNameReplacer.Replace(group)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
