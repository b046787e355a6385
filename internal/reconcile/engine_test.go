package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/checkpoint"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/shared/testutil"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

const gstin = "27AAPFU0939F1ZV"

var reportHeaders = []string{
	ColBillNo, ColBillNoDate, "Doc No. & Dt.", ColFromParty, ColToParty, ColHSN, "HSN Desc.",
	ColAssessVal, ColTaxVal, ColVehicle,
}

func reportTable() *workbook.Table {
	t := workbook.NewTable(reportHeaders...)
	t.Append([]string{"331000000001", "331000000001 - 05/01/2024 10:30:00", "INV-1", "09AAACH7409R1ZZ - SUPPLIER", gstin + " - ACME", "84713010", "LAPTOP", "1000", "180", "UP14AB1234"})
	t.Append([]string{"331000000002", "331000000002 - 03/01/2024 09:00:00", "INV-2", gstin + " - ACME", "08AABCU9603R1ZM - BUYER", "8471", "LAPTOP", "5000", "900", "MH12CD5678"})
	t.Append([]string{"331000000003", "331000000003 - 07/01/2024 18:15:00", "INV-3", "24AAACC1206D1ZM - DAIRY", gstin + " - ACME", "0401", "MILK", "300", "0", "GJ01EF1111"})
	t.Append([]string{"331000000004", "331000000004 - 08/01/2024 08:00:00", "INV-4", "24AAACC1206D1ZM - DAIRY", "08AABCU9603R1ZM - BUYER", "0401", "MILK", "10", "0", "GJ01EF2222"})
	t.Append([]string{"331000000006", "331000000006 - 09/01/2024 08:00:00", "INV-6", gstin + " - ACME", "08AABCU9603R1ZM - BUYER", "8471", "LAPTOP", "10", "1.8", "MH12CD5678"})
	return t
}

var header = domain.BillHeader{Distance: "412", TransportType: "Regular", FromAddress: "PUNE", ToAddress: "JAIPUR"}

func details() []domain.DetailResult {
	return []domain.DetailResult{
		domain.Primary("331000000001", header, []domain.DetailItem{{HSN: "84713010", Quantity: "150 KG", TaxableAmount: "1000"}}),
		domain.Alternate("331000000002", header, []domain.DetailItem{{HSN: "8471", Quantity: "50", Unit: "nos", TaxableAmount: "5000"}}),
		domain.Primary("331000000003", header, []domain.DetailItem{{HSN: "0401", Quantity: "20 LTR", TaxableAmount: "300"}}),
		domain.Primary("331000000004", header, []domain.DetailItem{{HSN: "0401", Quantity: "5 LTR", TaxableAmount: "10"}}),
		domain.Primary("331000000005", header, []domain.DetailItem{{HSN: "9999", Quantity: "1 NOS", TaxableAmount: "1"}}),
		domain.Placeholder("331000000006", header),
		domain.Empty("331000000007", header),
	}
}

func build(t *testing.T) ([]domain.GroupStatement, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	report, err := ReportRows(reportTable(), logger)
	require.NoError(t, err)
	e := NewEngine(DefaultQuantityScaleRule(), logger, nil)
	return e.Build(gstin, report, details()), handler
}

func TestBuildJoinsGroupsAndOrders(t *testing.T) {
	groups, handler := build(t)
	require.Len(t, groups, 2)

	laptops := groups[0]
	assert.Equal(t, "8471", laptops.Group)
	require.Len(t, laptops.Rows, 3)
	assert.Equal(t, []string{"331000000002", "331000000001", "331000000006"},
		[]string{laptops.Rows[0].BillNo, laptops.Rows[1].BillNo, laptops.Rows[2].BillNo})

	sale := laptops.Rows[0]
	assert.Equal(t, domain.SideSale, sale.Side)
	assert.Equal(t, "NOS", sale.Unit)
	assert.Equal(t, "50", sale.Sale.Quantity.String())
	assert.Equal(t, "5000", sale.Sale.Value.String())
	assert.Equal(t, "MH12CD5678", sale.Sale.Vehicle)
	assert.True(t, sale.Purchase.Quantity.IsZero())
	assert.Empty(t, sale.Purchase.Vehicle)
	assert.Equal(t, gstin+" - ACME", sale.Purchase.Party, "party text is kept on both sides")
	assert.Equal(t, time.Date(2024, time.January, 3, 9, 0, 0, 0, time.Local), sale.Timestamp)

	purchase := laptops.Rows[1]
	assert.Equal(t, domain.SidePurchase, purchase.Side)
	assert.Equal(t, "0.15", purchase.Purchase.Quantity.String(), "150 KG is scaled once")
	assert.Equal(t, "84713010", purchase.HSN)
	assert.Equal(t, "PUNE", purchase.Purchase.Address)
	assert.Equal(t, "JAIPUR", purchase.Sale.Address)

	placeholder := laptops.Rows[2]
	assert.Equal(t, domain.SideSale, placeholder.Side)
	assert.True(t, placeholder.Sale.Quantity.IsZero())
	assert.Equal(t, "10", placeholder.Sale.Value.String())

	assert.Equal(t, "-50", sale.Closing.String())
	assert.Equal(t, "-50", purchase.Opening.String())
	assert.Equal(t, "-49.85", purchase.TotalStock.String())
	assert.Equal(t, "-49.85", purchase.Closing.String())

	dairy := groups[1]
	assert.Equal(t, "0401", dairy.Group)
	require.Len(t, dairy.Rows, 2)
	assert.Equal(t, domain.SideUnknown, dairy.Rows[1].Side)
	assert.True(t, handler.ContainsMessage("Taxpayer is neither sender nor receiver"))

	for _, g := range groups {
		for _, r := range g.Rows {
			assert.NotEqual(t, "331000000005", r.BillNo, "details without a report row are dropped")
		}
	}
}

func TestRunningBalanceProperty(t *testing.T) {
	groups, _ := build(t)
	for _, g := range groups {
		prev := decimal.Zero
		for i, r := range g.Rows {
			assert.True(t, r.Opening.Equal(prev), "group %s row %d opening", g.Group, i)
			assert.True(t, r.TotalStock.Equal(r.Opening.Add(r.Purchase.Quantity)))
			assert.True(t, r.Closing.Equal(r.Opening.Add(r.Purchase.Quantity).Sub(r.Sale.Quantity)))
			if i > 0 {
				assert.False(t, r.Timestamp.Before(g.Rows[i-1].Timestamp), "rows are in time order")
			}
			prev = r.Closing
		}
	}
}

func TestSideExclusivity(t *testing.T) {
	groups, handler := build(t)
	for _, g := range groups {
		for _, r := range g.Rows {
			purchase := !r.Purchase.Quantity.IsZero() || !r.Purchase.Value.IsZero()
			sale := !r.Sale.Quantity.IsZero() || !r.Sale.Value.IsZero()
			assert.False(t, purchase && sale, "bill %s has both sides", r.BillNo)
		}
	}

	t.Run("unknown side leaves balance unchanged", func(t *testing.T) {
		dairy := groups[1]
		require.Len(t, dairy.Rows, 2)
		known, unknown := dairy.Rows[0], dairy.Rows[1]
		require.Equal(t, "331000000004", unknown.BillNo)
		assert.Equal(t, domain.SideUnknown, unknown.Side)

		for _, m := range []domain.Movement{unknown.Purchase, unknown.Sale} {
			assert.True(t, m.Quantity.IsZero())
			assert.True(t, m.Value.IsZero())
			assert.True(t, m.TaxValue.IsZero())
			assert.Empty(t, m.Vehicle)
		}
		assert.Equal(t, "24AAACC1206D1ZM - DAIRY", unknown.Purchase.Party)
		assert.Equal(t, "08AABCU9603R1ZM - BUYER", unknown.Sale.Party)

		assert.Equal(t, "20", known.Closing.String())
		assert.True(t, unknown.Opening.Equal(known.Closing))
		assert.True(t, unknown.TotalStock.Equal(known.Closing))
		assert.True(t, unknown.Closing.Equal(known.Closing))

		testutil.AssertLogContains(t, handler, slog.LevelWarn, "Taxpayer is neither sender nor receiver")
		assert.True(t, handler.ContainsAttr("ewb", "331000000004"))
	})
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, "8471", GroupOf("84713010", "1111"))
	assert.Equal(t, "0401", GroupOf(" 0401 ", ""))
	assert.Equal(t, "7208", GroupOf("", "72081000"))
	assert.Equal(t, UnclassifiedGroup, GroupOf("", " "))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("331000000001 - 05/01/2024 10:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 5, 10, 30, 0, 0, time.Local), ts)

	_, err = ParseTimestamp("331000000001")
	assert.Error(t, err)
}

func TestReportRowsRequiresColumns(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	_, err := ReportRows(workbook.NewTable(ColBillNo, ColHSN), logger)
	assert.ErrorIs(t, err, ErrReportColumns)
}

func TestLayout(t *testing.T) {
	groups, _ := build(t)
	sheet := Layout(groups[0])

	assert.Equal(t, "8471", sheet.Name)
	assert.Equal(t, "EWB No.", sheet.Headers[3], "bill number sits in column D")
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, 1, sheet.Rows[0][0])
	assert.Equal(t, int64(331000000001), sheet.Rows[1][3])
	assert.Equal(t,
		workbook.Formula(`HYPERLINK("#"&CELL("address",INDEX(TollData!A:A,MATCH(D3,TollData!A:A,0))),D3)`),
		sheet.Rows[1][4])
	assert.Equal(t, workbook.Formula(`VLOOKUP(D4,TollUniq!A:B,2,FALSE)`), sheet.Rows[2][23])
	assert.Equal(t, "-49.85", sheet.Rows[1][21].(decimal.Decimal).String())
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "84_7", SheetName("84/7"))
	assert.Len(t, SheetName("0123456789012345678901234567890123"), 31)
}

func TestRunWritesStatementAndRemovesCheckpoints(t *testing.T) {
	paths := config.NewTaxpayerPaths(t.TempDir(), gstin)
	require.NoError(t, paths.Ensure())
	require.NoError(t, workbook.WriteTable(paths.MergedReport(), "Sheet1", reportTable()))

	all := details()
	for _, r := range all[2:] {
		if r.HasData() {
			_, err := checkpoint.WriteDetail(paths, r)
			require.NoError(t, err)
		}
	}

	logger, handler := testutil.NewTestLogger(t)
	e := NewEngine(DefaultQuantityScaleRule(), logger, nil)
	res, err := e.Run(context.Background(), paths, all[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, 2, res.SheetsWritten)
	assert.Equal(t, 4, res.Removed)

	left, err := paths.DetailCheckpoints()
	require.NoError(t, err)
	assert.Empty(t, left)

	f, err := excelize.OpenFile(paths.Statement())
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"8471", "0401"}, f.GetSheetList())

	bill, err := f.GetCellValue("8471", "D2")
	require.NoError(t, err)
	assert.Equal(t, "331000000002", bill)
	formula, err := f.GetCellFormula("8471", "X2")
	require.NoError(t, err)
	assert.Equal(t, "VLOOKUP(D2,TollUniq!A:B,2,FALSE)", formula)
	assert.True(t, handler.ContainsMessage("Stock statement creation for 27AAPFU0939F1ZV is complete"))
}

func TestRunWithoutMatchesKeepsCheckpoints(t *testing.T) {
	paths := config.NewTaxpayerPaths(t.TempDir(), gstin)
	require.NoError(t, paths.Ensure())
	require.NoError(t, workbook.WriteTable(paths.MergedReport(), "Sheet1", reportTable()))
	_, err := checkpoint.WriteDetail(paths, details()[4])
	require.NoError(t, err)

	logger, _ := testutil.NewTestLogger(t)
	_, err = NewEngine(DefaultQuantityScaleRule(), logger, nil).Run(context.Background(), paths, nil)
	assert.ErrorIs(t, err, ErrNothingToReconcile)
	assert.NoFileExists(t, paths.Statement())
	assert.True(t, checkpoint.HasDetail(paths, "331000000005"))
}
