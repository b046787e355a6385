package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Consolidated report columns.
const (
	ColBillNo     = "EWB No."
	ColBillNoDate = "EWB No. & Dt."
	ColHSN        = "HSN Code"
	ColFromParty  = "From GSTIN & Name"
	ColToParty    = "To GSTIN & Name"
	ColAssessVal  = "Assess Val."
	ColTaxVal     = "Tax Val."
	ColVehicle    = "Latest Vehicle No."
)

// TimestampLayout is how the report prints bill generation time.
const TimestampLayout = "02/01/2006 15:04:05"

// ErrReportColumns is returned when the consolidated report lacks a column
// the statement needs.
var ErrReportColumns = errors.New("report is missing required columns")

// NormalizeBill trims a bill number and drops a spreadsheet ".0" suffix.
func NormalizeBill(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ".0")
}

// ParseTimestamp reads the time out of "<bill> - dd/mm/yyyy hh:mm:ss".
func ParseTimestamp(billAndDate string) (time.Time, error) {
	_, rest, ok := strings.Cut(billAndDate, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("no timestamp in %q", billAndDate)
	}
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(rest), time.Local)
}

// ReadReport loads the consolidated report. Rows with unreadable values are
// kept with zero values and logged.
func ReadReport(path string, logger *slog.Logger) ([]domain.ReportRow, error) {
	t, err := workbook.ReadTable(path, "")
	if err != nil {
		return nil, err
	}
	return ReportRows(t, logger)
}

// ReportRows maps report table rows to typed records.
func ReportRows(t *workbook.Table, logger *slog.Logger) ([]domain.ReportRow, error) {
	required := []string{ColBillNo, ColBillNoDate, ColHSN, ColFromParty, ColToParty, ColAssessVal, ColTaxVal, ColVehicle}
	var missing []string
	for _, c := range required {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrReportColumns, strings.Join(missing, ", "))
	}

	rows := make([]domain.ReportRow, 0, t.Len())
	for _, r := range t.Rows {
		row := domain.ReportRow{
			BillNo:     NormalizeBill(t.Value(r, ColBillNo)),
			BillNoDate: t.Value(r, ColBillNoDate),
			HSN:        strings.TrimSpace(t.Value(r, ColHSN)),
			FromParty:  t.Value(r, ColFromParty),
			ToParty:    t.Value(r, ColToParty),
			Vehicle:    strings.TrimSpace(t.Value(r, ColVehicle)),
		}
		if row.BillNo == "" {
			continue
		}

		var err error
		if row.Timestamp, err = ParseTimestamp(row.BillNoDate); err != nil {
			logger.Warn("Unreadable bill timestamp", "ewb", row.BillNo, "value", row.BillNoDate)
		}
		if row.AssessValue, err = ParseAmount(t.Value(r, ColAssessVal)); err != nil {
			logger.Warn("Unreadable assessable value", "ewb", row.BillNo, "error", err)
		}
		if row.TaxValue, err = ParseAmount(t.Value(r, ColTaxVal)); err != nil {
			logger.Warn("Unreadable tax value", "ewb", row.BillNo, "error", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BillNumbers returns the distinct bill numbers of the report in order.
func BillNumbers(rows []domain.ReportRow) []string {
	seen := make(map[string]bool, len(rows))
	var bills []string
	for _, r := range rows {
		if seen[r.BillNo] {
			continue
		}
		seen[r.BillNo] = true
		bills = append(bills, r.BillNo)
	}
	return bills
}
