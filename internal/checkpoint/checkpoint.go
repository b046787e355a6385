// Package checkpoint persists per-bill extraction results so an interrupted
// run can resume, and loads them back as typed records.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Column names used in checkpoint workbooks. The item columns keep the
// portal's own titles.
const (
	ColBill            = "ewb"
	ColDistance        = "Dist"
	ColTransport       = "Trans"
	ColFrom            = "From"
	ColTo              = "To"
	ColHSN             = "HSN Code"
	ColQuantity        = "Quantity"
	ColUnit            = "Unit"
	ColPrimaryAmount   = "Taxable Amount Rs."
	ColAlternateAmount = "Taxable Amount(Rs)"
	ColState           = "State"
)

const sheetName = "Sheet1"

// ErrEmptyResult is returned when asked to persist a result with no items.
var ErrEmptyResult = errors.New("nothing to checkpoint")

// HasDetail reports whether any detail checkpoint exists for bill.
func HasDetail(paths config.TaxpayerPaths, bill string) bool {
	for _, shape := range []domain.DetailShape{domain.ShapePrimary, domain.ShapeAlternate, domain.ShapePlaceholder} {
		if exists(paths.DetailCheckpoint(bill, shape)) {
			return true
		}
	}
	return false
}

// HasToll reports whether a toll checkpoint exists for bill.
func HasToll(paths config.TaxpayerPaths, bill string) bool {
	return exists(paths.TollCheckpoint(bill))
}

// WriteDetail stores a non-empty detail result under the file name of its shape.
func WriteDetail(paths config.TaxpayerPaths, r domain.DetailResult) (string, error) {
	if !r.HasData() {
		return "", ErrEmptyResult
	}

	var t *workbook.Table
	switch r.Shape {
	case domain.ShapePrimary:
		t = workbook.NewTable(ColHSN, ColQuantity, ColPrimaryAmount)
		for _, it := range r.Items {
			t.Append([]string{it.HSN, it.Quantity, it.TaxableAmount})
		}
	case domain.ShapeAlternate:
		t = workbook.NewTable(ColHSN, ColQuantity, ColUnit, ColAlternateAmount)
		for _, it := range r.Items {
			t.Append([]string{it.HSN, it.Quantity, it.Unit, it.TaxableAmount})
		}
	case domain.ShapePlaceholder:
		t = workbook.NewTable(ColHSN, ColQuantity)
		t.Append([]string{"", ""})
	default:
		return "", fmt.Errorf("unknown detail shape %q", r.Shape)
	}
	t.AddColumn(ColBill, r.BillNo)
	t.AddColumn(ColDistance, r.Header.Distance)
	t.AddColumn(ColTransport, r.Header.TransportType)
	t.AddColumn(ColFrom, r.Header.FromAddress)
	t.AddColumn(ColTo, r.Header.ToAddress)

	path := paths.DetailCheckpoint(r.BillNo, r.Shape)
	if err := workbook.WriteTable(path, sheetName, t); err != nil {
		return "", fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return path, nil
}

// ReadDetail loads one detail checkpoint.
func ReadDetail(c config.Checkpoint) (domain.DetailResult, error) {
	t, err := workbook.ReadTable(c.Path, "")
	if err != nil {
		return domain.DetailResult{}, err
	}

	shape := config.ShapeForSuffix(c.Suffix)
	r := domain.DetailResult{BillNo: c.BillNo, Shape: shape}
	if t.Len() == 0 {
		r.Shape = domain.ShapeEmpty
		return r, nil
	}

	first := t.Rows[0]
	r.Header = domain.BillHeader{
		Distance:      t.Value(first, ColDistance),
		TransportType: t.Value(first, ColTransport),
		FromAddress:   t.Value(first, ColFrom),
		ToAddress:     t.Value(first, ColTo),
	}
	if shape == domain.ShapePlaceholder {
		r.Items = []domain.DetailItem{{}}
		return r, nil
	}

	amountCol := ColPrimaryAmount
	if shape == domain.ShapeAlternate {
		amountCol = ColAlternateAmount
	}
	if !t.Has(ColHSN, ColQuantity) {
		return domain.DetailResult{}, fmt.Errorf("checkpoint %s lacks item columns", c.Path)
	}
	for _, row := range t.Rows {
		r.Items = append(r.Items, domain.DetailItem{
			HSN:           t.Value(row, ColHSN),
			Quantity:      t.Value(row, ColQuantity),
			Unit:          t.Value(row, ColUnit),
			TaxableAmount: t.Value(row, amountCol),
		})
	}
	return r, nil
}

// LoadDetails reads every detail checkpoint of the taxpayer. Unreadable files
// are logged and left out of both return values.
func LoadDetails(paths config.TaxpayerPaths, logger *slog.Logger) ([]domain.DetailResult, []config.Checkpoint, error) {
	found, err := paths.DetailCheckpoints()
	if err != nil {
		return nil, nil, err
	}

	var results []domain.DetailResult
	var loaded []config.Checkpoint
	for _, c := range found {
		r, err := ReadDetail(c)
		if err != nil {
			logger.Error("Error reading detail checkpoint", "file", c.Path, "error", err)
			continue
		}
		results = append(results, r)
		loaded = append(loaded, c)
	}
	return results, loaded, nil
}

// WriteToll stores a toll table with the bill number as its first column.
func WriteToll(paths config.TaxpayerPaths, tt domain.TollTable) (string, error) {
	if len(tt.Rows) == 0 {
		return "", ErrEmptyResult
	}
	t := workbook.NewTable(append([]string{ColBill}, tt.Headers...)...)
	for _, row := range tt.Rows {
		t.Append(append([]string{tt.BillNo}, row...))
	}

	path := paths.TollCheckpoint(tt.BillNo)
	if err := workbook.WriteTable(path, sheetName, t); err != nil {
		return "", fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return path, nil
}

// ReadToll loads one toll checkpoint.
func ReadToll(c config.Checkpoint) (domain.TollTable, error) {
	t, err := workbook.ReadTable(c.Path, "")
	if err != nil {
		return domain.TollTable{}, err
	}

	tt := domain.TollTable{BillNo: c.BillNo}
	keep := make([]int, 0, len(t.Headers))
	for i, h := range t.Headers {
		if strings.TrimSpace(h) == ColBill {
			continue
		}
		keep = append(keep, i)
		tt.Headers = append(tt.Headers, h)
	}
	for _, row := range t.Rows {
		out := make([]string, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		tt.Rows = append(tt.Rows, out)
	}
	return tt, nil
}

// LoadTolls reads every toll checkpoint of the taxpayer.
func LoadTolls(paths config.TaxpayerPaths, logger *slog.Logger) ([]domain.TollTable, error) {
	found, err := paths.TollCheckpoints()
	if err != nil {
		return nil, err
	}

	var tables []domain.TollTable
	for _, c := range found {
		tt, err := ReadToll(c)
		if err != nil {
			logger.Error("Error reading toll checkpoint", "file", c.Path, "error", err)
			continue
		}
		tables = append(tables, tt)
	}
	return tables, nil
}

// Remove deletes consumed checkpoints. Failures are logged only.
func Remove(checkpoints []config.Checkpoint, logger *slog.Logger) int {
	removed := 0
	for _, c := range checkpoints {
		if err := os.Remove(c.Path); err != nil {
			logger.Warn("Error removing checkpoint", "file", c.Path, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
