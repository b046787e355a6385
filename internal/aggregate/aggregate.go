// Package aggregate finishes a taxpayer's statement workbook: it appends the
// toll crossing sheets and flattens all group sheets into one de-duplicated
// table.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/checkpoint"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// ColSheetName tags each flattened row with the group sheet it came from.
const ColSheetName = "SheetName"

// ErrStatementMissing means the stock statement workbook has not been written yet.
var ErrStatementMissing = errors.New("stock statement not found")

// Aggregator runs the post-statement merges.
type Aggregator struct {
	logger *slog.Logger
}

// New returns an aggregator logging to logger.
func New(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// TollResult describes one toll merge.
type TollResult struct {
	Bills   int
	Rows    int
	Removed int
}

// MergeToll writes the TollData and TollUniq sheets into the statement
// workbook, replacing earlier versions, then removes consumed toll
// checkpoints. Having no toll rows is not an error.
func (a *Aggregator) MergeToll(ctx context.Context, paths config.TaxpayerPaths, fresh []domain.TollTable) (TollResult, error) {
	var res TollResult
	logger := a.logger.With("gstin", paths.GSTIN)

	statement := paths.Statement()
	if _, err := os.Stat(statement); err != nil {
		logger.Error("Stock statement file not found, cannot append toll data", "file", statement)
		return res, fmt.Errorf("%w: %s", ErrStatementMissing, statement)
	}

	loaded, err := checkpoint.LoadTolls(paths, logger)
	if err != nil {
		return res, err
	}
	tables := collectTolls(fresh, loaded)
	data, uniq := TollSheets(tables)
	if data.Len() == 0 {
		logger.Info("No toll files found to merge.")
		return res, nil
	}
	res.Bills, res.Rows = uniq.Len(), data.Len()
	logger.Info(fmt.Sprintf("Length of All EWB toll combinations: %d", data.Len()))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	w, err := workbook.OpenWriter(statement)
	if err != nil {
		return res, err
	}
	defer w.Close()
	if err := w.WriteSheet(workbook.SheetFromTable(config.SheetTollData, data)); err != nil {
		return res, fmt.Errorf("failed to write %s sheet: %w", config.SheetTollData, err)
	}
	if err := w.WriteSheet(workbook.SheetFromTable(config.SheetTollUniq, uniq)); err != nil {
		return res, fmt.Errorf("failed to write %s sheet: %w", config.SheetTollUniq, err)
	}
	if err := w.SaveAs(statement); err != nil {
		return res, err
	}
	logger.Info("TollData and TollUniq sheets appended to existing Excel file!", "bills", res.Bills, "rows", res.Rows)

	found, err := paths.TollCheckpoints()
	if err != nil {
		logger.Warn("Error listing toll checkpoints", "error", err)
		return res, nil
	}
	res.Removed = checkpoint.Remove(found, logger)
	return res, nil
}

func collectTolls(fresh, loaded []domain.TollTable) []domain.TollTable {
	seen := make(map[string]bool)
	var out []domain.TollTable
	for _, set := range [][]domain.TollTable{fresh, loaded} {
		for _, t := range set {
			if seen[t.BillNo] {
				continue
			}
			seen[t.BillNo] = true
			out = append(out, t)
		}
	}
	return out
}

// TollSheets builds the crossing table, bill number first, and the per-bill
// summary of distinct states in first-seen order, sorted by bill.
func TollSheets(tables []domain.TollTable) (data, uniq *workbook.Table) {
	parts := make([]*workbook.Table, 0, len(tables))
	states := make(map[string][]string)
	for _, tt := range tables {
		t := workbook.NewTable(append([]string{checkpoint.ColBill}, tt.Headers...)...)
		for _, row := range tt.Rows {
			t.Append(append([]string{tt.BillNo}, row...))
		}
		parts = append(parts, t)

		for _, row := range t.Rows {
			state := strings.TrimSpace(t.Value(row, checkpoint.ColState))
			if state == "" || slices.Contains(states[tt.BillNo], state) {
				continue
			}
			states[tt.BillNo] = append(states[tt.BillNo], state)
		}
	}

	data = workbook.Concat(parts...)
	data.MoveFirst(checkpoint.ColBill)

	bills := make([]string, 0, len(states))
	for b := range states {
		bills = append(bills, b)
	}
	sort.Strings(bills)
	uniq = workbook.NewTable(checkpoint.ColBill, checkpoint.ColState)
	for _, b := range bills {
		uniq.Append([]string{b, strings.Join(states[b], ",")})
	}
	return data, uniq
}

// SheetMergeResult describes one sheet merge.
type SheetMergeResult struct {
	Sheets int
	Before int
	After  int
}

// MergeSheets flattens every group sheet of the statement into the
// "all" workbook, dropping exact duplicate rows.
func (a *Aggregator) MergeSheets(ctx context.Context, paths config.TaxpayerPaths) (SheetMergeResult, error) {
	var res SheetMergeResult
	logger := a.logger.With("gstin", paths.GSTIN)

	statement := paths.Statement()
	if _, err := os.Stat(statement); err != nil {
		logger.Error("Stock statement file not found, cannot merge sheets", "file", statement)
		return res, fmt.Errorf("%w: %s", ErrStatementMissing, statement)
	}

	sheets, err := workbook.ReadSheets(statement)
	if err != nil {
		return res, err
	}

	var parts []*workbook.Table
	for _, s := range sheets {
		if s.Name == config.SheetTollData || s.Name == config.SheetTollUniq {
			continue
		}
		s.Table.AddColumn(ColSheetName, s.Name)
		parts = append(parts, s.Table)
		res.Sheets++
	}
	if len(parts) == 0 {
		logger.Info("No sheets processed for merging.")
		return res, nil
	}

	merged := workbook.Concat(parts...)
	deduped := Dedupe(merged)
	res.Before, res.After = merged.Len(), deduped.Len()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := workbook.WriteTable(paths.StatementAll(), "Sheet1", deduped); err != nil {
		return res, err
	}
	logger.Info(fmt.Sprintf("Sheet merge successful. Rows before/after duplicates: %d and %d", res.Before, res.After))
	return res, nil
}

// Dedupe keeps the first of every set of identical rows.
func Dedupe(t *workbook.Table) *workbook.Table {
	out := workbook.NewTable(t.Headers...)
	seen := make(map[string]bool, t.Len())
	for _, row := range t.Rows {
		key := strings.Join(row, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}
