// Package reconcile joins extracted bill items onto the consolidated report
// and produces per-HSN-group stock statements with running balances.
package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/checkpoint"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// UnclassifiedGroup holds rows whose HSN is blank on both sides.
const UnclassifiedGroup = "UNCLASSIFIED"

// ErrNothingToReconcile means no detail line matched a report row.
var ErrNothingToReconcile = errors.New("no detail lines matched the report")

// Engine builds and writes stock statements.
type Engine struct {
	rule    QuantityScaleRule
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewEngine returns an engine applying rule to every quantity.
func NewEngine(rule QuantityScaleRule, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Engine {
	return &Engine{rule: rule, logger: logger, metrics: metrics}
}

// Result describes one reconciliation run.
type Result struct {
	Lines         int
	Rows          int
	Groups        int
	SheetsWritten int
	Removed       int
}

// Run reconciles a taxpayer: it reads the consolidated report, combines
// fresh results with checkpointed ones, writes the statement workbook and
// then removes the consumed checkpoints.
func (e *Engine) Run(ctx context.Context, paths config.TaxpayerPaths, fresh []domain.DetailResult) (Result, error) {
	var res Result
	logger := e.logger.With("gstin", paths.GSTIN)

	report, err := ReadReport(paths.MergedReport(), logger)
	if err != nil {
		return res, fmt.Errorf("failed to read consolidated report: %w", err)
	}

	loaded, checkpoints, err := checkpoint.LoadDetails(paths, logger)
	if err != nil {
		return res, err
	}
	details := Collect(fresh, loaded)
	res.Lines = len(Lines(details))
	logger.Info(fmt.Sprintf("All EWB HSN combinations: %d", res.Lines))

	groups := e.Build(paths.GSTIN, report, details)
	if len(groups) == 0 {
		return res, ErrNothingToReconcile
	}
	res.Groups = len(groups)
	for _, g := range groups {
		res.Rows += len(g.Rows)
	}

	written, err := e.Write(paths.Statement(), groups)
	res.SheetsWritten = written
	if err != nil {
		return res, err
	}
	e.metrics.RecordStatementRows(ctx, res.Rows)
	logger.Info(fmt.Sprintf("Stock statement creation for %s is complete", paths.GSTIN),
		"groups", res.Groups, "rows", res.Rows)

	res.Removed = checkpoint.Remove(checkpoints, logger)
	return res, nil
}

// joined is a detail line matched to its report row.
type joined struct {
	report   domain.ReportRow
	line     DetailLine
	quantity decimal.Decimal
	unit     string
}

// Build joins details onto report rows and computes per-group statements.
// Groups come out in order of their earliest bill.
func (e *Engine) Build(gstin string, report []domain.ReportRow, details []domain.DetailResult) []domain.GroupStatement {
	lines := Lines(details)
	slices.SortStableFunc(lines, func(a, b DetailLine) int {
		return cmp.Or(cmp.Compare(a.Bill, b.Bill), cmp.Compare(a.HSN, b.HSN))
	})

	byBill := make(map[string][]DetailLine)
	for _, l := range lines {
		byBill[l.Bill] = append(byBill[l.Bill], l)
	}

	var matched []joined
	for _, r := range report {
		for _, l := range byBill[r.BillNo] {
			q, unit, err := SplitQuantity(l.QuantityText)
			if err != nil {
				e.logger.Warn("Unreadable quantity, using zero", "ewb", l.Bill, "error", err)
			}
			matched = append(matched, joined{report: r, line: l, quantity: e.rule.Apply(q), unit: unit})
		}
	}
	slices.SortStableFunc(matched, func(a, b joined) int {
		return a.report.Timestamp.Compare(b.report.Timestamp)
	})

	var order []string
	grouped := make(map[string][]domain.StatementRow)
	for _, m := range matched {
		row := e.classify(gstin, m)
		if _, ok := grouped[row.Group]; !ok {
			order = append(order, row.Group)
		}
		grouped[row.Group] = append(grouped[row.Group], row)
	}

	statements := make([]domain.GroupStatement, 0, len(order))
	for _, g := range order {
		rows := grouped[g]
		ApplyBalances(rows)
		statements = append(statements, domain.GroupStatement{Group: g, Rows: rows})
	}
	return statements
}

func (e *Engine) classify(gstin string, m joined) domain.StatementRow {
	r := m.report
	row := domain.StatementRow{
		BillNo:        r.BillNo,
		Timestamp:     r.Timestamp,
		HSN:           r.HSN,
		Group:         GroupOf(r.HSN, m.line.HSN),
		Unit:          m.unit,
		Distance:      m.line.Distance,
		TransportType: m.line.Transport,
		Purchase:      domain.Movement{Party: r.FromParty, Address: m.line.From},
		Sale:          domain.Movement{Party: r.ToParty, Address: m.line.To},
	}
	full := domain.Movement{Quantity: m.quantity, Value: r.AssessValue, TaxValue: r.TaxValue, Vehicle: r.Vehicle}

	switch {
	case partyIs(r.FromParty, gstin):
		row.Side = domain.SideSale
		row.Sale = withParty(full, row.Sale)
	case partyIs(r.ToParty, gstin):
		row.Side = domain.SidePurchase
		row.Purchase = withParty(full, row.Purchase)
	default:
		row.Side = domain.SideUnknown
		e.logger.Warn("Taxpayer is neither sender nor receiver", "ewb", r.BillNo, "gstin", gstin)
	}
	return row
}

func withParty(values, party domain.Movement) domain.Movement {
	values.Party = party.Party
	values.Address = party.Address
	return values
}

func partyIs(party, gstin string) bool {
	return gstin != "" && strings.Contains(strings.ToUpper(party), strings.ToUpper(gstin))
}

// GroupOf is the first four characters of the report HSN, falling back to
// the detail HSN.
func GroupOf(reportHSN, detailHSN string) string {
	for _, h := range []string{reportHSN, detailHSN} {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if len(h) > 4 {
			h = h[:4]
		}
		return h
	}
	return UnclassifiedGroup
}

// ApplyBalances fills opening, total stock and closing for rows already
// in statement order. Values are kept unrounded.
func ApplyBalances(rows []domain.StatementRow) {
	balance := decimal.Zero
	for i := range rows {
		rows[i].Opening = balance
		rows[i].TotalStock = balance.Add(rows[i].Purchase.Quantity)
		balance = balance.Add(rows[i].Purchase.Quantity).Sub(rows[i].Sale.Quantity)
		rows[i].Closing = balance
	}
}
