package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/checkpoint"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Toll outcomes recorded in metrics.
const (
	OutcomeIncomplete = "incomplete"
	OutcomeNoTable    = "no_table"
)

var errIncompleteToll = errors.New("toll table incomplete")

// TollExtractor reads the RFID toll crossing grid of each bill.
type TollExtractor struct {
	page    Page
	cfg     ExtractConfig
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewTollExtractor returns an extractor working on page.
func NewTollExtractor(page Page, cfg ExtractConfig, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *TollExtractor {
	return &TollExtractor{page: page, cfg: cfg.withDefaults(), logger: logger, metrics: metrics}
}

// Extract visits every bill's toll report, checkpointing each usable table.
// Bills already checkpointed are skipped.
func (x *TollExtractor) Extract(ctx context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.TollTable, BatchSummary, error) {
	summary := newBatchSummary(len(bills))
	logger := x.logger.With("gstin", paths.GSTIN)
	var tables []domain.TollTable

	for i, bill := range bills {
		if err := ctx.Err(); err != nil {
			return tables, summary, err
		}
		progress := fmt.Sprintf("[%d/%d]", i+1, len(bills))

		if checkpoint.HasToll(paths, bill) {
			summary.Resumed++
			logger.Info(progress+" Toll data already extracted, skipping", "ewb", bill)
			continue
		}

		logger.Info(progress+" Extracting toll data", "ewb", bill)
		table, err := x.extractOne(ctx, bill)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return tables, summary, ctx.Err()
		case errors.Is(err, ErrNoTable):
			summary.Outcomes[OutcomeNoTable]++
			x.metrics.RecordTollTable(ctx, OutcomeNoTable)
			logger.Info(progress+" Toll data table not found", "ewb", bill)
			continue
		case errors.Is(err, errIncompleteToll):
			summary.Outcomes[OutcomeIncomplete]++
			x.metrics.RecordTollTable(ctx, OutcomeIncomplete)
			logger.Info(progress+" Toll data incomplete, skipping", "ewb", bill)
			continue
		default:
			itemErr := summary.fail(domain.StageToll, paths.GSTIN, bill, err)
			x.metrics.RecordTollTable(ctx, OutcomeFailed)
			logger.Error(progress+" Error extracting toll data", "ewb", bill, "error", itemErr)
			continue
		}

		if _, err := checkpoint.WriteToll(paths, table); err != nil {
			itemErr := summary.fail(domain.StageToll, paths.GSTIN, bill, err)
			x.metrics.RecordTollTable(ctx, OutcomeFailed)
			logger.Error(progress+" Error saving toll data", "ewb", bill, "error", itemErr)
			continue
		}
		summary.Outcomes[OutcomeDownloaded]++
		x.metrics.RecordTollTable(ctx, OutcomeDownloaded)
		logger.Info(progress+" Toll data saved", "ewb", bill, "rows", len(table.Rows))
		tables = append(tables, table)
	}
	return tables, summary, nil
}

func (x *TollExtractor) extractOne(ctx context.Context, bill string) (domain.TollTable, error) {
	if err := x.cfg.Pacer.Wait(ctx); err != nil {
		return domain.TollTable{}, err
	}

	navCtx, cancelNav := context.WithTimeout(ctx, x.cfg.ExtendedTimeout)
	defer cancelNav()
	if err := x.page.Navigate(navCtx, fmt.Sprintf(x.cfg.URLTemplate, bill)); err != nil {
		return domain.TollTable{}, fmt.Errorf("failed to open toll report: %w", err)
	}

	found, err := x.page.Probe(ctx, SelTollTable, x.cfg.DefaultTimeout)
	if err != nil {
		return domain.TollTable{}, err
	}
	if !found {
		return domain.TollTable{}, ErrNoTable
	}

	stepCtx, cancel := context.WithTimeout(ctx, x.cfg.DefaultTimeout)
	defer cancel()
	html, err := x.page.OuterHTML(stepCtx, SelTollTable)
	if err != nil {
		return domain.TollTable{}, fmt.Errorf("failed to read toll table: %w", err)
	}
	t, err := workbook.ParseHTMLTable(html)
	if err != nil {
		return domain.TollTable{}, fmt.Errorf("%w: %w", ErrNoTable, err)
	}
	return TollTableFrom(bill, t)
}

// TollTableFrom converts a parsed toll grid. A grid with at most one column
// carries no crossing data.
func TollTableFrom(bill string, t *workbook.Table) (domain.TollTable, error) {
	if len(t.Headers) <= 1 || t.Len() == 0 {
		return domain.TollTable{}, errIncompleteToll
	}
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = strings.TrimSpace(h)
	}
	return domain.TollTable{BillNo: bill, Headers: headers, Rows: t.Rows}, nil
}
