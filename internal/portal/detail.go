package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/checkpoint"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// ExtractConfig holds the page URL template and waits for per-bill extractors.
type ExtractConfig struct {
	// URLTemplate has one %s for the bill number.
	URLTemplate     string
	DefaultTimeout  time.Duration
	ExtendedTimeout time.Duration
	ProbeTimeout    time.Duration
	Pacer           *rate.Limiter
}

func (c ExtractConfig) withDefaults() ExtractConfig {
	if c.Pacer == nil {
		c.Pacer = rate.NewLimiter(rate.Inf, 1)
	}
	return c
}

// BatchSummary counts per-bill outcomes of an extraction batch.
type BatchSummary struct {
	Total   int
	Resumed int
	Failed  int
	// Outcomes counts finished bills by shape or outcome name.
	Outcomes map[string]int
	// Errors holds one item error per failed bill, in order.
	Errors []error
}

func (s *BatchSummary) fail(stage, gstin, bill string, err error) error {
	itemErr := apperrors.NewItemError(stage, gstin, bill, err)
	s.Failed++
	s.Errors = append(s.Errors, itemErr)
	return itemErr
}

func newBatchSummary(total int) BatchSummary {
	return BatchSummary{Total: total, Outcomes: make(map[string]int)}
}

// DetailExtractor reads item tables from bill print pages.
type DetailExtractor struct {
	page    Page
	cfg     ExtractConfig
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewDetailExtractor returns an extractor working on page.
func NewDetailExtractor(page Page, cfg ExtractConfig, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *DetailExtractor {
	return &DetailExtractor{page: page, cfg: cfg.withDefaults(), logger: logger, metrics: metrics}
}

// Extract visits every bill in order. Bills with an existing checkpoint are
// skipped; every other non-empty result is checkpointed and returned. Only
// cancellation stops the batch early.
func (d *DetailExtractor) Extract(ctx context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.DetailResult, BatchSummary, error) {
	summary := newBatchSummary(len(bills))
	logger := d.logger.With("gstin", paths.GSTIN)
	var results []domain.DetailResult

	for i, bill := range bills {
		if err := ctx.Err(); err != nil {
			return results, summary, err
		}
		progress := fmt.Sprintf("[%d/%d]", i+1, len(bills))

		if checkpoint.HasDetail(paths, bill) {
			summary.Resumed++
			logger.Info(progress+" Detail already extracted, skipping", "ewb", bill)
			continue
		}

		logger.Info(progress+" Processing EWB", "ewb", bill)
		result, err := d.extractOne(ctx, bill)
		if err != nil {
			if ctx.Err() != nil {
				return results, summary, ctx.Err()
			}
			itemErr := summary.fail(domain.StageStockStatement, paths.GSTIN, bill, err)
			d.metrics.RecordBillDetail(ctx, OutcomeFailed)
			logger.Error(progress+" Error processing EWB", "ewb", bill, "error", itemErr)
			continue
		}

		summary.Outcomes[string(result.Shape)]++
		d.metrics.RecordBillDetail(ctx, string(result.Shape))
		if !result.HasData() {
			logger.Info(progress+" Nothing found for EWB", "ewb", bill)
			continue
		}

		if _, err := checkpoint.WriteDetail(paths, result); err != nil {
			logger.Error(progress+" Error saving EWB detail", "ewb", bill,
				"error", apperrors.NewItemError(domain.StageStockStatement, paths.GSTIN, bill, err))
		}
		logger.Info(fmt.Sprintf("%s Extracted %s detail", progress, result.Shape), "ewb", bill, "items", len(result.Items))
		results = append(results, result)
	}
	return results, summary, nil
}

func (d *DetailExtractor) extractOne(ctx context.Context, bill string) (domain.DetailResult, error) {
	if err := d.cfg.Pacer.Wait(ctx); err != nil {
		return domain.DetailResult{}, err
	}

	navCtx, cancelNav := context.WithTimeout(ctx, d.cfg.ExtendedTimeout)
	defer cancelNav()
	if err := d.page.Navigate(navCtx, fmt.Sprintf(d.cfg.URLTemplate, bill)); err != nil {
		return domain.DetailResult{}, fmt.Errorf("failed to open bill page: %w", err)
	}
	if err := d.page.WaitIdle(navCtx); err != nil {
		return domain.DetailResult{}, fmt.Errorf("bill page did not settle: %w", err)
	}

	stepCtx, cancel := context.WithTimeout(ctx, d.cfg.DefaultTimeout)
	defer cancel()

	header, err := d.readHeader(stepCtx)
	if err != nil {
		return domain.DetailResult{}, err
	}

	found, err := d.page.Probe(stepCtx, SelItemTable, d.cfg.ProbeTimeout)
	if err != nil {
		return domain.DetailResult{}, err
	}
	if found {
		items, err := d.readItems(stepCtx, SelItemTable, false)
		if err != nil {
			return domain.DetailResult{}, err
		}
		return domain.Primary(bill, header, items), nil
	}

	hasIRN, err := d.page.Probe(stepCtx, SelIRNButton, d.cfg.ProbeTimeout)
	if err != nil {
		return domain.DetailResult{}, err
	}
	if !hasIRN {
		return domain.Empty(bill, header), nil
	}
	return d.extractIRN(ctx, bill, header)
}

// extractIRN opens the IRN view. The portal answers either with an alert,
// which yields a placeholder record, or with the secondary item table.
func (d *DetailExtractor) extractIRN(ctx context.Context, bill string, header domain.BillHeader) (domain.DetailResult, error) {
	raceCtx, cancel := context.WithTimeout(ctx, d.cfg.DefaultTimeout)
	dialog, err := d.page.ClickAwaitDialog(raceCtx, SelIRNButton, SelIRNTable)
	cancel()
	switch {
	case err == nil && dialog:
		d.logger.Info("IRN dialog accepted, recording placeholder", "ewb", bill)
		return domain.Placeholder(bill, header), nil
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		return domain.DetailResult{}, err
	}

	stepCtx, cancelStep := context.WithTimeout(ctx, d.cfg.DefaultTimeout)
	defer cancelStep()
	found, err := d.page.Probe(stepCtx, SelIRNTable, d.cfg.ProbeTimeout)
	if err != nil {
		return domain.DetailResult{}, err
	}
	if !found {
		return domain.Empty(bill, header), nil
	}
	items, err := d.readItems(stepCtx, SelIRNTable, true)
	if err != nil {
		return domain.DetailResult{}, err
	}
	return domain.Alternate(bill, header, items), nil
}

func (d *DetailExtractor) readHeader(ctx context.Context) (domain.BillHeader, error) {
	var h domain.BillHeader
	fields := []struct {
		sel string
		dst *string
	}{
		{SelDistance, &h.Distance},
		{SelTransportType, &h.TransportType},
		{SelGeneratedBy, &h.FromAddress},
		{SelSupplyTo, &h.ToAddress},
	}
	for _, f := range fields {
		text, err := d.page.Text(ctx, f.sel)
		if err != nil {
			return h, fmt.Errorf("failed to read %s: %w", f.sel, err)
		}
		*f.dst = text
	}
	return h, nil
}

func (d *DetailExtractor) readItems(ctx context.Context, sel string, alternate bool) ([]domain.DetailItem, error) {
	html, err := d.page.OuterHTML(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sel, err)
	}
	t, err := workbook.ParseHTMLTable(html)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoTable, sel, err)
	}
	return ParseItems(t, alternate)
}

// ParseItems maps an item grid to detail items. The IRN grid carries the
// unit in its own column and titles the amount differently.
func ParseItems(t *workbook.Table, alternate bool) ([]domain.DetailItem, error) {
	amount := ColPrimaryAmount
	required := []string{ColHSN, ColQuantity}
	if alternate {
		amount = ColAlternateAmount
		required = append(required, ColUnit)
	}
	if !t.Has(required...) {
		return nil, fmt.Errorf("%w: item grid lacks %v, has %v", ErrNoTable, required, t.Headers)
	}

	items := make([]domain.DetailItem, 0, t.Len())
	for _, row := range t.Rows {
		it := domain.DetailItem{
			HSN:           t.Value(row, ColHSN),
			Quantity:      t.Value(row, ColQuantity),
			TaxableAmount: t.Value(row, amount),
		}
		if alternate {
			it.Unit = t.Value(row, ColUnit)
		}
		if it.HSN == "" && it.Quantity == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}
