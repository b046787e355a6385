package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/aggregate"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/normalizer"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/reconcile"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// CompletionMessage is the last line of every run that was not aborted.
const CompletionMessage = "~*~ All GSTINs processed successfully ~*~"

// Runner drives one job: a single session, then each enabled stage over
// every taxpayer in job order.
type Runner struct {
	cfg     *config.Config
	job     *config.JobDescription
	session Establisher
	build   StageBuilder
	state   *RunState
	tracer  *RunTracer
	logger  *slog.Logger
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithTracer replaces the run tracer.
func WithTracer(t *RunTracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner prepares a run of job. state is shared with status readers.
func NewRunner(cfg *config.Config, job *config.JobDescription, session Establisher, build StageBuilder, state *RunState, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:     cfg,
		job:     job,
		session: session,
		build:   build,
		state:   state,
		tracer:  NewRunTracer(nil),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the run state.
func (r *Runner) State() *RunState {
	return r.state
}

// Run executes the job. A failed session, an invalid job or cancellation
// stops the run with a fatal error. Taxpayer failures do not stop it: they
// are logged, recorded in the run state and returned together as one
// non-fatal error after the completion line.
func (r *Runner) Run(ctx context.Context) (err error) {
	ctx = infrastructure.WithRunID(ctx, r.state.RunID)
	ctx, span := r.tracer.TraceRun(ctx, r.state.RunID, len(r.job.GSTINs))
	defer span.End()

	r.state.Start()
	defer func() {
		if apperrors.IsFatal(err) {
			span.RecordError(err)
			r.state.Fail(err)
			return
		}
		r.state.Complete()
	}()

	if err := r.job.Validate(); err != nil {
		return apperrors.NewValidationError("job", "invalid job description", err)
	}

	periods := r.job.Periods()
	r.logger.InfoContext(ctx, fmt.Sprintf("Reporting periods: %s", formatPeriods(periods)),
		"count", len(periods))

	report, err := r.session.Establish(ctx, r.job.Username, r.job.Password)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewCancellationError("session", ctx.Err())
		}
		r.logger.ErrorContext(ctx, "Login or EWB MIS navigation failed", "error", err)
		return apperrors.NewFatalError("login or EWB MIS navigation failed", err)
	}
	stages := r.build(report)

	plan := []struct {
		stage   string
		enabled bool
		skipMsg string
		run     func(context.Context, Stages, config.TaxpayerPaths, *StepState, []domain.Period) error
	}{
		{StageExtract, r.job.ExtractEWBData,
			"Skipping downloading E-Way bills from GST portal as extract_ewb_data_flag is False.", r.runExtract},
		{StageStockStatement, r.job.PrepareStockStatement,
			"Skipping preparing stock statement from GST portal as prepare_stock_statement_flag is False.", r.runStockStatement},
		{StageToll, r.job.CheckTollData,
			"Skipping toll data from GST portal as check_toll_data_flag is False.", r.runToll},
	}

	var failures []error
	for _, p := range plan {
		if !p.enabled {
			r.logger.InfoContext(ctx, p.skipMsg)
			continue
		}
		for _, gstin := range r.job.GSTINs {
			err := r.runStage(ctx, p.stage, gstin, stages, periods, p.run)
			if apperrors.IsFatal(err) {
				return err
			}
			if err != nil {
				failures = append(failures, err)
			}
		}
	}

	if len(failures) > 0 {
		r.logger.WarnContext(ctx, "Run finished with taxpayer failures", "failed_steps", len(failures))
	}
	r.logger.InfoContext(ctx, CompletionMessage)
	if len(failures) > 0 {
		return apperrors.NewTaxpayerError("run", "", fmt.Sprintf("%d step(s) failed", len(failures)), errors.Join(failures...))
	}
	return nil
}

// runStage runs one stage for one taxpayer and classifies its outcome.
// It returns nil for completed and skipped steps, the step's error for a
// failed step, and a fatal error when the run must stop.
func (r *Runner) runStage(ctx context.Context, stage, gstin string, stages Stages, periods []domain.Period,
	run func(context.Context, Stages, config.TaxpayerPaths, *StepState, []domain.Period) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancellationError(stage, err)
	}

	step := r.state.Step(stage, gstin)
	logger := infrastructure.WithGSTIN(r.logger, gstin).With("stage", stage)

	paths, err := r.cfg.TaxpayerPaths(gstin)
	if err == nil {
		err = paths.Ensure()
	}
	if err != nil {
		err = apperrors.NewTaxpayerError(stage, gstin, "cannot prepare output directory", err)
		step.Fail(err)
		logger.ErrorContext(ctx, "Cannot prepare output directory", "error", err)
		return err
	}

	stageCtx, span := r.tracer.TraceStage(ctx, stage, gstin)
	step.Start()
	start := time.Now()
	err = run(stageCtx, stages, paths, step, periods)
	r.tracer.RecordStageCompletion(stageCtx, span, stage, time.Since(start), err)
	span.End()

	switch {
	case err == nil:
		step.Complete(stageDoneMessage(stage, gstin))
		logger.InfoContext(ctx, stageDoneMessage(stage, gstin))
	case ctx.Err() != nil:
		step.Fail(err)
		return apperrors.NewCancellationError(stage, ctx.Err())
	case apperrors.GetErrorType(err) == apperrors.ErrorTypeExpectedEmpty:
		step.Skip(err.Error())
		logger.InfoContext(ctx, "Nothing to do for taxpayer", "reason", err.Error())
	default:
		if apperrors.IsFatal(err) {
			// a canceled browser action while the run is still live
			err = apperrors.NewTaxpayerError(stage, gstin, "stage aborted", err)
		}
		step.Fail(err)
		logger.ErrorContext(ctx, fmt.Sprintf("Error during %s for %s", stage, gstin), "error", err)
		return err
	}
	return nil
}

func stageDoneMessage(stage, gstin string) string {
	switch stage {
	case StageExtract:
		return fmt.Sprintf("E-Way Bill extraction and merge complete for GSTIN: %s.", gstin)
	case StageStockStatement:
		return fmt.Sprintf("Stock Statement preparation complete for GSTIN: %s.", gstin)
	default:
		return fmt.Sprintf("Toll details creation complete for %s.", gstin)
	}
}

func (r *Runner) runExtract(ctx context.Context, s Stages, paths config.TaxpayerPaths, step *StepState, periods []domain.Period) error {
	r.logger.InfoContext(ctx, "Starting to extract EWB for GSTIN: "+paths.GSTIN)

	var total int
	for _, dir := range domain.Directions {
		summary, err := s.Fetcher.Fetch(ctx, paths, dir, periods)
		if err != nil {
			return apperrors.NewTaxpayerError(StageExtract, paths.GSTIN, fmt.Sprintf("fetch %s exports", dir.Prefix()), err)
		}
		step.SetCounter(dir.Prefix()+"_downloaded", summary.Downloaded)
		step.SetCounter(dir.Prefix()+"_empty", summary.Empty)
		step.SetCounter(dir.Prefix()+"_failed", summary.Failed)
		r.warnItemFailures(ctx, summary.Errors)
		total += summary.Downloaded
	}

	conv, err := s.Converter.ConvertLegacy(ctx, paths)
	if err != nil && !errors.Is(err, normalizer.ErrNoInputs) {
		return apperrors.NewTaxpayerError(StageExtract, paths.GSTIN, "convert exports", err)
	}
	step.SetCounter("converted", conv.Converted)

	rows, err := s.Converter.Merge(ctx, paths)
	if errors.Is(err, normalizer.ErrNoInputs) {
		return apperrors.NewExpectedEmptyError(StageExtract, paths.GSTIN,
			fmt.Sprintf("no E-Way Bill exports for %s (%d downloaded)", paths.GSTIN, total))
	}
	if err != nil {
		return apperrors.NewTaxpayerError(StageExtract, paths.GSTIN, "merge exports", err)
	}
	step.SetCounter("merged_rows", rows)
	return nil
}

// reportBills reads the consolidated report a stage depends on.
func (r *Runner) reportBills(stage string, paths config.TaxpayerPaths) ([]string, error) {
	merged := paths.MergedReport()
	if _, err := os.Stat(merged); err != nil {
		return nil, apperrors.NewTaxpayerError(stage, paths.GSTIN,
			fmt.Sprintf("Merged EWB file not found for %s at %s", paths.GSTIN, merged), err)
	}
	rows, err := reconcile.ReadReport(merged, r.logger.With("gstin", paths.GSTIN))
	if err != nil {
		return nil, apperrors.NewTaxpayerError(stage, paths.GSTIN, "read consolidated report", err)
	}
	return reconcile.BillNumbers(rows), nil
}

func (r *Runner) runStockStatement(ctx context.Context, s Stages, paths config.TaxpayerPaths, step *StepState, _ []domain.Period) error {
	r.logger.InfoContext(ctx, "Preparing Stock Statement for GSTIN: "+paths.GSTIN)

	bills, err := r.reportBills(StageStockStatement, paths)
	if err != nil {
		return err
	}
	step.SetCounter("bills", len(bills))

	details, batch, err := s.Details.Extract(ctx, paths, bills)
	if err != nil {
		return apperrors.NewTaxpayerError(StageStockStatement, paths.GSTIN, "extract bill details", err)
	}
	step.SetCounter("details_resumed", batch.Resumed)
	step.SetCounter("details_failed", batch.Failed)
	r.warnItemFailures(ctx, batch.Errors)

	res, err := s.Reconciler.Run(ctx, paths, details)
	if errors.Is(err, reconcile.ErrNothingToReconcile) {
		return apperrors.NewExpectedEmptyError(StageStockStatement, paths.GSTIN, "no bill details matched the consolidated report")
	}
	if err != nil {
		return apperrors.NewTaxpayerError(StageStockStatement, paths.GSTIN, "build stock statement", err)
	}
	step.SetCounter("statement_rows", res.Rows)
	step.SetCounter("sheets", res.SheetsWritten)

	merged, err := s.Aggregator.MergeSheets(ctx, paths)
	if err != nil {
		return apperrors.NewTaxpayerError(StageStockStatement, paths.GSTIN, "merge statement sheets", err)
	}
	step.SetCounter("flattened_rows", merged.After)
	return nil
}

func (r *Runner) runToll(ctx context.Context, s Stages, paths config.TaxpayerPaths, step *StepState, _ []domain.Period) error {
	r.logger.InfoContext(ctx, fmt.Sprintf("Checking Toll data for GSTIN: %s...", paths.GSTIN))

	bills, err := r.reportBills(StageToll, paths)
	if err != nil {
		return err
	}
	step.SetCounter("bills", len(bills))

	tolls, batch, err := s.Tolls.Extract(ctx, paths, bills)
	if err != nil {
		return apperrors.NewTaxpayerError(StageToll, paths.GSTIN, "extract toll data", err)
	}
	step.SetCounter("tolls_resumed", batch.Resumed)
	step.SetCounter("tolls_failed", batch.Failed)
	r.warnItemFailures(ctx, batch.Errors)

	res, err := s.Aggregator.MergeToll(ctx, paths, tolls)
	if errors.Is(err, aggregate.ErrStatementMissing) {
		return apperrors.NewTaxpayerError(StageToll, paths.GSTIN, "stock statement must exist before toll merge", err)
	}
	if err != nil {
		return apperrors.NewTaxpayerError(StageToll, paths.GSTIN, "merge toll data", err)
	}
	step.SetCounter("toll_rows", res.Rows)
	return nil
}

// warnItemFailures summarizes the bills or filters a stage gave up on.
func (r *Runner) warnItemFailures(ctx context.Context, errs []error) {
	if len(errs) == 0 {
		return
	}
	var first *apperrors.OperationError
	if !errors.As(errs[0], &first) {
		r.logger.WarnContext(ctx, "Items failed", "count", len(errs), "first_error", errs[0])
		return
	}
	r.logger.WarnContext(ctx, fmt.Sprintf("%d item(s) failed during %s for %s", len(errs), first.Stage, first.GSTIN),
		"first_item", first.Message, "first_error", first)
}

func formatPeriods(periods []domain.Period) string {
	if len(periods) == 0 {
		return "none"
	}
	if len(periods) == 1 {
		return periods[0].String()
	}
	return fmt.Sprintf("%s .. %s", periods[0], periods[len(periods)-1])
}
