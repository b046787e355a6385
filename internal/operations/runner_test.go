package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/aggregate"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/normalizer"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/portal"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/reconcile"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/shared/testutil"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

const (
	gstinA = "27AAPFU0939F1ZV"
	gstinB = "09AAACH7409R1ZZ"
)

// recorder collects stage calls across all fakes in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSession struct {
	calls int
	err   error
}

func (s *fakeSession) Establish(context.Context, string, string) (portal.Page, error) {
	s.calls++
	return nil, s.err
}

type fakeFetcher struct {
	rec  *recorder
	errs map[string]error
	// cancel, when set, is called on the first fetch.
	cancel context.CancelFunc
}

func (f *fakeFetcher) Fetch(ctx context.Context, paths config.TaxpayerPaths, dir domain.Direction, periods []domain.Period) (portal.FetchSummary, error) {
	f.rec.add("fetch %s %s %d", paths.GSTIN, dir.Prefix(), len(periods))
	if f.cancel != nil {
		f.cancel()
		return portal.FetchSummary{}, ctx.Err()
	}
	if err := f.errs[paths.GSTIN]; err != nil {
		return portal.FetchSummary{}, err
	}
	return portal.FetchSummary{Downloaded: 1}, nil
}

// fakeConverter writes a consolidated report so later stages find one.
type fakeConverter struct {
	rec   *recorder
	empty map[string]bool
}

func (c *fakeConverter) ConvertLegacy(_ context.Context, paths config.TaxpayerPaths) (normalizer.ConvertSummary, error) {
	c.rec.add("convert %s", paths.GSTIN)
	return normalizer.ConvertSummary{Converted: 2}, nil
}

func (c *fakeConverter) Merge(_ context.Context, paths config.TaxpayerPaths) (int, error) {
	c.rec.add("merge %s", paths.GSTIN)
	if c.empty[paths.GSTIN] {
		return 0, normalizer.ErrNoInputs
	}
	return 2, writeReport(paths)
}

func writeReport(paths config.TaxpayerPaths) error {
	t := workbook.NewTable(reconcile.ColBillNo, reconcile.ColBillNoDate, reconcile.ColHSN,
		reconcile.ColFromParty, reconcile.ColToParty, reconcile.ColAssessVal, reconcile.ColTaxVal, reconcile.ColVehicle)
	t.Append([]string{"331000000001", "331000000001 - 05/01/2024 10:30:00", "8471", "X", paths.GSTIN, "100", "18", "V1"})
	t.Append([]string{"331000000002", "331000000002 - 06/01/2024 10:30:00", "8471", paths.GSTIN, "Y", "200", "36", "V2"})
	t.Append([]string{"331000000001", "331000000001 - 05/01/2024 10:30:00", "0401", "X", paths.GSTIN, "50", "0", "V1"})
	return workbook.WriteTable(paths.MergedReport(), "Sheet1", t)
}

type fakeDetails struct{ rec *recorder }

func (d *fakeDetails) Extract(_ context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.DetailResult, portal.BatchSummary, error) {
	d.rec.add("details %s %v", paths.GSTIN, bills)
	return []domain.DetailResult{{Shape: domain.ShapePrimary, BillNo: bills[0]}}, portal.BatchSummary{Total: len(bills)}, nil
}

type fakeTolls struct {
	rec     *recorder
	itemErr error
}

func (x *fakeTolls) Extract(_ context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.TollTable, portal.BatchSummary, error) {
	x.rec.add("tolls %s %d", paths.GSTIN, len(bills))
	summary := portal.BatchSummary{Total: len(bills)}
	if x.itemErr != nil {
		summary.Failed = 1
		summary.Errors = []error{apperrors.NewItemError(StageToll, paths.GSTIN, bills[len(bills)-1], x.itemErr)}
	}
	return nil, summary, nil
}

type fakeReconciler struct {
	rec *recorder
	err error
}

func (r *fakeReconciler) Run(_ context.Context, paths config.TaxpayerPaths, fresh []domain.DetailResult) (reconcile.Result, error) {
	r.rec.add("reconcile %s %d", paths.GSTIN, len(fresh))
	if r.err != nil {
		return reconcile.Result{}, r.err
	}
	return reconcile.Result{Rows: 3, SheetsWritten: 2}, nil
}

type fakeAggregator struct {
	rec     *recorder
	tollErr error
}

func (a *fakeAggregator) MergeSheets(_ context.Context, paths config.TaxpayerPaths) (aggregate.SheetMergeResult, error) {
	a.rec.add("sheets %s", paths.GSTIN)
	return aggregate.SheetMergeResult{Sheets: 2, Before: 3, After: 3}, nil
}

func (a *fakeAggregator) MergeToll(_ context.Context, paths config.TaxpayerPaths, _ []domain.TollTable) (aggregate.TollResult, error) {
	a.rec.add("toll-merge %s", paths.GSTIN)
	return aggregate.TollResult{Rows: 1}, a.tollErr
}

type harness struct {
	rec        *recorder
	session    *fakeSession
	fetcher    *fakeFetcher
	converter  *fakeConverter
	reconciler *fakeReconciler
	aggregator *fakeAggregator
	tolls      *fakeTolls
	cfg        *config.Config
	job        *config.JobDescription
	state      *RunState
	logger     *slog.Logger
	handler    *testutil.BufferedSlogHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	cfg := config.Default()
	cfg.Output.RootDir = t.TempDir()
	logger, handler := testutil.NewTestLogger(t)

	return &harness{
		rec:        rec,
		session:    &fakeSession{},
		fetcher:    &fakeFetcher{rec: rec, errs: map[string]error{}},
		converter:  &fakeConverter{rec: rec, empty: map[string]bool{}},
		reconciler: &fakeReconciler{rec: rec},
		aggregator: &fakeAggregator{rec: rec},
		tolls:      &fakeTolls{rec: rec},
		cfg:        cfg,
		job: &config.JobDescription{
			Username:              "trader01",
			Password:              "s3cret",
			GSTINs:                []string{gstinA, gstinB},
			StartMonth:            "November",
			EndMonth:              "February",
			StartYear:             2023,
			EndYear:               2024,
			ExtractEWBData:        true,
			PrepareStockStatement: true,
			CheckTollData:         true,
		},
		state:   NewRunState("run-1"),
		logger:  logger,
		handler: handler,
	}
}

func (h *harness) runner() *Runner {
	build := func(portal.Page) Stages {
		return Stages{
			Fetcher:    h.fetcher,
			Converter:  h.converter,
			Details:    &fakeDetails{rec: h.rec},
			Tolls:      h.tolls,
			Reconciler: h.reconciler,
			Aggregator: h.aggregator,
		}
	}
	return NewRunner(h.cfg, h.job, h.session, build, h.state, h.logger)
}

func TestRunAllStagesInOrder(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.runner().Run(context.Background()))

	assert.Equal(t, []string{
		"fetch " + gstinA + " In 4",
		"fetch " + gstinA + " Out 4",
		"convert " + gstinA,
		"merge " + gstinA,
		"fetch " + gstinB + " In 4",
		"fetch " + gstinB + " Out 4",
		"convert " + gstinB,
		"merge " + gstinB,
		"details " + gstinA + " [331000000001 331000000002]",
		"reconcile " + gstinA + " 1",
		"sheets " + gstinA,
		"details " + gstinB + " [331000000001 331000000002]",
		"reconcile " + gstinB + " 1",
		"sheets " + gstinB,
		"tolls " + gstinA + " 2",
		"toll-merge " + gstinA,
		"tolls " + gstinB + " 2",
		"toll-merge " + gstinB,
	}, h.rec.list())

	assert.Equal(t, 1, h.session.calls)
	snap := h.state.Snapshot()
	assert.Equal(t, RunStatusCompleted, snap.Status)
	require.Len(t, snap.Steps, 6)
	for _, s := range snap.Steps {
		assert.Equal(t, StepStatusCompleted, s.Status, "%s/%s", s.Stage, s.GSTIN)
	}
	assert.Equal(t, 3, snap.Steps[2].Counters["statement_rows"])
	testutil.AssertLogContains(t, h.handler, slog.LevelInfo, CompletionMessage)
	testutil.AssertNoErrors(t, h.handler)
}

func TestRunSessionFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.session.err = fmt.Errorf("%w: awaiting manual auth: deadline", portal.ErrSessionFailed)

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, apperrors.ErrorTypeFatal, apperrors.GetErrorType(err))
	assert.ErrorIs(t, err, portal.ErrSessionFailed)

	assert.Empty(t, h.rec.list())
	assert.Equal(t, RunStatusFailed, h.state.Snapshot().Status)
	assert.False(t, h.handler.ContainsMessage(CompletionMessage))
}

func TestRunInvalidJobSkipsSession(t *testing.T) {
	h := newHarness(t)
	h.job.EndYear = 2022

	err := h.runner().Run(context.Background())
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
	assert.ErrorIs(t, err, config.ErrInvalidJob)
	assert.Zero(t, h.session.calls)
}

func TestRunTaxpayerFailureContinuesWithSiblings(t *testing.T) {
	h := newHarness(t)
	h.job.PrepareStockStatement = false
	h.job.CheckTollData = false
	h.fetcher.errs[gstinA] = errors.New("radio button not found")

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.False(t, apperrors.IsFatal(err))
	assert.Equal(t, apperrors.ErrorTypeTaxpayer, apperrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "1 step(s) failed")
	assert.Equal(t, RunStatusCompleted, h.state.Snapshot().Status)

	calls := h.rec.list()
	assert.Contains(t, calls, "merge "+gstinB)
	assert.NotContains(t, calls, "merge "+gstinA)

	failed := h.state.FailedSteps()
	require.Len(t, failed, 1)
	assert.Equal(t, gstinA, failed[0].GSTIN)
	assert.Contains(t, failed[0].Message, "radio button not found")

	testutil.AssertLogContains(t, h.handler, slog.LevelError, "Error during extract for "+gstinA)
	testutil.AssertLogContains(t, h.handler, slog.LevelInfo, CompletionMessage)
	testutil.AssertLogContains(t, h.handler, slog.LevelInfo,
		"Skipping preparing stock statement from GST portal as prepare_stock_statement_flag is False.")
}

func TestRunStageCanceledInternallyIsTaxpayerScoped(t *testing.T) {
	h := newHarness(t)
	h.job.PrepareStockStatement = false
	h.job.CheckTollData = false
	h.fetcher.errs[gstinA] = fmt.Errorf("download: %w", context.Canceled)

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.False(t, apperrors.IsFatal(err))
	assert.Contains(t, h.rec.list(), "merge "+gstinB)
	require.Len(t, h.state.FailedSteps(), 1)
}

func TestRunStockStatementNeedsMergedReport(t *testing.T) {
	h := newHarness(t)
	h.job.ExtractEWBData = false
	h.job.CheckTollData = false
	h.job.GSTINs = []string{gstinA}

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.False(t, apperrors.IsFatal(err))

	assert.Empty(t, h.rec.list())
	failed := h.state.FailedSteps()
	require.Len(t, failed, 1)
	assert.Equal(t, StageStockStatement, failed[0].Stage)
	assert.Contains(t, failed[0].Message, "Merged EWB file not found")
}

func TestRunNothingToReconcileIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.job.CheckTollData = false
	h.job.GSTINs = []string{gstinA}
	h.reconciler.err = reconcile.ErrNothingToReconcile

	require.NoError(t, h.runner().Run(context.Background()))

	assert.NotContains(t, h.rec.list(), "sheets "+gstinA)
	step := h.state.Step(StageStockStatement, gstinA).Snapshot()
	assert.Equal(t, StepStatusSkipped, step.Status)
	assert.Empty(t, h.state.FailedSteps())
}

func TestRunEmptyExportsAreExpected(t *testing.T) {
	h := newHarness(t)
	h.job.PrepareStockStatement = false
	h.job.CheckTollData = false
	h.converter.empty[gstinB] = true

	require.NoError(t, h.runner().Run(context.Background()))

	assert.Equal(t, StepStatusSkipped, h.state.Step(StageExtract, gstinB).Snapshot().Status)
	assert.Equal(t, StepStatusCompleted, h.state.Step(StageExtract, gstinA).Snapshot().Status)
	testutil.AssertNoErrors(t, h.handler)
}

func TestRunTollMergeWithoutStatementFails(t *testing.T) {
	h := newHarness(t)
	h.job.PrepareStockStatement = false
	h.job.GSTINs = []string{gstinA}
	h.aggregator.tollErr = fmt.Errorf("%w: missing.xlsx", aggregate.ErrStatementMissing)

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, aggregate.ErrStatementMissing)
	testutil.AssertLogContains(t, h.handler, slog.LevelInfo, CompletionMessage)

	failed := h.state.FailedSteps()
	require.Len(t, failed, 1)
	assert.Equal(t, StageToll, failed[0].Stage)
}

func TestRunItemFailuresDoNotFailStep(t *testing.T) {
	h := newHarness(t)
	h.job.ExtractEWBData = false
	h.job.PrepareStockStatement = false
	h.job.GSTINs = []string{gstinA}
	h.tolls.itemErr = errors.New("toll grid timeout")
	require.NoError(t, writeReport(mustPaths(t, h.cfg, gstinA)))

	require.NoError(t, h.runner().Run(context.Background()))

	step := h.state.Step(StageToll, gstinA).Snapshot()
	assert.Equal(t, StepStatusCompleted, step.Status)
	assert.Equal(t, 1, step.Counters["tolls_failed"])
	testutil.AssertLogContains(t, h.handler, slog.LevelWarn, "1 item(s) failed during toll for "+gstinA)
	assert.True(t, h.handler.ContainsAttr("first_item", "331000000002"))
}

func mustPaths(t *testing.T, cfg *config.Config, gstin string) config.TaxpayerPaths {
	t.Helper()
	paths, err := cfg.TaxpayerPaths(gstin)
	require.NoError(t, err)
	require.NoError(t, paths.Ensure())
	return paths
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.cancel = cancel

	err := h.runner().Run(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeCancellation, apperrors.GetErrorType(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"fetch " + gstinA + " In 4"}, h.rec.list())
	assert.False(t, h.handler.ContainsMessage(CompletionMessage))
}

func TestNewSessionConfig(t *testing.T) {
	cfg := config.Default()

	sc := NewSessionConfig(cfg, &config.JobDescription{})
	assert.Equal(t, cfg.Portal.LoginURL, sc.LoginURL)
	assert.Equal(t, cfg.Browser.ExtendedTimeout, sc.ExtendedTimeout)

	sc = NewSessionConfig(cfg, &config.JobDescription{URL: "https://login.example/"})
	assert.Equal(t, "https://login.example/", sc.LoginURL)
}

func TestNewStageBuilderRejectsBadRule(t *testing.T) {
	cfg := config.Default()
	logger, _ := testutil.NewTestLogger(t)

	build, err := NewStageBuilder(cfg, logger, nil)
	require.NoError(t, err)
	stages := build(nil)
	assert.NotNil(t, stages.Fetcher)
	assert.NotNil(t, stages.Aggregator)

	cfg.Reconcile.ScaleDivisor = 0
	_, err = NewStageBuilder(cfg, logger, nil)
	assert.Error(t, err)
}
