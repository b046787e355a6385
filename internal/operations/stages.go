package operations

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/aggregate"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/normalizer"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/portal"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/reconcile"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Stage identifiers, in execution order.
const (
	StageExtract        = domain.StageExtract
	StageStockStatement = domain.StageStockStatement
	StageToll           = domain.StageToll
)

// Establisher logs in once and returns the report tab.
type Establisher interface {
	Establish(ctx context.Context, username, password string) (portal.Page, error)
}

// ReportFetcher downloads one direction of exports.
type ReportFetcher interface {
	Fetch(ctx context.Context, paths config.TaxpayerPaths, dir domain.Direction, periods []domain.Period) (portal.FetchSummary, error)
}

// Converter normalizes and consolidates downloaded exports.
type Converter interface {
	ConvertLegacy(ctx context.Context, paths config.TaxpayerPaths) (normalizer.ConvertSummary, error)
	Merge(ctx context.Context, paths config.TaxpayerPaths) (int, error)
}

// DetailSource extracts bill details.
type DetailSource interface {
	Extract(ctx context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.DetailResult, portal.BatchSummary, error)
}

// TollSource extracts toll tables.
type TollSource interface {
	Extract(ctx context.Context, paths config.TaxpayerPaths, bills []string) ([]domain.TollTable, portal.BatchSummary, error)
}

// Reconciler builds the stock statement workbook.
type Reconciler interface {
	Run(ctx context.Context, paths config.TaxpayerPaths, fresh []domain.DetailResult) (reconcile.Result, error)
}

// Aggregator flattens the statement and merges toll data into it.
type Aggregator interface {
	MergeSheets(ctx context.Context, paths config.TaxpayerPaths) (aggregate.SheetMergeResult, error)
	MergeToll(ctx context.Context, paths config.TaxpayerPaths, fresh []domain.TollTable) (aggregate.TollResult, error)
}

// Stages are the collaborators a run drives once the session is ready.
type Stages struct {
	Fetcher    ReportFetcher
	Converter  Converter
	Details    DetailSource
	Tolls      TollSource
	Reconciler Reconciler
	Aggregator Aggregator
}

// StageBuilder binds the stages to the report tab returned by the session.
type StageBuilder func(report portal.Page) Stages

// NewStageBuilder wires the production stages from configuration.
func NewStageBuilder(cfg *config.Config, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) (StageBuilder, error) {
	rule, err := reconcile.NewQuantityScaleRule(cfg.Reconcile.ScaleThreshold, cfg.Reconcile.ScaleDivisor)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity scale rule: %w", err)
	}

	var engine normalizer.Engine
	if cfg.Normalizer.EnginePath != "" {
		engine = &normalizer.OfficeEngine{Path: cfg.Normalizer.EnginePath, Timeout: cfg.Normalizer.Timeout}
	}

	return func(report portal.Page) Stages {
		// One limiter for every extractor: they share the tab.
		pacer := portal.NewPacer(cfg.Browser)
		extract := portal.ExtractConfig{
			DefaultTimeout:  cfg.Browser.DefaultTimeout,
			ExtendedTimeout: cfg.Browser.ExtendedTimeout,
			ProbeTimeout:    cfg.Browser.ProbeTimeout,
			Pacer:           pacer,
		}
		details, tolls := extract, extract
		details.URLTemplate = cfg.Portal.DetailURL
		tolls.URLTemplate = cfg.Portal.TollURL

		return Stages{
			Fetcher: portal.NewFetcher(report, portal.FetchConfig{
				ReportURL:      cfg.Portal.ReportURL,
				DefaultTimeout: cfg.Browser.DefaultTimeout,
				ProbeTimeout:   cfg.Browser.ProbeTimeout,
				Pacer:          pacer,
			}, infrastructure.WithComponent(logger, "fetcher"), metrics),
			Converter:  normalizer.New(engine, logger, metrics),
			Details:    portal.NewDetailExtractor(report, details, infrastructure.WithComponent(logger, "details"), metrics),
			Tolls:      portal.NewTollExtractor(report, tolls, infrastructure.WithComponent(logger, "toll"), metrics),
			Reconciler: reconcile.NewEngine(rule, infrastructure.WithComponent(logger, "reconcile"), metrics),
			Aggregator: aggregate.New(infrastructure.WithComponent(logger, "aggregate")),
		}
	}, nil
}

// NewSessionConfig derives the session settings. A job URL overrides the
// configured login page.
func NewSessionConfig(cfg *config.Config, job *config.JobDescription) portal.SessionConfig {
	return portal.SessionConfig{
		LoginURL:        cmp.Or(job.URL, cfg.Portal.LoginURL),
		ReportURL:       cfg.Portal.ReportURL,
		DefaultTimeout:  cfg.Browser.DefaultTimeout,
		ExtendedTimeout: cfg.Browser.ExtendedTimeout,
	}
}
