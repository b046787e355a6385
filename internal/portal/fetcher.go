package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Export outcomes recorded in metrics.
const (
	OutcomeDownloaded = "downloaded"
	OutcomeEmpty      = "empty"
	OutcomeFailed     = "failed"
)

// NewPacer returns the limiter that spaces out portal requests. A zero
// interval disables pacing.
func NewPacer(cfg config.BrowserConfig) *rate.Limiter {
	if cfg.PaceInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(cfg.PaceInterval), max(cfg.PaceBurst, 1))
}

// FetchConfig holds the waits and pacing used by Fetcher.
type FetchConfig struct {
	// ReportURL, when set, is loaded before each direction so a fetch
	// can follow a stage that navigated the tab elsewhere.
	ReportURL      string
	DefaultTimeout time.Duration
	ProbeTimeout   time.Duration
	Pacer          *rate.Limiter
	Now            func() time.Time
}

// FetchSummary counts the outcome of every submitted filter.
type FetchSummary struct {
	Downloaded int
	Empty      int
	Failed     int
	Files      []string
	// Errors holds one item error per failed filter, in order.
	Errors []error
}

// Add folds other into s.
func (s *FetchSummary) Add(other FetchSummary) {
	s.Downloaded += other.Downloaded
	s.Empty += other.Empty
	s.Failed += other.Failed
	s.Files = append(s.Files, other.Files...)
	s.Errors = append(s.Errors, other.Errors...)
}

// Fetcher downloads GSTIN-wise exports from the report page.
type Fetcher struct {
	page    Page
	cfg     FetchConfig
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewFetcher returns a fetcher working on the report tab.
func NewFetcher(page Page, cfg FetchConfig, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Fetcher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Pacer == nil {
		cfg.Pacer = rate.NewLimiter(rate.Inf, 1)
	}
	return &Fetcher{page: page, cfg: cfg, logger: logger, metrics: metrics}
}

// Fetch downloads every state-group export of one direction for each
// period. Failures of a single filter are logged and counted; an error is
// returned only when the direction itself could not be set up.
func (f *Fetcher) Fetch(ctx context.Context, paths config.TaxpayerPaths, dir domain.Direction, periods []domain.Period) (FetchSummary, error) {
	var summary FetchSummary
	logger := f.logger.With("gstin", paths.GSTIN, "direction", dir.Prefix())

	if err := f.selectDirection(ctx, paths.GSTIN, dir); err != nil {
		return summary, fmt.Errorf("failed to prepare %s report for %s: %w", dir.Prefix(), paths.GSTIN, err)
	}
	logger.Info(fmt.Sprintf("Selected %s radio button", dir.Prefix()))

	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := f.setDates(ctx, period); err != nil {
			itemErr := apperrors.NewItemError(domain.StageExtract, paths.GSTIN, dir.Prefix()+" "+period.String(), err)
			logger.Error("Error setting date range", "period", period.String(), "error", itemErr)
			summary.Failed += len(domain.StateGroups)
			summary.Errors = append(summary.Errors, itemErr)
			continue
		}

		for _, group := range domain.StateGroups {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			logger.Info(fmt.Sprintf("Checking state group: %s : (%s)", group.Code, group.Name))

			path, err := f.fetchGroup(ctx, paths, dir, period, group)
			switch {
			case err == nil:
				summary.Downloaded++
				summary.Files = append(summary.Files, path)
				f.metrics.RecordExport(ctx, OutcomeDownloaded)
				logger.Info("Successfully downloaded data for " + paths.RawExportName(dir, period, group))
			case errors.Is(err, ErrNoExport):
				summary.Empty++
				f.metrics.RecordExport(ctx, OutcomeEmpty)
				logger.Info("Excel sheet not found for: " + paths.RawExportName(dir, period, group))
			case ctx.Err() != nil:
				return summary, ctx.Err()
			default:
				itemErr := apperrors.NewItemError(domain.StageExtract, paths.GSTIN, paths.RawExportName(dir, period, group), err)
				summary.Failed++
				summary.Errors = append(summary.Errors, itemErr)
				f.metrics.RecordExport(ctx, OutcomeFailed)
				logger.Error("Error processing state", "period", period.String(), "state", group.Name, "error", itemErr)
			}
		}
		logger.Info(fmt.Sprintf("Completed processing all states for GSTIN: %s for %s", paths.GSTIN, period))
	}
	return summary, nil
}

func (f *Fetcher) selectDirection(ctx context.Context, gstin string, dir domain.Direction) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.cfg.DefaultTimeout)
	defer cancel()

	if f.cfg.ReportURL != "" {
		if err := f.page.Navigate(stepCtx, f.cfg.ReportURL); err != nil {
			return err
		}
		if err := f.page.WaitIdle(stepCtx); err != nil {
			return err
		}
	}

	radio := directionRadio(dir == domain.DirectionInward)
	if err := f.page.WaitVisible(stepCtx, radio); err != nil {
		return err
	}
	if err := f.page.Click(stepCtx, radio); err != nil {
		return err
	}
	if err := f.page.WaitVisible(stepCtx, SelGSTIN); err != nil {
		return err
	}
	// Assigned rather than typed so the field never accumulates a previous GSTIN.
	return f.page.SetValue(stepCtx, SelGSTIN, gstin)
}

func (f *Fetcher) setDates(ctx context.Context, period domain.Period) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.cfg.DefaultTimeout)
	defer cancel()

	from := period.FirstDay().Format(DateLayout)
	last := period.FirstDay().AddDate(0, 0, period.LastDay(f.cfg.Now())-1)
	to := last.Format(DateLayout)
	if err := f.page.SetValue(stepCtx, SelFromDate, from); err != nil {
		return err
	}
	if err := f.page.SetValue(stepCtx, SelToDate, to); err != nil {
		return err
	}
	f.logger.Info(fmt.Sprintf("Set date range: %s to %s", from, to))
	return nil
}

// fetchGroup submits one state group and saves its export. It returns
// ErrNoExport when the portal shows no export button.
func (f *Fetcher) fetchGroup(ctx context.Context, paths config.TaxpayerPaths, dir domain.Direction, period domain.Period, group domain.StateGroup) (string, error) {
	if err := f.cfg.Pacer.Wait(ctx); err != nil {
		return "", err
	}

	stepCtx, cancel := context.WithTimeout(ctx, f.cfg.DefaultTimeout)
	defer cancel()

	if err := f.page.Select(stepCtx, SelState, group.Code); err != nil {
		return "", fmt.Errorf("failed to select state group: %w", err)
	}
	if err := f.page.Submit(stepCtx, SelGo); err != nil {
		return "", fmt.Errorf("failed to submit report filter: %w", err)
	}
	if err := f.page.WaitIdle(stepCtx); err != nil {
		return "", fmt.Errorf("report did not settle: %w", err)
	}

	found, err := f.page.Probe(stepCtx, SelExport, f.cfg.ProbeTimeout)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNoExport
	}

	dst := paths.RawExport(dir, period, group)
	if err := f.page.Download(stepCtx, SelExport, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to download export: %w", err)
	}
	return dst, nil
}
