package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/operations"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/portal"
	ewbhttp "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/transport/http"
)

// options are the command-line overrides of the loaded configuration.
type options struct {
	jobPath  string
	logPath  string
	headless bool
	output   string
	config   string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ewbworker <job.json> <log.txt>",
		Short: "Download E-Way Bill reports and build stock statements for a job",
		Long: `ewbworker runs one job written by the configuration dashboard.

It logs in to the E-Way Bill portal (the operator solves the CAPTCHA and OTP
in the browser window), downloads GSTIN-wise reports, and builds the stock
statement and toll workbooks under the output directory. Progress is
appended to the log file given as the second argument.`,
		Version:       Version,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.jobPath, opts.logPath = args[0], args[1]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.Flags().Changed("headless"))
		},
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run the browser without a window (manual login needs a window)")
	cmd.Flags().StringVar(&opts.output, "output", "", "root directory for per-GSTIN output (default ./output)")
	cmd.Flags().StringVar(&opts.config, "config", "", "config file (default: $EWB_CONFIG_FILE or ./config.yaml)")
	return cmd
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts options, headlessSet bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.config != "" {
		cfg, err = config.LoadFrom(opts.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if headlessSet {
		cfg.Browser.Headless = opts.headless
	}
	if opts.output != "" {
		cfg.Output.RootDir = opts.output
	}
	return cfg, nil
}

func run(ctx context.Context, opts options, headlessSet bool) (err error) {
	cfg, err := loadConfig(opts, headlessSet)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging, opts.logPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()

	job, err := config.LoadJob(opts.jobPath)
	if err != nil {
		logger.Error("Failed to load job description", "path", opts.jobPath, "error", err)
		return err
	}
	logger.Info("Job loaded", "job", job.Redacted(), "version", Version, "build_time", BuildTime)

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	state := operations.NewRunState(infrastructure.GenerateRunID())
	if cfg.Telemetry.MetricsAddr != "" {
		srv := ewbhttp.NewServer(cfg.Telemetry.MetricsAddr,
			ewbhttp.NewRouter(state, providers.PrometheusHTTP, logger), logger)
		srv.Start(ctx)
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Warn("Status endpoint shutdown failed", "error", err)
			}
		}()
	}

	build, err := operations.NewStageBuilder(cfg, logger, metrics)
	if err != nil {
		return err
	}

	browser, err := portal.NewBrowser(cfg.Browser, logger)
	if err != nil {
		logger.Error("Fatal error during browser automation", "error", err)
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("Browser shutdown failed", "error", err)
		}
	}()

	session := portal.NewSession(browser.Page(), operations.NewSessionConfig(cfg, job), logger)
	runner := operations.NewRunner(cfg, job, session, build, state, logger,
		operations.WithTracer(operations.NewRunTracer(metrics)))

	return finish(runner.Run(ctx), logger)
}

// finish maps a run result to the process outcome. Taxpayer failures are
// already in the log and leave the exit status at zero.
func finish(err error, logger *slog.Logger) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsFatal(err):
		logger.Error("Job aborted", "error", err)
		return err
	default:
		logger.Warn("Job finished with failures", "error", err)
		return nil
	}
}
