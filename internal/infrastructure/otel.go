package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
)

const (
	ServiceName    = "ewb-worker"
	ServiceVersion = "1.0.0"
	MeterName      = "ewbworker"
)

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up a Prometheus-backed meter on its own registry and,
// when cfg.TraceExporter is "stdout", a stdout tracer.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	ctx := context.Background()

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		attribute.String("service.instance.id", GenerateRunID()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Logger: logger,
		Tracer: tracenoop.NewTracerProvider().Tracer(MeterName),
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))
	otel.SetMeterProvider(mp)

	switch cfg.TraceExporter {
	case "stdout":
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
		otel.SetTracerProvider(tp)
	case "", "none":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	logger.InfoContext(ctx, "telemetry initialized",
		slog.String("trace_exporter", cfg.TraceExporter))

	return providers, nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PipelineMetrics are the worker's counters. A nil *PipelineMetrics is
// valid and records nothing.
type PipelineMetrics struct {
	exports       metric.Int64Counter
	billDetails   metric.Int64Counter
	tollTables    metric.Int64Counter
	stageFailures metric.Int64Counter
	statementRows metric.Int64Counter
	conversions   metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// NewPipelineMetrics creates the worker's instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	var (
		m   PipelineMetrics
		err error
	)

	if m.exports, err = meter.Int64Counter("ewb_exports_total",
		metric.WithDescription("Report exports by outcome (downloaded, empty, failed)")); err != nil {
		return nil, err
	}
	if m.billDetails, err = meter.Int64Counter("ewb_bill_details_total",
		metric.WithDescription("Bill detail extractions by shape")); err != nil {
		return nil, err
	}
	if m.tollTables, err = meter.Int64Counter("ewb_toll_tables_total",
		metric.WithDescription("Toll tables by outcome")); err != nil {
		return nil, err
	}
	if m.stageFailures, err = meter.Int64Counter("ewb_stage_failures_total",
		metric.WithDescription("Taxpayer stage failures")); err != nil {
		return nil, err
	}
	if m.statementRows, err = meter.Int64Counter("ewb_statement_rows_total",
		metric.WithDescription("Stock statement rows written")); err != nil {
		return nil, err
	}
	if m.conversions, err = meter.Int64Counter("ewb_conversions_total",
		metric.WithDescription("Legacy export conversions by outcome")); err != nil {
		return nil, err
	}
	if m.stageDuration, err = meter.Float64Histogram("ewb_stage_duration_seconds",
		metric.WithDescription("Taxpayer stage duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordExport counts one state-group export attempt.
func (m *PipelineMetrics) RecordExport(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.exports.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBillDetail counts one detail extraction by shape, or "failed".
func (m *PipelineMetrics) RecordBillDetail(ctx context.Context, shape string) {
	if m == nil {
		return
	}
	m.billDetails.Add(ctx, 1, metric.WithAttributes(attribute.String("shape", shape)))
}

// RecordTollTable counts one toll extraction attempt.
func (m *PipelineMetrics) RecordTollTable(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.tollTables.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordConversion counts one legacy export conversion.
func (m *PipelineMetrics) RecordConversion(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.conversions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStage records a finished taxpayer stage.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.stageDuration.Record(ctx, seconds, attrs)
	if failed {
		m.stageFailures.Add(ctx, 1, attrs)
	}
}

// RecordStatementRows counts rows written into a stock statement.
func (m *PipelineMetrics) RecordStatementRows(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.statementRows.Add(ctx, int64(n))
}
