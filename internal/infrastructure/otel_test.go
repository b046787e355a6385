package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
)

func TestInitializeOTelServesPipelineMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	providers, err := InitializeOTel(config.TelemetryConfig{TraceExporter: "none"}, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordExport(ctx, "downloaded")
	metrics.RecordExport(ctx, "empty")
	metrics.RecordBillDetail(ctx, "primary")
	metrics.RecordStatementRows(ctx, 12)
	metrics.RecordStage(ctx, "extract", 1.5, true)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, "ewb_exports_total")
	assert.Contains(t, body, `outcome="downloaded"`)
	assert.Contains(t, body, "ewb_statement_rows_total")
	assert.Contains(t, body, "ewb_stage_failures_total")
}

func TestInitializeOTelRejectsUnknownExporter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := InitializeOTel(config.TelemetryConfig{TraceExporter: "otlp"}, logger)
	assert.Error(t, err)
}

func TestNilPipelineMetricsIsNoop(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordExport(context.Background(), "failed")
		m.RecordStage(context.Background(), "toll", 1, false)
	})

	noop, err := NewPipelineMetrics(nil)
	require.NoError(t, err)
	noop.RecordTollTable(context.Background(), "saved")
}
