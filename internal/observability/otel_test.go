package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.Exporter())

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	require.NotNil(t, metrics.batchOwnerCount)
	require.NotNil(t, metrics.multiplicityDiagnostics)

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestLoaderMetrics_RecordBatch(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewLoaderMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordBatch(ctx, "User.addresses", "bulk", 4, 5)
	metrics.RecordBatch(ctx, "User.addresses", "select", 1, 1)
	metrics.RecordSkipped(ctx, "User.parent", "bulk", "no_keys")
	metrics.RecordMultiplicityDiagnostic(ctx, "User.user_info")

	sums := collectSums(t, reader)
	assert.EqualValues(t, 2, sums["bulkload.loader.queries"])
	assert.EqualValues(t, 3, sums["bulkload.loader.queries_saved"])
	assert.EqualValues(t, 1, sums["bulkload.loader.skipped"])
	assert.EqualValues(t, 1, sums["bulkload.loader.multiplicity_diagnostics"])
}

func TestLoaderMetrics_NilSafe(t *testing.T) {
	var metrics *LoaderMetrics
	assert.NotPanics(t, func() {
		metrics.RecordBatch(context.Background(), "A.b", "bulk", 2, 2)
		metrics.RecordSkipped(context.Background(), "A.b", "bulk", "no_keys")
		metrics.RecordMultiplicityDiagnostic(context.Background(), "A.b")
	})
}

func TestLoaderMetricsContext(t *testing.T) {
	assert.Nil(t, LoaderMetricsFromContext(context.Background()))

	metrics := &LoaderMetrics{}
	ctx := ContextWithLoaderMetrics(context.Background(), metrics)
	assert.Same(t, metrics, LoaderMetricsFromContext(ctx))
}

func TestParseOTLPProtocol(t *testing.T) {
	p, err := parseOTLPProtocol("")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, p)

	p, err = parseOTLPProtocol("HTTP")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, p)

	_, err = parseOTLPProtocol("udp")
	require.Error(t, err)
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	_, err := buildTLSConfig(OTLPExporterConfig{TLSCAFile: "/nonexistent/ca.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	path := t.TempDir() + "/ca.pem"
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{TLSCAFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	params := func(id byte) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{id},
			Name:          "test",
		}
	}
	assert.Equal(t, sdktrace.Drop, traceSamplerForRatio(0).ShouldSample(params(1)).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, traceSamplerForRatio(1).ShouldSample(params(2)).Decision)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decision := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decision)
}
