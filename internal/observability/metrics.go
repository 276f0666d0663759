package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoaderMetrics holds custom metrics for relationship loading
type LoaderMetrics struct {
	batchOwnerCount         metric.Int64Histogram
	batchResultRows         metric.Int64Histogram
	batchQueries            metric.Int64Counter
	batchQueriesSaved       metric.Int64Counter
	batchSkipped            metric.Int64Counter
	multiplicityDiagnostics metric.Int64Counter
}

// InitLoaderMetrics creates loader metrics on the global meter provider.
func InitLoaderMetrics() (*LoaderMetrics, error) {
	return NewLoaderMetrics(otel.Meter("bulkload"))
}

// NewLoaderMetrics creates loader metrics on the given meter.
func NewLoaderMetrics(meter metric.Meter) (*LoaderMetrics, error) {
	batchOwnerCount, err := meter.Int64Histogram(
		"bulkload.loader.owner_count",
		metric.WithDescription("Number of owners resolved by one relationship load"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"bulkload.loader.result_rows",
		metric.WithDescription("Number of rows returned by a relationship load query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	batchQueries, err := meter.Int64Counter(
		"bulkload.loader.queries",
		metric.WithDescription("Number of relationship load queries issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries counter: %w", err)
	}

	batchQueriesSaved, err := meter.Int64Counter(
		"bulkload.loader.queries_saved",
		metric.WithDescription("Number of queries saved by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries saved counter: %w", err)
	}

	batchSkipped, err := meter.Int64Counter(
		"bulkload.loader.skipped",
		metric.WithDescription("Number of loads that issued no query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	multiplicityDiagnostics, err := meter.Int64Counter(
		"bulkload.loader.multiplicity_diagnostics",
		metric.WithDescription("Number of to-one keys that matched more than one row"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create multiplicity diagnostics counter: %w", err)
	}

	return &LoaderMetrics{
		batchOwnerCount:         batchOwnerCount,
		batchResultRows:         batchResultRows,
		batchQueries:            batchQueries,
		batchQueriesSaved:       batchQueriesSaved,
		batchSkipped:            batchSkipped,
		multiplicityDiagnostics: multiplicityDiagnostics,
	}, nil
}

func relationshipAttrs(relationship, strategy string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("relationship", relationship),
		attribute.String("strategy", strategy),
	)
}

// RecordBatch records one executed load: the owners it resolved and the rows it read.
// Every owner beyond the first is a query the naive strategy would have issued.
func (m *LoaderMetrics) RecordBatch(ctx context.Context, relationship, strategy string, owners, rows int) {
	if m == nil {
		return
	}
	attrs := relationshipAttrs(relationship, strategy)
	m.batchOwnerCount.Record(ctx, int64(owners), attrs)
	m.batchResultRows.Record(ctx, int64(rows), attrs)
	m.batchQueries.Add(ctx, 1, attrs)
	if owners > 1 {
		m.batchQueriesSaved.Add(ctx, int64(owners-1), attrs)
	}
}

// RecordSkipped records a load that resolved owners without querying.
func (m *LoaderMetrics) RecordSkipped(ctx context.Context, relationship, strategy, reason string) {
	if m == nil {
		return
	}
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relationship", relationship),
		attribute.String("strategy", strategy),
		attribute.String("reason", reason),
	))
}

// RecordMultiplicityDiagnostic records a to-one key bucket holding several rows.
func (m *LoaderMetrics) RecordMultiplicityDiagnostic(ctx context.Context, relationship string) {
	if m == nil {
		return
	}
	m.multiplicityDiagnostics.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relationship", relationship),
	))
}

// InitMetrics initializes all custom metrics and returns the LoaderMetrics instance
func InitMetrics(logger *slog.Logger) (*LoaderMetrics, error) {
	metrics, err := InitLoaderMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loader metrics: %w", err)
	}

	logger.Info("loader metrics initialized")
	return metrics, nil
}

type loaderMetricsContextKey struct{}

// ContextWithLoaderMetrics stores loader metrics in the provided context.
func ContextWithLoaderMetrics(ctx context.Context, metrics *LoaderMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loaderMetricsContextKey{}, metrics)
}

// LoaderMetricsFromContext retrieves loader metrics from the context.
func LoaderMetricsFromContext(ctx context.Context) *LoaderMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(loaderMetricsContextKey{}).(*LoaderMetrics)
	return metrics
}
