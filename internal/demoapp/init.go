package demoapp

import (
	"context"
	"fmt"
	"log/slog"

	"bulkload/internal/dbconn"
	"bulkload/internal/dbexec"
	"bulkload/internal/fixtures"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, loaderMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to database",
		slog.String("driver", a.cfg.Database.Driver),
		slog.String("host", a.cfg.Database.Host),
		slog.String("database", a.cfg.Database.Database),
	)
	db, err := dbconn.Open(ctx, a.cfg.Database, dbconn.Options{
		Tracing: a.cfg.Observability.TracingEnabled,
		Metrics: a.cfg.Observability.MetricsEnabled,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		return db.Close()
	})
	exec := dbexec.NewStandardExecutor(db.DB)

	if a.cfg.Demo.Seed {
		if err := fixtures.Create(ctx, exec); err != nil {
			return err
		}
		if err := fixtures.Seed(ctx, exec); err != nil {
			return err
		}
		a.logger.Info("fixture schema seeded")
	}

	metricsSrv := buildMetricsServer(a.cfg, a.logger, meterProvider)
	if metricsSrv != nil {
		cleanup.push("metrics server", func(shutdownCtx context.Context) error {
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.loaderMetrics = loaderMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.exec = exec
	a.metricsSrv = metricsSrv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
