// Package dbconn opens the configured database, optionally instrumented with
// otelsql for traces and connection pool metrics.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"bulkload/internal/config"
	"bulkload/internal/logging"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

// Options selects instrumentation.
type Options struct {
	Tracing bool
	Metrics bool
}

// DB is an open database handle plus its optional stats registration.
type DB struct {
	*sql.DB
	statsReg interface{ Unregister() error }
	logger   *logging.Logger
}

// Open connects to the configured database and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts Options, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	system, err := dbSystem(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.ConnectionString()

	var db *sql.DB
	var statsReg interface{ Unregister() error }

	if opts.Tracing || opts.Metrics {
		otelOpts := []otelsql.Option{
			otelsql.WithAttributes(system),
		}
		if opts.Tracing {
			otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}

		db, err = otelsql.Open(cfg.Driver, dsn, otelOpts...)
		if err != nil {
			return nil, err
		}

		if opts.Metrics {
			statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}

		logger.Info("database instrumentation enabled",
			slog.Bool("metrics", opts.Metrics),
			slog.Bool("tracing", opts.Tracing),
		)
	} else {
		db, err = sql.Open(cfg.Driver, dsn)
		if err != nil {
			return nil, err
		}
	}

	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		if statsReg != nil {
			_ = statsReg.Unregister()
		}
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	logger.Info("connected to database",
		slog.String("driver", cfg.Driver),
		slog.String("database", cfg.Database),
		slog.Bool("dsn_present", cfg.DSN != ""),
		slog.Int("pool_max_open", cfg.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Pool.MaxLifetime),
	)
	return &DB{DB: db, statsReg: statsReg, logger: logger}, nil
}

// Close unregisters pool metrics and closes the handle.
func (d *DB) Close() error {
	if d.statsReg != nil {
		if err := d.statsReg.Unregister(); err != nil {
			d.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
		}
		d.statsReg = nil
	}
	return d.DB.Close()
}

func dbSystem(driver string) (attribute.KeyValue, error) {
	switch driver {
	case config.DriverMySQL:
		return semconv.DBSystemMySQL, nil
	case config.DriverSQLite:
		return semconv.DBSystemSqlite, nil
	default:
		return attribute.KeyValue{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// configurePool applies pool limits. An in-memory SQLite database exists per
// connection, so it is pinned to a single connection.
func configurePool(db *sql.DB, cfg config.DatabaseConfig) {
	if cfg.Driver == config.DriverSQLite && isMemoryDSN(cfg.ConnectionString()) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}
	db.SetMaxOpenConns(cfg.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Pool.MaxLifetime)
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}
