// Package demoapp owns the lifecycle of the bulkload demo: telemetry
// providers, the database handle, the optional metrics endpoint, and the
// strategy comparison run itself.
package demoapp

import (
	"fmt"
	"net/http"
	"sync"

	"bulkload/internal/config"
	"bulkload/internal/dbconn"
	"bulkload/internal/dbexec"
	"bulkload/internal/logging"
	"bulkload/internal/observability"
)

// App owns runtime resources for one demo run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	loaderMetrics  *observability.LoaderMetrics
	tracerProvider *observability.TracerProvider

	db   *dbconn.DB
	exec dbexec.QueryExecutor

	metricsSrv *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error
	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}
