package demoapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Start launches the metrics server goroutine when one is configured. It
// requires Init to have completed. The returned channel is nil when there
// is nothing to serve.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	if a.metricsSrv != nil {
		a.serverErrors = startMetricsServer(a.logger, a.metricsSrv)
	}
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop waits for either an OS signal or a metrics server error.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}

	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel blocks forever in select, so one missing side is fine.
	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return "signal", nil
	}
}
