package demoapp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"bulkload/internal/config"
	"bulkload/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

func sqliteConfig(strategies ...string) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Pool:   config.PoolConfig{MaxOpen: 4, MaxIdle: 1, MaxLifetime: time.Minute},
		},
		Loader: config.LoaderConfig{DefaultStrategy: "select"},
		Demo: config.DemoConfig{
			Seed:          true,
			Strategies:    strategies,
			Relationships: []string{"addresses", "user_info", "children", "things", "lamp"},
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "bulkload",
			Logging:     config.LoggingConfig{Level: "error", Format: "text"},
		},
	}
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "signal" {
		t.Fatalf("expected reason=signal, got %q", reason)
	}
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(nil, serverErrors)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if reason != "server_error" {
		t.Fatalf("expected reason=server_error, got %q", reason)
	}
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.WaitForStop(nil, nil); err == nil {
		t.Fatalf("expected error when both channels are nil")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cleanup to run once, ran %d times", got)
	}
}

func TestCleanupStack_RunsInReverseOrder(t *testing.T) {
	var order []string
	s := cleanupStack{}
	for _, name := range []string{"first", "second", "third"} {
		s.push(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	s.push("failing", func(context.Context) error { return errors.New("ignored") })

	s.run(context.Background(), testLogger())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.Start(); err == nil {
		t.Fatalf("expected start to fail before init")
	}
}

func TestRun_BeforeInit_Fails(t *testing.T) {
	app, err := New(sqliteConfig("bulk"), testLogger())
	require.NoError(t, err)
	_, err = app.Run(context.Background())
	assert.ErrorContains(t, err, "not initialized")
}

func TestStartAndShutdown_MetricsServer(t *testing.T) {
	app := &App{
		cfg:    sqliteConfig(),
		logger: testLogger(),
		metricsSrv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("metrics server", func(ctx context.Context) error {
		return app.metricsSrv.Shutdown(ctx)
	})

	if _, err := app.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(sqliteConfig(), nil)
	assert.Error(t, err)
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Database.Driver = "postgres"

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Error(t, app.Init(context.Background()))

	app.stateMu.Lock()
	initialized := app.initialized
	app.stateMu.Unlock()
	assert.False(t, initialized)
}

func TestRun_ComparesStrategies(t *testing.T) {
	app, err := New(sqliteConfig("select", "bulk"), testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 10)

	targets := map[string]int{"addresses": 5, "user_info": 3, "children": 3, "things": 5, "lamp": 2}
	for _, res := range report.Results {
		assert.Equal(t, 4, res.Owners, "%s/%s", res.Strategy, res.Relationship)
		assert.Equal(t, targets[res.Relationship], res.Targets, "%s/%s", res.Strategy, res.Relationship)
		switch res.Strategy {
		case "select":
			assert.Equal(t, 4, res.Queries, res.Relationship)
		case "bulk":
			assert.Equal(t, 1, res.Queries, res.Relationship)
		}
	}
	assert.Equal(t, 1, report.Queries("bulk", "addresses"))
	assert.Equal(t, 4, report.Queries("select", "addresses"))

	var buf bytes.Buffer
	n, err := report.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Contains(t, buf.String(), "STRATEGY")
	assert.Contains(t, buf.String(), "addresses")
}

func TestRun_FallsBackToDefaultStrategy(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Loader.DefaultStrategy = "bulk"
	cfg.Demo.Relationships = []string{"addresses"}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	report, err := app.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "bulk", report.Results[0].Strategy)
	assert.Equal(t, 1, report.Results[0].Queries)
}

func TestRun_UnknownRelationship(t *testing.T) {
	cfg := sqliteConfig("bulk")
	cfg.Demo.Relationships = []string{"pets"}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	_, err = app.Run(context.Background())
	assert.ErrorContains(t, err, "strategy bulk")
}
