package demoapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"bulkload/internal/dbexec"
	"bulkload/internal/fixtures"
	"bulkload/internal/loader"
	"bulkload/internal/mapping"
	"bulkload/internal/session"
	"bulkload/internal/sqlexpr"
)

// Result is the outcome of loading one relationship for every user under
// one strategy.
type Result struct {
	Strategy     string
	Relationship string
	Owners       int
	Targets      int
	Queries      int
	Elapsed      time.Duration
}

// Report collects results in run order.
type Report struct {
	Results []Result
}

// Queries sums the statements issued for relationship under strategy.
func (r *Report) Queries(strategy, relationship string) int {
	total := 0
	for _, res := range r.Results {
		if res.Strategy == strategy && res.Relationship == relationship {
			total += res.Queries
		}
	}
	return total
}

// WriteTo renders the report as an aligned table.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tRELATIONSHIP\tOWNERS\tTARGETS\tQUERIES\tELAPSED")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			res.Strategy, res.Relationship, res.Owners, res.Targets, res.Queries,
			res.Elapsed.Round(time.Microsecond))
	}
	err := tw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Run loads every configured User relationship once per strategy, each
// strategy in a fresh session, and reports how many statements it took.
func (a *App) Run(ctx context.Context) (*Report, error) {
	a.stateMu.Lock()
	initialized := a.initialized
	exec := a.exec
	a.stateMu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("app is not initialized")
	}

	strategies := a.cfg.Demo.Strategies
	if len(strategies) == 0 {
		strategies = []string{a.cfg.Loader.DefaultStrategy}
	}

	report := &Report{}
	for _, name := range strategies {
		results, err := a.runStrategy(ctx, exec, name)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		report.Results = append(report.Results, results...)
	}
	return report, nil
}

func (a *App) runStrategy(ctx context.Context, exec dbexec.QueryExecutor, strategy string) ([]Result, error) {
	registry, err := loader.DefaultRegistry(loader.WithDefaultStrategy(strategy))
	if err != nil {
		return nil, err
	}
	mappings, err := fixtures.Mappings("")
	if err != nil {
		return nil, err
	}
	loaders, err := registry.Configure(mappings)
	if err != nil {
		return nil, err
	}

	recorder := dbexec.NewRecordingExecutor(exec)
	sess := session.New(recorder, loaders,
		session.WithLogger(a.logger),
		session.WithMetrics(a.loaderMetrics),
	)
	users, err := sess.Query(ctx, "User", session.OrderBy(mapping.Asc(sqlexpr.Col("users", "id"))))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(a.cfg.Demo.Relationships))
	for _, rel := range a.cfg.Demo.Relationships {
		recorder.Reset()
		start := time.Now()
		targets := 0
		for _, u := range users {
			v, err := sess.Load(ctx, u, rel)
			if err != nil {
				return nil, err
			}
			targets += countTargets(v)
		}
		res := Result{
			Strategy:     strategy,
			Relationship: rel,
			Owners:       len(users),
			Targets:      targets,
			Queries:      recorder.Count(),
			Elapsed:      time.Since(start),
		}
		a.logger.Info("relationship loaded",
			slog.String("strategy", strategy),
			slog.String("relationship", rel),
			slog.Int("owners", res.Owners),
			slog.Int("targets", res.Targets),
			slog.Int("queries", res.Queries),
		)
		results = append(results, res)
	}
	return results, nil
}

func countTargets(v any) int {
	switch t := v.(type) {
	case []*session.Instance:
		return len(t)
	case *session.Instance:
		if t != nil {
			return 1
		}
	}
	return 0
}
