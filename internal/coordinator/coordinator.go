// Package coordinator runs a set of adapters with bounded, cost-weighted
// parallelism and assembles their records into a RunSummary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/campwatch/internal/adapter"
	"github.com/jmylchreest/campwatch/internal/alerts"
	"github.com/jmylchreest/campwatch/internal/artifacts"
	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/internal/normalize"
	"github.com/jmylchreest/campwatch/internal/resilience"
)

// Config holds coordinator configuration.
type Config struct {
	// Parallel is how many browser adapters may run at once. HTTP adapters
	// cost half a slot.
	Parallel int
	// RunTimeout bounds the whole run.
	RunTimeout time.Duration
	// AdapterTimeout bounds one adapter including its retries.
	AdapterTimeout time.Duration
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Parallel:       3,
		RunTimeout:     15 * time.Minute,
		AdapterTimeout: 3 * time.Minute,
	}
}

// Sink receives the finished summary, e.g. a database.
type Sink interface {
	Save(ctx context.Context, summary *model.RunSummary) error
}

// Coordinator schedules adapters.
type Coordinator struct {
	config     Config
	registry   *adapter.Registry
	deps       adapter.Deps
	controller *resilience.Controller
	store      *artifacts.Store
	metrics    *metrics.Metrics
	sinks      []Sink
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSink adds a summary sink.
func WithSink(s Sink) Option {
	return func(c *Coordinator) { c.sinks = append(c.sinks, s) }
}

// New creates a coordinator. deps.Artifacts and deps.Metrics, when set, are
// also used for the summary and the metrics textfile.
func New(cfg Config, reg *adapter.Registry, deps adapter.Deps, ctrl *resilience.Controller, opts ...Option) *Coordinator {
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if ctrl == nil {
		ctrl = resilience.NewController(resilience.DefaultRetryPolicy(), nil, resilience.WithMetrics(deps.Metrics))
	}
	c := &Coordinator{
		config:     cfg,
		registry:   reg,
		deps:       deps,
		controller: ctrl,
		store:      deps.Artifacts,
		metrics:    deps.Metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// capacity is the semaphore size in cost units.
func (c *Coordinator) capacity() int64 {
	return int64(c.config.Parallel) * 2
}

// Run scrapes every competitor in cfgs. Adapter failures become Failed
// records; only infrastructure errors (adapter construction, summary
// write) are returned.
func (c *Coordinator) Run(ctx context.Context, cfgs []model.CompetitorConfig, rc model.RunContext) (*model.RunSummary, error) {
	start := time.Now()
	ctx = logger.ForRun(ctx, rc.ID)
	if c.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RunTimeout)
		defer cancel()
	}

	adapters := make([]adapter.Adapter, len(cfgs))
	for i, cfg := range cfgs {
		a, err := c.registry.Build(cfg, c.deps)
		if err != nil {
			return nil, err
		}
		adapters[i] = a
	}

	logger.Info("run started",
		"run_id", rc.ID,
		"adapters", len(adapters),
		"parallel", c.config.Parallel)

	records := make([]model.CompetitorRecord, len(adapters))
	sem := semaphore.NewWeighted(c.capacity())
	g, gctx := errgroup.WithContext(ctx)

	for i, a := range adapters {
		cost := min(a.Config().Cost(), c.capacity())
		g.Go(func() error {
			if err := sem.Acquire(gctx, cost); err != nil {
				records[i] = *failedRecord(a.Config(), rc, err)
				return nil
			}
			defer sem.Release(cost)

			records[i] = *c.runAdapter(gctx, a, rc)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(rc, records)
	c.metrics.SetRunDuration(time.Since(start))

	if c.store != nil {
		path, err := c.store.WriteSummary(summary)
		if err != nil {
			return summary, err
		}
		logger.Debug("summary written", "path", path)
		if err := c.metrics.WriteTextfile(c.store.MetricsPath()); err != nil {
			logger.Warn("failed to write metrics", "error", err)
		}
	}
	for _, s := range c.sinks {
		if err := s.Save(ctx, summary); err != nil {
			logger.Warn("sink failed", "error", err)
		}
	}

	logger.Info("run finished",
		"run_id", rc.ID,
		"succeeded", summary.Succeeded(),
		"failed", len(records)-summary.Succeeded(),
		"alerts", summary.AlertsGenerated,
		"duration", time.Since(start).Round(time.Millisecond))
	return summary, nil
}

// runAdapter invokes one adapter under the resilience controller and
// always returns a record.
func (c *Coordinator) runAdapter(ctx context.Context, a adapter.Adapter, rc model.RunContext) *model.CompetitorRecord {
	cfg := a.Config()
	if c.config.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.AdapterTimeout)
		defer cancel()
	}

	ctx = logger.ForAdapter(ctx, cfg.Name)
	log := logger.FromContext(ctx)
	log.Debug("adapter started", "kind", cfg.Kind, "cost", cfg.Cost())
	start := time.Now()

	rec, err := c.controller.Execute(ctx, cfg.Name, cfg.Floor(), func(ctx context.Context, attempt int) (*model.CompetitorRecord, error) {
		return a.Scrape(ctx, rc, attempt)
	})
	if rec == nil {
		rec = failedRecord(cfg, rc, err)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.AddNote("adapter deadline exceeded")
	}
	if !rec.Success && rec.Notes == "" && err != nil {
		rec.AddNote(err.Error())
	}

	c.metrics.ObserveRecord(cfg.Name, rec.Success, rec.DataCompletenessPct, rec.NumResults)
	if rec.Success {
		log.Info("adapter succeeded",
			"prices", rec.NumResults,
			"completeness", rec.DataCompletenessPct,
			"retries", rec.RetryCount,
			"duration", time.Since(start).Round(time.Millisecond))
	} else {
		log.Warn("adapter failed",
			"error", err,
			"retries", rec.RetryCount,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return rec
}

// failedRecord is emitted when an adapter could not run at all.
func failedRecord(cfg model.CompetitorConfig, rc model.RunContext, err error) *model.CompetitorRecord {
	rec := model.NewRecord(cfg, rc)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		rec.AddNote("circuit breaker open: adapter skipped")
	case err != nil:
		rec.AddNote(fmt.Sprintf("adapter not run: %v", err))
	}
	rec.DataCompletenessPct = normalize.Completeness(rec)
	return rec
}

// Summarize assembles the run summary and its alerts.
func Summarize(rc model.RunContext, records []model.CompetitorRecord) *model.RunSummary {
	if records == nil {
		records = []model.CompetitorRecord{}
	}
	summary := &model.RunSummary{
		RunID:               rc.ID,
		Date:                rc.Timestamp.Format(model.DateLayout),
		CompetitorsAnalyzed: len(records),
		DataCompletenessAvg: completenessAvg(records),
		Results:             records,
		Alerts:              alerts.Generate(records),
	}
	summary.AlertsGenerated = len(summary.Alerts)
	return summary
}

func completenessAvg(records []model.CompetitorRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(decimal.NewFromFloat(r.DataCompletenessPct))
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(records)))).Round(2).Float64()
	return avg
}

// Exit codes for a finished run.
const (
	ExitOK        = 0
	ExitPartial   = 2
	ExitAllFailed = 3
)

// ExitCode maps a summary onto the process exit code.
func ExitCode(s *model.RunSummary) int {
	ok := s.Succeeded()
	switch {
	case len(s.Results) == 0 || ok == len(s.Results):
		return ExitOK
	case ok == 0:
		return ExitAllFailed
	default:
		return ExitPartial
	}
}
