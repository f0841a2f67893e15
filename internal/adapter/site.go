package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/campwatch/internal/artifacts"
	"github.com/jmylchreest/campwatch/internal/extract"
	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/internal/normalize"
	"github.com/jmylchreest/campwatch/internal/resilience"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// SiteAdapter drives one competitor through
// Init, Navigate, ChallengeClear, ConsentDismiss, Interact, Capture,
// Extract, Normalize and finally Emit or Failed.
//
// Entry URLs form an ordered strategy list: each is tried in turn and the
// first one that yields an in-band price wins.
type SiteAdapter struct {
	cfg       model.CompetitorConfig
	fetcher   fetcher.Fetcher
	store     *artifacts.Store
	metrics   *metrics.Metrics
	extractor *extract.Extractor
	log       *slog.Logger

	states []State
}

var _ Adapter = (*SiteAdapter)(nil)

// NewSite is the Factory for declarative site adapters.
func NewSite(cfg model.CompetitorConfig, deps Deps) (Adapter, error) {
	f, err := deps.Driver(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", cfg.Name, err)
	}
	ex, err := extract.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", cfg.Name, err)
	}
	return &SiteAdapter{
		cfg:       cfg,
		fetcher:   f,
		store:     deps.Artifacts,
		metrics:   deps.Metrics,
		extractor: ex,
		log:       logger.With("adapter", cfg.Name),
	}, nil
}

// Name returns the adapter name.
func (a *SiteAdapter) Name() string { return a.cfg.Name }

// Config returns the competitor configuration.
func (a *SiteAdapter) Config() model.CompetitorConfig { return a.cfg }

// States returns the states visited by the last Scrape.
func (a *SiteAdapter) States() []State {
	return append([]State(nil), a.states...)
}

func (a *SiteAdapter) transition(s State, attrs ...any) {
	a.states = append(a.states, s)
	a.log.Debug("adapter state", append([]any{"state", s.String()}, attrs...)...)
}

// Scrape runs the strategy list and returns the winning record, or the
// record of the last strategy tried when none succeeds.
func (a *SiteAdapter) Scrape(ctx context.Context, rc model.RunContext, attempt int) (*model.CompetitorRecord, error) {
	a.states = a.states[:0]
	ctx = logger.ForAdapter(ctx, a.cfg.Name)
	a.log = logger.FromContext(ctx).With("attempt", attempt)
	a.transition(StateInit)

	pickup, dropoff := rc.Window(a.cfg)

	var (
		rec     *model.CompetitorRecord
		lastErr error
		trail   []string
	)
	for i, tmpl := range a.cfg.EntryURLs {
		target := ExpandURL(tmpl, a.cfg.Location, pickup, dropoff)

		r, err := a.strategy(ctx, rc, i, target, pickup)
		if err == nil {
			a.log.Info("strategy succeeded", "strategy", r.Strategy, "prices", r.NumResults)
			prependNotes(r, trail)
			return r, nil
		}

		a.log.Debug("strategy failed", "strategy", r.Strategy, "error", err)
		trail = append(trail, fmt.Sprintf("entry[%d] failed: %v", i, err))
		rec, lastErr = r, err
		if ctx.Err() != nil {
			break
		}
	}

	if rec == nil {
		rec = model.NewRecord(a.cfg, rc)
		rec.AddNote("no entry URLs configured")
		rec.DataCompletenessPct = normalize.Completeness(rec)
		return rec, resilience.Permanent(fmt.Errorf("adapter %s: no entry URLs", a.cfg.Name))
	}
	prependNotes(rec, trail[:len(trail)-1])
	return rec, lastErr
}

// strategy runs one entry URL through the state machine.
func (a *SiteAdapter) strategy(ctx context.Context, rc model.RunContext, i int, target string, pickup time.Time) (*model.CompetitorRecord, error) {
	rec := model.NewRecord(a.cfg, rc)
	rec.URL = target
	rec.Strategy = fmt.Sprintf("entry[%d] %s via %s", i, target, a.fetcher.Type())

	attemptLog := a.log
	a.log = attemptLog.With("entry", i)
	defer func() { a.log = attemptLog }()

	a.transition(StateNavigate, "url", target)
	req := fetcher.Request{
		Adapter:      a.cfg.Name,
		URL:          target,
		Steps:        a.cfg.Recipe.Steps,
		WaitSelector: a.cfg.Recipe.WaitSelector,
		Intercept:    a.extractor.Intercepts,
		Timeout:      a.cfg.Timeout,
	}
	if a.cfg.Recipe.ReuseContext {
		req.Session = a.cfg.Name
	}
	if a.store != nil {
		dir, err := a.store.AdapterDir(a.cfg.Name)
		if err != nil {
			return a.fail(rec, err)
		}
		req.ArtifactDir = dir
		req.MaxBodySize = a.store.MaxBody()
	}

	start := time.Now()
	res, err := a.fetcher.Fetch(ctx, req)
	outcome := resilience.Classify(err).String()

	driver := a.fetcher.Type()
	if res != nil {
		driver = coalesce(res.Driver, driver)
		rec.URL = coalesce(res.FinalURL, target)
		rec.Strategy = fmt.Sprintf("entry[%d] %s via %s", i, target, driver)
		for _, stage := range res.Stages {
			if s, ok := stageState(stage); ok {
				a.transition(s)
			}
		}
		for _, n := range res.Notes {
			rec.AddNote(n)
		}
		if res.HTML != "" || len(res.Events) > 0 || res.ScreenshotPath != "" {
			a.transition(StateCapture)
			a.capture(rec, res)
		}
	}
	a.metrics.ObserveFetch(driver, outcome, time.Since(start))
	if err != nil {
		rec.AddNote(fmt.Sprintf("fetch failed: %v", err))
		return a.fail(rec, err)
	}

	a.transition(StateExtract)
	cands := a.extractor.Candidates(res)
	promos, codes := a.extractor.Promotions(res)
	if promos == nil {
		promos = []string{}
	}
	rec.ActivePromotions = promos
	rec.PromoCodes = codes
	rec.ReviewAvg, rec.ReviewCount = a.extractor.Reviews(res)
	rec.Vehicles = a.extractor.Listings(res, pickup.Format(model.DateLayout))

	a.transition(StateNormalize, "candidates", len(cands))
	normalize.Apply(rec, a.cfg, cands, extract.PageHasDigits(res))
	if !rec.Success {
		a.transition(StateFailed)
		return rec, fmt.Errorf("%w: %s", ErrDataInsufficient, rec.Notes)
	}

	a.transition(StateEmit)
	return rec, nil
}

func (a *SiteAdapter) fail(rec *model.CompetitorRecord, err error) (*model.CompetitorRecord, error) {
	a.transition(StateFailed)
	rec.Success = false
	rec.DataCompletenessPct = normalize.Completeness(rec)
	return rec, err
}

// capture stores the page and network events and records their paths.
// Paths are set only once the file is written.
func (a *SiteAdapter) capture(rec *model.CompetitorRecord, res *fetcher.Result) {
	rec.ScreenshotPath = res.ScreenshotPath
	if a.store == nil {
		rec.HTMLPath = res.HTMLPath
		return
	}

	if res.HTML != "" {
		path, err := a.store.WriteHTML(a.cfg.Name, res.HTML)
		if err != nil {
			a.log.Warn("failed to store page", "error", err)
			rec.AddNote("page not stored")
		} else {
			rec.HTMLPath = path
		}
	}
	if len(res.Events) > 0 {
		path, err := a.store.WriteCaptured(a.cfg.Name, res.Events)
		if err != nil {
			a.log.Warn("failed to store network events", "error", err)
		} else {
			rec.CapturedPath = path
		}
	}
}

// ExpandURL fills the {location}, {pickup} and {dropoff} placeholders of an
// entry URL template.
func ExpandURL(tmpl, location string, pickup, dropoff time.Time) string {
	loc := strings.ReplaceAll(url.QueryEscape(location), "+", "%20")
	return strings.NewReplacer(
		"{location}", loc,
		"{pickup}", pickup.Format(model.DateLayout),
		"{dropoff}", dropoff.Format(model.DateLayout),
	).Replace(tmpl)
}

func prependNotes(rec *model.CompetitorRecord, notes []string) {
	if len(notes) == 0 {
		return
	}
	own := rec.Notes
	rec.Notes = ""
	for _, n := range notes {
		rec.AddNote(n)
	}
	rec.AddNote(own)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
