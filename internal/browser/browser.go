// Package browser implements fetcher.Fetcher on a headless Chrome driven
// through chromedp. One Chrome process serves every fetch; each fetch gets
// a tab in its own browser context (fresh cookies and storage) unless it
// reuses a session. A fetch emulates a rotating identity, records the tab's
// network traffic, clears challenges and consent overlays, runs the
// competitor's navigation recipe and screenshots the result.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/campwatch/internal/antibot"
	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Config holds browser driver settings.
type Config struct {
	Timeout     time.Duration
	Headless    bool
	BrowserPath string
	NoSandbox   bool
	ProxyURL    string
	// IdleBudget bounds the wait for the network to settle after navigation.
	IdleBudget time.Duration

	Mediator   *antibot.Mediator
	Identities *antibot.Rotator
}

// DefaultConfig returns headless defaults with a one minute fetch budget.
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		Headless:   true,
		IdleBudget: 10 * time.Second,
	}
}

type session struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	// script is the registered stealth script and its source, replaced
	// when a reused session is given another identity.
	script       page.ScriptIdentifier
	scriptSource string
}

// needsStealth reports whether source differs from the registered script.
func (s *session) needsStealth(source string) bool {
	return s.script == "" || s.scriptSource != source
}

// Fetcher drives one Chrome process; every fetch gets its own tab in a new
// browser context unless the request names a session to reuse.
type Fetcher struct {
	config    Config
	allocCtx  context.Context
	cancelCtx context.CancelFunc

	rootMu     sync.Mutex
	rootCtx    context.Context
	rootCancel context.CancelFunc

	sessions   map[string]*session
	sessionsMu sync.Mutex
}

var _ fetcher.Fetcher = (*Fetcher)(nil)

// New creates a browser fetcher. Chrome starts lazily on the first fetch.
func New(cfg Config) (*Fetcher, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.IdleBudget <= 0 {
		cfg.IdleBudget = def.IdleBudget
	}
	if cfg.Mediator == nil {
		cfg.Mediator = antibot.New(antibot.DefaultConfig())
	}
	if cfg.Identities == nil {
		cfg.Identities = antibot.NewRotator(antibot.DefaultIdentities)
	}
	if cfg.BrowserPath != "" {
		if _, err := os.Stat(cfg.BrowserPath); err != nil {
			return nil, fmt.Errorf("browser binary %s: %w", cfg.BrowserPath, err)
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)

	logger.Debug("browser fetcher created",
		"headless", cfg.Headless,
		"browser_path", cfg.BrowserPath,
		"proxy", cfg.ProxyURL != "",
		"timeout", cfg.Timeout)

	return &Fetcher{
		config:    cfg,
		allocCtx:  allocCtx,
		cancelCtx: cancelAlloc,
		sessions:  make(map[string]*session),
	}, nil
}

// root returns the context of the shared browser, starting Chrome on
// first use. Contexts derived from it open tabs in the same process.
func (f *Fetcher) root() (context.Context, error) {
	f.rootMu.Lock()
	defer f.rootMu.Unlock()
	if f.rootCtx != nil {
		return f.rootCtx, nil
	}

	ctx, cancel := chromedp.NewContext(f.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	logger.Debug("browser started")
	f.rootCtx, f.rootCancel = ctx, cancel
	return ctx, nil
}

// tab returns a browser tab context for the request and a release func.
// Session tabs outlive the fetch and are used by one fetch at a time.
func (f *Fetcher) tab(key string) (*session, func(), error) {
	newTab := func() (*session, error) {
		parent, err := f.root()
		if err != nil {
			return nil, err
		}
		ctx, cancel := chromedp.NewContext(parent, chromedp.WithNewBrowserContext())
		// Allocate the tab now so the target is known to the recorder.
		if err := chromedp.Run(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("open tab: %w", err)
		}
		return &session{ctx: ctx, cancel: cancel}, nil
	}

	if key == "" {
		s, err := newTab()
		if err != nil {
			return nil, nil, err
		}
		return s, s.cancel, nil
	}

	f.sessionsMu.Lock()
	s, ok := f.sessions[key]
	if !ok {
		var err error
		if s, err = newTab(); err != nil {
			f.sessionsMu.Unlock()
			return nil, nil, err
		}
		f.sessions[key] = s
	}
	f.sessionsMu.Unlock()

	s.mu.Lock()
	return s, s.mu.Unlock, nil
}

// Fetch navigates to req.URL and returns the rendered page.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Result, error) {
	start := time.Now()
	result := &fetcher.Result{
		URL:       req.URL,
		FetchedAt: start,
		Driver:    f.Type(),
	}
	if err := fetcher.ValidateURL(req.URL); err != nil {
		return result, err
	}

	id := f.config.Identities.Next()
	if req.Identity != nil {
		id = *req.Identity
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.config.Timeout
	}
	idleBudget := req.IdleBudget
	if idleBudget <= 0 {
		idleBudget = f.config.IdleBudget
	}

	s, release, err := f.tab(req.Session)
	if err != nil {
		return result, fmt.Errorf("%w: %v", fetcher.ErrNetwork, err)
	}
	defer release()

	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	rec := newRecorder(runCtx, req.Intercept, req.MaxBodySize)
	rec.listen(runCtx)

	log := logger.FromContext(ctx)
	log.Debug("browser fetch", "url", req.URL, "identity", id.Name, "session", req.Session, "timeout", timeout)

	setup := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(id.Width), int64(id.Height), 1, false),
		emulation.SetUserAgentOverride(id.UserAgent).
			WithAcceptLanguage(id.AcceptLanguage).
			WithPlatform(id.Platform),
	}
	setup = append(setup, injectStealth(s, id))
	setup = append(setup, chromedp.Navigate(req.URL))

	fail := func(err error) (*fetcher.Result, error) {
		f.failureScreenshot(s.ctx, req, result)
		result.Events = rec.snapshot()
		result.Duration = time.Since(start)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, fetcher.ErrChallengePresented) {
			return result, fmt.Errorf("%w: browser fetch exceeded %s: %v", fetcher.ErrTimeout, timeout, err)
		}
		status, _ := rec.document()
		return result, fetcher.ClassifyError(err, req.URL, status)
	}

	if err := chromedp.Run(runCtx, setup...); err != nil {
		return fail(err)
	}

	if !rec.waitIdle(runCtx, idleBudget) {
		log.Debug("network did not settle after navigation", "url", req.URL, "budget", idleBudget)
	}

	tab := &tabPage{ctx: runCtx}

	clearance, err := f.config.Mediator.AwaitClearance(runCtx, tab)
	if clearance.Kind != "" {
		result.Stages = append(result.Stages, fetcher.StageChallengeClear)
		result.Note(fmt.Sprintf("%s challenge: %d polls over %s", clearance.Kind, clearance.Polls, clearance.Waited.Round(time.Second)))
	}
	if err != nil {
		if snap, serr := tab.Snapshot(runCtx); serr == nil {
			result.Title, result.HTML = snap.Title, snap.HTML
		}
		return fail(err)
	}
	if clearance.Cleared {
		rec.waitIdle(runCtx, idleBudget)
	}

	status, docURL := rec.document()
	result.StatusCode = status
	if status >= 400 {
		return fail(&fetcher.HTTPStatusError{URL: coalesce(docURL, req.URL), StatusCode: status})
	}

	if layer := f.config.Mediator.DismissConsent(runCtx, tab); layer != "" {
		result.Stages = append(result.Stages, fetcher.StageConsentDismiss)
		result.Note("consent dismissed via " + layer)
	}

	if len(req.Steps) > 0 {
		ran, notes := runSteps(runCtx, rec, req.Steps)
		result.Notes = append(result.Notes, notes...)
		if ran > 0 {
			result.Stages = append(result.Stages, fetcher.StageInteract)
		}
		rec.waitIdle(runCtx, idleBudget)
	}

	if req.WaitSelector != "" {
		waitCtx, waitCancel := context.WithTimeout(runCtx, DefaultStepTimeout)
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(req.WaitSelector, chromedp.ByQuery)); err != nil {
			result.Note(fmt.Sprintf("wait selector %q not found", req.WaitSelector))
		}
		waitCancel()
	}

	var location, title, html string
	if err := chromedp.Run(runCtx,
		chromedp.Location(&location),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html),
	); err != nil {
		return fail(err)
	}
	result.FinalURL = location
	result.Title = title
	result.HTML = html
	result.ContentType = "text/html"
	if result.StatusCode == 0 {
		result.StatusCode = 200
	}

	if req.ArtifactDir != "" {
		if path, err := writeScreenshot(runCtx, req.ArtifactDir); err != nil {
			result.Note("screenshot failed: " + err.Error())
		} else {
			result.ScreenshotPath = path
		}
	}

	rec.waitBodies(5 * time.Second)
	result.Events = rec.snapshot()
	result.Duration = time.Since(start)

	if html == "" {
		return result, fmt.Errorf("%w: %s", fetcher.ErrEmptyResponse, req.URL)
	}

	log.Debug("browser fetch complete",
		"url", req.URL,
		"final_url", location,
		"status", result.StatusCode,
		"title", title,
		"html_size", len(html),
		"events", len(result.Events),
		"duration", result.Duration)

	return result, nil
}

// failureScreenshot keeps what the tab showed when the fetch failed.
func (f *Fetcher) failureScreenshot(tabCtx context.Context, req fetcher.Request, result *fetcher.Result) {
	if req.ArtifactDir == "" {
		return
	}
	shot := captureScreenshot(tabCtx)
	if shot == nil {
		return
	}
	path := filepath.Join(req.ArtifactDir, fetcher.ScreenshotFile)
	if err := os.MkdirAll(req.ArtifactDir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(path, shot, 0o644); err == nil {
		result.ScreenshotPath = path
		logger.Debug("failure screenshot saved", "path", path)
	}
}

func writeScreenshot(ctx context.Context, dir string) (string, error) {
	var shot []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&shot, 100)); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fetcher.ScreenshotFile)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Close ends all sessions and the browser process.
func (f *Fetcher) Close() error {
	f.sessionsMu.Lock()
	for key, s := range f.sessions {
		s.cancel()
		delete(f.sessions, key)
	}
	f.sessionsMu.Unlock()

	f.rootMu.Lock()
	if f.rootCancel != nil {
		f.rootCancel()
		f.rootCtx, f.rootCancel = nil, nil
	}
	f.rootMu.Unlock()

	if f.cancelCtx != nil {
		f.cancelCtx()
	}
	return nil
}

// Type returns the fetcher type.
func (f *Fetcher) Type() string {
	return "browser"
}
