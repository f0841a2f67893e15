package antibot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Snapshot is the state of a page at one instant.
type Snapshot struct {
	Title string
	Text  string
	HTML  string
}

// Page is the slice of a browser tab the mediator drives.
type Page interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	// ClickSelector clicks the first visible element matching selector and
	// reports whether one was found.
	ClickSelector(ctx context.Context, selector string) (bool, error)
	// ClickButtonWithText clicks the first visible button whose text contains
	// one of tokens and returns that text, or "".
	ClickButtonWithText(ctx context.Context, tokens []string) (string, error)
	// OverlayPresent reports whether a consent-like overlay is on screen.
	OverlayPresent(ctx context.Context) (bool, error)
	PressEscape(ctx context.Context) error
}

// Config holds mediator timings and the consent library.
type Config struct {
	PollInterval     time.Duration
	Budget           time.Duration
	ConsentSelectors []string
	AcceptTokens     []string
}

// DefaultConfig polls once a second for up to 30 seconds.
func DefaultConfig() Config {
	return Config{
		PollInterval:     time.Second,
		Budget:           30 * time.Second,
		ConsentSelectors: ConsentSelectors,
		AcceptTokens:     AcceptTokens,
	}
}

// Mediator clears challenges and consent overlays inside a browser fetch.
type Mediator struct {
	config Config
}

// New creates a mediator, filling unset fields from DefaultConfig.
func New(cfg Config) *Mediator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.ConsentSelectors == nil {
		cfg.ConsentSelectors = def.ConsentSelectors
	}
	if cfg.AcceptTokens == nil {
		cfg.AcceptTokens = def.AcceptTokens
	}
	return &Mediator{config: cfg}
}

// Clearance describes what AwaitClearance observed.
type Clearance struct {
	Kind    string // challenge kind, "" when none was shown
	Polls   int
	Waited  time.Duration
	Cleared bool
}

// AwaitClearance checks the page for a challenge and, when one is shown,
// polls until it disappears or the budget runs out. A challenge still
// present after the budget fails with fetcher.ErrChallengePresented.
func (m *Mediator) AwaitClearance(ctx context.Context, p Page) (Clearance, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return Clearance{}, err
	}
	kind := Detect(snap.Title, snap.Text, snap.HTML)
	if kind == "" {
		return Clearance{}, nil
	}

	logger.Info("challenge detected, waiting for clearance",
		"type", kind,
		"budget", m.config.Budget,
		"poll_interval", m.config.PollInterval)

	start := time.Now()
	out := Clearance{Kind: kind}

	budget := time.NewTimer(m.config.Budget)
	defer budget.Stop()
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			out.Waited = time.Since(start)
			return out, fmt.Errorf("%w: waiting for %s challenge: %v", fetcher.ErrTimeout, kind, ctx.Err())
		case <-budget.C:
			out.Waited = time.Since(start)
			logger.Warn("challenge did not clear", "type", kind, "polls", out.Polls, "waited", out.Waited)
			return out, fmt.Errorf("%w: %s still present after %s", fetcher.ErrChallengePresented, kind, m.config.Budget)
		case <-ticker.C:
			out.Polls++
			snap, err := p.Snapshot(ctx)
			if err != nil {
				// The challenge usually reloads the page; a snapshot can race it.
				logger.Debug("challenge poll failed", "type", kind, "error", err)
				continue
			}
			if Detect(snap.Title, snap.Text, snap.HTML) == "" {
				out.Cleared = true
				out.Waited = time.Since(start)
				logger.Info("challenge cleared", "type", kind, "polls", out.Polls, "waited", out.Waited)
				return out, nil
			}
		}
	}
}

// DismissConsent tries each layer in order and stops at the first that
// succeeds: the selector library, a scripted click on an accept-like
// button, then Escape if an overlay is still visible. It returns a
// description of the layer that worked, or "" when nothing was dismissed.
func (m *Mediator) DismissConsent(ctx context.Context, p Page) string {
	for _, sel := range m.config.ConsentSelectors {
		ok, err := p.ClickSelector(ctx, sel)
		if err != nil {
			logger.Debug("consent selector failed", "selector", sel, "error", err)
			continue
		}
		if ok {
			logger.Debug("consent dismissed", "layer", "selector", "selector", sel)
			return "selector " + sel
		}
	}

	if text, err := p.ClickButtonWithText(ctx, m.config.AcceptTokens); err == nil && text != "" {
		logger.Debug("consent dismissed", "layer", "button-text", "text", text)
		return "button " + text
	} else if err != nil {
		logger.Debug("consent button scan failed", "error", err)
	}

	present, err := p.OverlayPresent(ctx)
	if err != nil || !present {
		return ""
	}
	if err := p.PressEscape(ctx); err != nil {
		logger.Debug("consent escape failed", "error", err)
		return ""
	}
	logger.Debug("consent dismissed", "layer", "escape")
	return "escape"
}
