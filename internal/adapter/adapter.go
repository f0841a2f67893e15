// Package adapter turns a competitor's pages into a CompetitorRecord. Sites
// are described declaratively by a CompetitorConfig and its Recipe; one
// SiteAdapter state machine drives every site.
package adapter

import (
	"context"
	"fmt"

	"github.com/jmylchreest/campwatch/internal/artifacts"
	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/internal/resilience"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// ErrDataInsufficient is returned with a record whose page loaded but held
// no usable prices.
var ErrDataInsufficient = resilience.ErrDataInsufficient

// Adapter scrapes one competitor. Scrape always returns a non-nil record;
// the error only carries the failure class for the resilience controller.
type Adapter interface {
	Name() string
	Config() model.CompetitorConfig
	Scrape(ctx context.Context, rc model.RunContext, attempt int) (*model.CompetitorRecord, error)
}

// Factory builds an adapter for cfg.
type Factory func(cfg model.CompetitorConfig, deps Deps) (Adapter, error)

// Deps are the shared resources adapters are built with.
type Deps struct {
	Browser fetcher.Fetcher
	HTTP    fetcher.Fetcher
	// Auto escalates from HTTP to the browser.
	Auto fetcher.Fetcher
	// Override, when set, serves every fetch regardless of kind (replay,
	// --http-only).
	Override fetcher.Fetcher

	Artifacts *artifacts.Store
	Metrics   *metrics.Metrics
}

// Driver returns the fetcher for kind.
func (d Deps) Driver(kind model.Kind) (fetcher.Fetcher, error) {
	if d.Override != nil {
		return d.Override, nil
	}

	var f fetcher.Fetcher
	switch kind {
	case model.KindBrowser:
		f = d.Browser
	case model.KindHTTP:
		f = d.HTTP
	case model.KindAuto:
		f = d.Auto
		if f == nil {
			f = d.HTTP
		}
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", kind)
	}
	if f == nil {
		return nil, fmt.Errorf("no %s driver available", kind)
	}
	return f, nil
}

// State is a step of the site adapter state machine.
type State int

const (
	StateInit State = iota
	StateNavigate
	StateChallengeClear
	StateConsentDismiss
	StateInteract
	StateCapture
	StateExtract
	StateNormalize
	StateEmit
	StateFailed
)

var stateNames = [...]string{
	StateInit:           "init",
	StateNavigate:       "navigate",
	StateChallengeClear: "challenge_clear",
	StateConsentDismiss: "consent_dismiss",
	StateInteract:       "interact",
	StateCapture:        "capture",
	StateExtract:        "extract",
	StateNormalize:      "normalize",
	StateEmit:           "emit",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// stageState maps a fetch stage onto its state.
func stageState(stage string) (State, bool) {
	switch stage {
	case fetcher.StageChallengeClear:
		return StateChallengeClear, true
	case fetcher.StageConsentDismiss:
		return StateConsentDismiss, true
	case fetcher.StageInteract:
		return StateInteract, true
	}
	return 0, false
}
