package antibot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// fakePage replays a sequence of snapshots; the last one repeats.
type fakePage struct {
	mu        sync.Mutex
	snapshots []Snapshot
	calls     int

	selectors map[string]bool
	buttons   []string
	overlay   bool
	escaped   bool
	clicked   []string
}

func (p *fakePage) Snapshot(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	p.calls++
	return p.snapshots[i], nil
}

func (p *fakePage) ClickSelector(ctx context.Context, selector string) (bool, error) {
	if p.selectors[selector] {
		p.clicked = append(p.clicked, selector)
		return true, nil
	}
	return false, nil
}

func (p *fakePage) ClickButtonWithText(ctx context.Context, tokens []string) (string, error) {
	for _, b := range p.buttons {
		for _, tok := range tokens {
			if strings.Contains(strings.ToLower(b), tok) {
				p.clicked = append(p.clicked, b)
				return b, nil
			}
		}
	}
	return "", nil
}

func (p *fakePage) OverlayPresent(ctx context.Context) (bool, error) { return p.overlay, nil }

func (p *fakePage) PressEscape(ctx context.Context) error {
	p.escaped = true
	return nil
}

var (
	challengeSnap = Snapshot{Title: "Just a moment...", Text: "Verifying you are human. This may take a few seconds.", HTML: `<html><body><div id="cf-challenge-running"></div></body></html>`}
	contentSnap   = Snapshot{Title: "Campervan hire", Text: "Compact van from $95/day. Family motorhome $120/day.", HTML: "<html><body>Compact van from $95/day</body></html>"}
)

func fastMediator() *Mediator {
	return New(Config{PollInterval: 5 * time.Millisecond, Budget: 60 * time.Millisecond})
}

// --- Detection Tests ---

func TestDetect(t *testing.T) {
	long := strings.Repeat("Campervan rentals across Europe with unlimited mileage. ", 40)

	tests := []struct {
		name  string
		title string
		text  string
		html  string
		want  string
	}{
		{"cloudflare title", "Just a moment...", "", "", "cloudflare"},
		{"challenge platform token", "Rentals", long, `<script src="/cdn-cgi/challenge-platform/h/b/orchestrate"></script>`, "cloudflare"},
		{"turnstile", "", "", `<div class="cf-turnstile"></div>`, "cloudflare-turnstile"},
		{"datadome", "", "", `<iframe src="https://geo.captcha-delivery.com/captcha/"></iframe>`, "datadome"},
		{"human check text", "Rentals", "Please verify you are human to continue", "", "anti-bot"},
		{"short verifying page", "Rentals", "Verifying...", "", "interstitial"},
		{"long page mentioning verifying", "Rentals", long + " verifying your licence at pickup", "", ""},
		{"recaptcha on a long booking form", "Book", long, `<div class="g-recaptcha"></div>`, ""},
		{"recaptcha on a short page", "Blocked?", "Complete the check", `<div class="g-recaptcha"></div>`, "recaptcha"},
		{"normal page", "Campervan hire", "Compact van from $95/day", "<html></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.title, tt.text, tt.html))
		})
	}
}

func TestDetectHTML(t *testing.T) {
	html := `<html><head><title>Hold on</title><script>var verifying = 1;</script></head><body><p>Checking your browser before accessing the site.</p></body></html>`
	assert.Equal(t, "interstitial", DetectHTML("Hold on", html))
	assert.Equal(t, "Checking your browser before accessing the site.", VisibleText(html))
}

// --- Clearance Tests ---

func TestAwaitClearance_NoChallenge(t *testing.T) {
	p := &fakePage{snapshots: []Snapshot{contentSnap}}

	c, err := fastMediator().AwaitClearance(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, c.Kind)
	assert.Equal(t, 1, p.calls)
}

func TestAwaitClearance_Clears(t *testing.T) {
	p := &fakePage{snapshots: []Snapshot{challengeSnap, challengeSnap, contentSnap}}

	c, err := fastMediator().AwaitClearance(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "cloudflare", c.Kind)
	assert.True(t, c.Cleared)
	assert.Equal(t, 2, c.Polls)
}

func TestAwaitClearance_BudgetExhausted(t *testing.T) {
	p := &fakePage{snapshots: []Snapshot{challengeSnap}}

	c, err := fastMediator().AwaitClearance(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetcher.ErrChallengePresented))
	assert.False(t, c.Cleared)
	assert.Greater(t, c.Polls, 0)
}

func TestAwaitClearance_ContextCancelled(t *testing.T) {
	p := &fakePage{snapshots: []Snapshot{challengeSnap}}
	m := New(Config{PollInterval: 5 * time.Millisecond, Budget: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.AwaitClearance(ctx, p)
	assert.True(t, errors.Is(err, fetcher.ErrTimeout))
}

// --- Consent Tests ---

func TestDismissConsent_Layers(t *testing.T) {
	t.Run("selector wins first", func(t *testing.T) {
		p := &fakePage{
			selectors: map[string]bool{"#didomi-notice-agree-button": true},
			buttons:   []string{"Accept all"},
			overlay:   true,
		}
		got := fastMediator().DismissConsent(context.Background(), p)
		assert.Equal(t, "selector #didomi-notice-agree-button", got)
		assert.Equal(t, []string{"#didomi-notice-agree-button"}, p.clicked)
		assert.False(t, p.escaped)
	})

	t.Run("button text second", func(t *testing.T) {
		p := &fakePage{buttons: []string{"Manage options", "Alle akzeptieren"}, overlay: true}
		got := fastMediator().DismissConsent(context.Background(), p)
		assert.Equal(t, "button Alle akzeptieren", got)
		assert.False(t, p.escaped)
	})

	t.Run("escape last", func(t *testing.T) {
		p := &fakePage{overlay: true}
		got := fastMediator().DismissConsent(context.Background(), p)
		assert.Equal(t, "escape", got)
		assert.True(t, p.escaped)
	})

	t.Run("nothing to dismiss", func(t *testing.T) {
		p := &fakePage{}
		assert.Empty(t, fastMediator().DismissConsent(context.Background(), p))
		assert.False(t, p.escaped)
	})
}

// --- Identity Tests ---

func TestRotator(t *testing.T) {
	r := NewRotator(nil)
	seen := make(map[string]int)
	for i := 0; i < 2*len(DefaultIdentities); i++ {
		id := r.Next()
		assert.NotEmpty(t, id.UserAgent)
		assert.NotZero(t, id.Width)
		seen[id.Name]++
	}
	assert.Len(t, seen, len(DefaultIdentities))
	for name, n := range seen {
		assert.Equal(t, 2, n, name)
	}
}
