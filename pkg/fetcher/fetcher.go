// Package fetcher defines the fetch contract shared by the browser and HTTP
// drivers. A fetch retrieves a page, runs an optional navigation recipe and
// returns the rendered DOM, final URL, status and captured network events.
package fetcher

import (
	"context"
	"encoding/json"
	"mime"
	"strings"
	"time"
)

// Fetcher abstracts page fetching strategies.
type Fetcher interface {
	// Fetch retrieves a page. On failure the returned Result may still carry
	// partial data (status, HTML of a challenge page) alongside the error.
	Fetch(ctx context.Context, req Request) (*Result, error)

	// Close releases any resources (browser instances, etc.).
	Close() error

	// Type returns a string identifying the driver (e.g., "http", "browser").
	Type() string
}

// StepAction is a navigation recipe verb.
type StepAction string

const (
	ActionClick        StepAction = "click"
	ActionFill         StepAction = "fill"
	ActionWaitSelector StepAction = "wait_selector"
	ActionWaitIdle     StepAction = "wait_idle"
	ActionPress        StepAction = "press"
)

// Step is one {locate, act} pair of a navigation recipe. Steps never fail a
// fetch: a missing element is reported in Result.Notes and skipped.
type Step struct {
	Action   StepAction    `yaml:"action" json:"action" validate:"required,oneof=click fill wait_selector wait_idle press"`
	Selector string        `yaml:"selector" json:"selector,omitempty"`
	Value    string        `yaml:"value" json:"value,omitempty"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// Identity is the browser persona presented to a site.
type Identity struct {
	Name           string
	UserAgent      string
	AcceptLanguage string
	Platform       string
	Width          int
	Height         int
}

// Request describes one fetch.
type Request struct {
	// Adapter names the competitor the fetch is made for. It keys reused
	// browser sessions and replayed artifacts.
	Adapter string
	URL     string

	Steps        []Step
	WaitSelector string

	// Intercept selects network responses whose JSON bodies are captured.
	// Nil captures none.
	Intercept func(url string) bool

	Identity   *Identity
	Timeout    time.Duration
	IdleBudget time.Duration

	// ArtifactDir, when set, receives the browser screenshot.
	ArtifactDir string

	// Session reuses a browser context across fetches with the same key.
	Session string

	// MaxBodySize caps intercepted JSON bodies held in memory. Zero keeps all.
	MaxBodySize int64
}

// Stages a fetch may pass through after navigation.
const (
	StageChallengeClear = "challenge_clear"
	StageConsentDismiss = "consent_dismiss"
	StageInteract       = "interact"
)

// Result represents fetched page data.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	HTML        string
	Title       string

	Events []NetworkEvent

	ScreenshotPath string
	HTMLPath       string

	Driver    string
	Stages    []string
	Notes     []string
	FetchedAt time.Time
	Duration  time.Duration
}

// Note appends a fetch note.
func (r *Result) Note(msg string) {
	r.Notes = append(r.Notes, msg)
}

// NetworkEvent is a request/response pair observed during a fetch. Events
// keep arrival order; Seq is the arrival index.
type NetworkEvent struct {
	Seq          int             `json:"seq"`
	Time         time.Time       `json:"time"`
	Method       string          `json:"method"`
	URL          string          `json:"url"`
	ResourceType string          `json:"resource_type,omitempty"`
	Status       int             `json:"status"`
	MIMEType     string          `json:"mime_type,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	BodySize     int             `json:"body_size,omitempty"`
}

// HasJSON reports whether the event carries a decoded JSON body.
func (e NetworkEvent) HasJSON() bool {
	return len(e.Body) > 0 && json.Valid(e.Body)
}

// IsJSONContentType reports whether a Content-Type header names JSON.
func IsJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json") || mt == "text/json"
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
