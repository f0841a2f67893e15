package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/campwatch/internal/logger"
)

// HTTPConfig holds configuration for the HTTP fetcher.
type HTTPConfig struct {
	Timeout  time.Duration
	ProxyURL string

	// RequestsPerSecond throttles requests per host. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Transport replaces the collector's transport (tests install httpmock here).
	Transport http.RoundTripper

	// Detect reports the challenge kind of a page, or "". Without JavaScript
	// a challenge cannot clear, so a hit fails the fetch immediately.
	Detect func(title, html string) string
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             2,
	}
}

const limiterTableSize = 256

// HTTPFetcher uses Colly for server-rendered pages and JSON endpoints.
// It does not execute JavaScript; navigation steps are skipped.
type HTTPFetcher struct {
	config HTTPConfig

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewHTTP creates a new HTTP fetcher.
func NewHTTP(cfg HTTPConfig) (*HTTPFetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPConfig().Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limiters, err := lru.New[string, *rate.Limiter](limiterTableSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter table: %w", err)
	}
	return &HTTPFetcher{config: cfg, limiters: limiters}, nil
}

// limiter returns the per-host rate limiter, creating it on first use.
func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters.Get(host); ok {
		return l
	}
	limit := rate.Inf
	if f.config.RequestsPerSecond > 0 {
		limit = rate.Limit(f.config.RequestsPerSecond)
	}
	l := rate.NewLimiter(limit, f.config.Burst)
	f.limiters.Add(host, l)
	return l
}

// Fetch retrieves a page using Colly.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{
		URL:       req.URL,
		FinalURL:  req.URL,
		FetchedAt: start,
		Driver:    f.Type(),
	}
	defer func() { result.Duration = time.Since(start) }()

	if err := ValidateURL(req.URL); err != nil {
		return result, err
	}
	target, _ := url.Parse(req.URL)

	if err := f.limiter(target.Host).Wait(ctx); err != nil {
		return result, ClassifyError(err, req.URL, 0)
	}

	id := DefaultIdentity
	if req.Identity != nil {
		id = *req.Identity
	}

	c := colly.NewCollector(
		colly.UserAgent(coalesce(id.UserAgent, DefaultIdentity.UserAgent)),
		colly.StdlibContext(ctx),
	)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = f.config.Timeout
	}
	c.SetRequestTimeout(timeout)

	if f.config.ProxyURL != "" {
		if err := c.SetProxy(f.config.ProxyURL); err != nil {
			return result, fmt.Errorf("invalid proxy URL: %w", err)
		}
	}
	if f.config.Transport != nil {
		c.WithTransport(f.config.Transport)
	}

	extensions.Referer(c)
	headers := browserHeaders(id, req.URL)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	var fetchErr error
	var body []byte

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.FinalURL = r.Request.URL.String()
		body = r.Body
		logger.Debug("http fetch response received",
			"url", result.FinalURL,
			"status", r.StatusCode,
			"content_type", result.ContentType,
			"body_size", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.ContentType = r.Headers.Get("Content-Type")
			if r.Request != nil {
				result.FinalURL = r.Request.URL.String()
			}
			body = r.Body
		}
		fetchErr = err
		logger.Debug("http fetch error", "url", req.URL, "status", result.StatusCode, "error", err)
	})

	if len(req.Steps) > 0 {
		result.Note(fmt.Sprintf("http driver skipped %d navigation steps", len(req.Steps)))
	}

	logger.Debug("http fetch visiting URL", "url", req.URL, "identity", id.Name)
	if err := c.Visit(req.URL); err != nil && fetchErr == nil {
		fetchErr = err
	}

	result.Events = append(result.Events, f.documentEvent(req, result, body))

	if !IsJSONContentType(result.ContentType) {
		result.HTML = string(body)
	}

	if fetchErr != nil || result.StatusCode >= 400 {
		return result, ClassifyError(fetchErr, req.URL, result.StatusCode)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return result, fmt.Errorf("%w: %s", ErrEmptyResponse, req.URL)
	}

	if result.HTML != "" {
		result.Title = pageTitle(result.HTML)
		if f.config.Detect != nil {
			if challenge := f.config.Detect(result.Title, result.HTML); challenge != "" {
				logger.Warn("challenge page detected", "url", req.URL, "type", challenge, "driver", f.Type())
				return result, fmt.Errorf("%w: %s", ErrChallengePresented, challenge)
			}
		}
	}

	logger.Debug("http fetch complete",
		"url", req.URL,
		"final_url", result.FinalURL,
		"title", result.Title,
		"events", len(result.Events))

	return result, nil
}

// documentEvent records the top-level exchange. JSON bodies are kept when the
// request's interception predicate matches.
func (f *HTTPFetcher) documentEvent(req Request, result *Result, body []byte) NetworkEvent {
	ev := NetworkEvent{
		Seq:          0,
		Time:         time.Now(),
		Method:       http.MethodGet,
		URL:          result.FinalURL,
		ResourceType: "Document",
		Status:       result.StatusCode,
		MIMEType:     result.ContentType,
		BodySize:     len(body),
	}
	if IsJSONContentType(result.ContentType) && req.Intercept != nil && req.Intercept(result.FinalURL) {
		ev.Body = capBody(body, req.MaxBodySize)
	}
	return ev
}

// capBody returns body when it is valid JSON within the size cap.
func capBody(body []byte, max int64) []byte {
	if max > 0 && int64(len(body)) > max {
		return nil
	}
	if !json.Valid(body) {
		return nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

// pageTitle extracts the document title.
func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return cleanText(doc.Find("title").First().Text())
}

// visibleTextSample returns the whitespace-normalized body text without
// scripts and styles.
func visibleTextSample(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()
	return cleanText(doc.Find("body").Text())
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// cleanText normalizes whitespace in text.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
