package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmylchreest/campwatch/internal/logger"
)

// AutoFetcher fetches over HTTP first and escalates to the browser when the
// response is a challenge, is blocked, or needs JavaScript to render.
type AutoFetcher struct {
	http    Fetcher
	browser Fetcher
}

// NewAuto creates an escalating fetcher. browser may be nil, in which case
// HTTP results are returned as they are.
func NewAuto(httpFetcher, browserFetcher Fetcher) *AutoFetcher {
	return &AutoFetcher{http: httpFetcher, browser: browserFetcher}
}

// Fetch tries HTTP, then falls back to the browser if needed.
func (f *AutoFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	res, err := f.http.Fetch(ctx, req)

	reason := escalationReason(res, err)
	if reason == "" {
		return res, err
	}
	if f.browser == nil {
		if res != nil {
			res.Note("browser escalation unavailable: " + reason)
		}
		return res, err
	}

	logger.Debug("escalating fetch to browser", "url", req.URL, "reason", reason)
	bres, berr := f.browser.Fetch(ctx, req)
	if bres != nil {
		bres.Notes = append([]string{"escalated to browser: " + reason}, bres.Notes...)
	}
	return bres, berr
}

// escalationReason returns why an HTTP result should be refetched in the
// browser, or "" when it should be kept.
func escalationReason(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrChallengePresented):
		return "challenge page"
	case errors.Is(err, ErrEmptyResponse):
		return "empty response"
	}
	if code := StatusCode(err); code == http.StatusForbidden || code == http.StatusTooManyRequests {
		return fmt.Sprintf("blocked with status %d", code)
	}
	if err != nil || res == nil {
		return ""
	}
	if res.HTML != "" && needsJavaScript(res.HTML) {
		return "page requires javascript"
	}
	return ""
}

// needsJavaScript checks if a page appears to require JS rendering.
func needsJavaScript(html string) bool {
	lower := strings.ToLower(html)

	// SPA mount points left empty by the server
	spaMarkers := []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		`<app-root></app-root>`,
		`<div id="__next"></div>`,
		`<div id="__nuxt"></div>`,
		"v-cloak",
	}
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	text := strings.ToLower(visibleTextSample(html))
	if len(text) < 200 {
		for _, indicator := range []string{"loading", "please wait", "javascript required", "enable javascript"} {
			if strings.Contains(text, indicator) {
				return true
			}
		}
	}

	if noscript := extractBetween(lower, "<noscript>", "</noscript>"); noscript != "" {
		for _, indicator := range []string{"enable javascript", "javascript is required", "javascript is disabled"} {
			if strings.Contains(noscript, indicator) {
				return true
			}
		}
	}

	return false
}

// extractBetween extracts content between two markers.
func extractBetween(s, start, end string) string {
	startIdx := strings.Index(s, start)
	if startIdx == -1 {
		return ""
	}
	startIdx += len(start)

	endIdx := strings.Index(s[startIdx:], end)
	if endIdx == -1 {
		return ""
	}

	return s[startIdx : startIdx+endIdx]
}

// Close releases both drivers.
func (f *AutoFetcher) Close() error {
	var errs []error
	if f.http != nil {
		errs = append(errs, f.http.Close())
	}
	if f.browser != nil {
		errs = append(errs, f.browser.Close())
	}
	return errors.Join(errs...)
}

// Type returns the fetcher type.
func (f *AutoFetcher) Type() string {
	return "auto"
}
