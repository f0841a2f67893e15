// Package antibot detects anti-bot challenge pages, waits for them to clear,
// dismisses cookie/consent overlays and rotates browser identities.
package antibot

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ShortPageChars is the visible-text length under which weak markers count.
// Challenge interstitials carry little more than a spinner and a sentence.
const ShortPageChars = 1500

// strongMarker is conclusive wherever it appears.
type strongMarker struct {
	kind  string
	title []string
	html  []string
	text  []string
}

var strongMarkers = []strongMarker{
	{
		kind:  "cloudflare",
		title: []string{"just a moment", "attention required"},
		html:  []string{"cf-challenge", "cf_chl_opt", "/cdn-cgi/challenge-platform/"},
	},
	{
		kind: "cloudflare-turnstile",
		html: []string{"challenges.cloudflare.com/turnstile", "cf-turnstile"},
	},
	{
		kind: "datadome",
		html: []string{"geo.captcha-delivery.com", "ct.captcha-delivery.com"},
	},
	{
		kind: "perimeterx",
		html: []string{"px-captcha", "_pxcaptcha"},
	},
	{
		kind: "incapsula",
		text: []string{"incapsula incident id"},
	},
	{
		kind:  "anti-bot",
		title: []string{"access denied", "bot detection", "pardon our interruption"},
		text:  []string{"robot or human", "verify you are human", "are you a robot", "press & hold"},
	},
}

// weakMarkers only count on short pages; normal pages may mention them.
var weakMarkers = []struct {
	kind   string
	tokens []string
}{
	{"hcaptcha", []string{"hcaptcha.com", "h-captcha"}},
	{"recaptcha", []string{"google.com/recaptcha", "g-recaptcha"}},
	{"incapsula", []string{"_incapsula_resource"}},
	{"interstitial", []string{
		"verifying",
		"checking your browser",
		"checking if the site connection is secure",
		"enable javascript and cookies",
		"ddos protection",
		"one moment, please",
		"please wait while we",
	}},
}

// Detect returns the challenge kind shown by a page, or "" for a normal page.
// text is the page's visible text.
func Detect(title, text, html string) string {
	titleLower := strings.ToLower(title)
	textLower := strings.ToLower(text)
	htmlLower := strings.ToLower(html)

	for _, m := range strongMarkers {
		if containsAny(titleLower, m.title) || containsAny(htmlLower, m.html) || containsAny(textLower, m.text) {
			return m.kind
		}
	}

	if len(strings.TrimSpace(text)) >= ShortPageChars {
		return ""
	}
	for _, m := range weakMarkers {
		if containsAny(htmlLower, m.tokens) || containsAny(textLower, m.tokens) {
			return m.kind
		}
	}
	return ""
}

// DetectHTML runs Detect on raw markup, deriving the visible text itself.
func DetectHTML(title, html string) string {
	return Detect(title, VisibleText(html), html)
}

// VisibleText returns the whitespace-normalized body text of html without
// scripts, styles and other non-rendered elements.
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template, iframe, svg").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
