package fetcher

import (
	"net/url"
)

// Chrome user agent for better compatibility
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultIdentity is used when a request carries none.
var DefaultIdentity = Identity{
	Name:           "chrome-windows",
	UserAgent:      defaultUserAgent,
	AcceptLanguage: "en-US,en;q=0.9",
	Platform:       "Win32",
	Width:          1920,
	Height:         1080,
}

// browserHeaders returns the headers a desktop Chrome sends for a top-level
// navigation that was reached from the site's own landing page.
func browserHeaders(id Identity, target string) map[string]string {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           coalesce(id.AcceptLanguage, DefaultIdentity.AcceptLanguage),
		"Cache-Control":             "max-age=0",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		headers["Referer"] = u.Scheme + "://" + u.Host + "/"
		headers["Sec-Fetch-Site"] = "same-origin"
	}
	return headers
}
