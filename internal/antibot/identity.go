package antibot

import (
	"sync/atomic"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// DefaultIdentities are desktop personas with consistent user agent,
// platform and viewport.
var DefaultIdentities = []fetcher.Identity{
	fetcher.DefaultIdentity,
	{
		Name:           "chrome-macos",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage: "en-GB,en;q=0.9",
		Platform:       "MacIntel",
		Width:          1440,
		Height:         900,
	},
	{
		Name:           "chrome-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "Linux x86_64",
		Width:          1366,
		Height:         768,
	},
	{
		Name:           "edge-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		AcceptLanguage: "en-US,en;q=0.9,de;q=0.8",
		Platform:       "Win32",
		Width:          1536,
		Height:         864,
	},
}

// Rotator hands out identities round-robin. It is safe for concurrent use.
type Rotator struct {
	identities []fetcher.Identity
	next       atomic.Uint64
}

// NewRotator creates a rotator over ids, or DefaultIdentities when empty.
func NewRotator(ids []fetcher.Identity) *Rotator {
	if len(ids) == 0 {
		ids = DefaultIdentities
	}
	return &Rotator{identities: ids}
}

// Next returns the next identity.
func (r *Rotator) Next() fetcher.Identity {
	n := r.next.Add(1) - 1
	return r.identities[n%uint64(len(r.identities))]
}
