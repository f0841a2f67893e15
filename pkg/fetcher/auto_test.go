package fetcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	kind  string
	res   *Result
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	s.calls++
	return s.res, s.err
}

func (s *stubFetcher) Close() error { return nil }
func (s *stubFetcher) Type() string { return s.kind }

func TestAutoFetcher_Escalation(t *testing.T) {
	tests := []struct {
		name         string
		httpRes      *Result
		httpErr      error
		wantBrowser  bool
		wantReasonIn string
	}{
		{
			name:    "server rendered page stays on http",
			httpRes: &Result{HTML: "<html><body><h1>Campervans from €89 per night</h1><p>" + longText + "</p></body></html>"},
		},
		{
			name:         "empty spa shell escalates",
			httpRes:      &Result{HTML: `<html><body><div id="root"></div></body></html>`},
			wantBrowser:  true,
			wantReasonIn: "javascript",
		},
		{
			name:         "challenge escalates",
			httpErr:      fmt.Errorf("%w: cloudflare", ErrChallengePresented),
			wantBrowser:  true,
			wantReasonIn: "challenge",
		},
		{
			name:         "forbidden escalates",
			httpErr:      &HTTPStatusError{URL: "https://x.example", StatusCode: 403},
			wantBrowser:  true,
			wantReasonIn: "403",
		},
		{
			name:    "not found does not escalate",
			httpErr: &HTTPStatusError{URL: "https://x.example", StatusCode: 404},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &stubFetcher{kind: "http", res: tt.httpRes, err: tt.httpErr}
			b := &stubFetcher{kind: "browser", res: &Result{Driver: "browser"}}
			f := NewAuto(h, b)

			res, _ := f.Fetch(context.Background(), Request{URL: "https://x.example"})
			assert.Equal(t, 1, h.calls)
			if !tt.wantBrowser {
				assert.Equal(t, 0, b.calls)
				return
			}
			assert.Equal(t, 1, b.calls)
			require.NotNil(t, res)
			require.NotEmpty(t, res.Notes)
			assert.Contains(t, res.Notes[0], tt.wantReasonIn)
		})
	}
}

func TestAutoFetcher_NoBrowser(t *testing.T) {
	h := &stubFetcher{kind: "http", res: &Result{HTML: `<div id="app"></div>`}}
	f := NewAuto(h, nil)

	res, err := f.Fetch(context.Background(), Request{URL: "https://x.example"})
	require.NoError(t, err)
	assert.Contains(t, res.Notes[0], "browser escalation unavailable")
}

func TestNeedsJavaScript(t *testing.T) {
	assert.True(t, needsJavaScript(`<html><body><div id="__next"></div></body></html>`))
	assert.True(t, needsJavaScript(`<html><body>Loading...</body></html>`))
	assert.True(t, needsJavaScript(`<html><body><noscript>Please enable JavaScript to continue</noscript><p>`+longText+`</p></body></html>`))
	assert.False(t, needsJavaScript(`<html><body><p>`+longText+`</p></body></html>`))
}

const longText = "Our fleet of campervans covers every budget. Book a two berth van for a weekend " +
	"escape or a six berth motorhome for a family road trip. All rentals include unlimited kilometres, " +
	"roadside assistance and a fully equipped kitchen."
