package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedHTTP(t *testing.T, transport *httpmock.MockTransport, detect func(string, string) string) *HTTPFetcher {
	t.Helper()
	cfg := DefaultHTTPConfig()
	cfg.RequestsPerSecond = 0
	cfg.Transport = transport
	cfg.Detect = detect
	f, err := NewHTTP(cfg)
	require.NoError(t, err)
	return f
}

func TestHTTPFetcher_SendsBrowserHeaders(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var got http.Header
	transport.RegisterResponder(http.MethodGet, "https://rentals.example.com/vans",
		func(req *http.Request) (*http.Response, error) {
			got = req.Header.Clone()
			return httpmock.NewStringResponse(200, "<html><head><title>Vans</title></head><body>from $95/day</body></html>"), nil
		})

	f := newMockedHTTP(t, transport, nil)
	id := DefaultIdentity
	id.AcceptLanguage = "de-DE,de;q=0.9"

	res, err := f.Fetch(context.Background(), Request{URL: "https://rentals.example.com/vans", Identity: &id})
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "Vans", res.Title)
	assert.Contains(t, res.HTML, "from $95/day")
	assert.Equal(t, "http", res.Driver)

	assert.Equal(t, id.UserAgent, got.Get("User-Agent"))
	assert.Equal(t, "de-DE,de;q=0.9", got.Get("Accept-Language"))
	assert.Equal(t, "https://rentals.example.com/", got.Get("Referer"))
	assert.Equal(t, "navigate", got.Get("Sec-Fetch-Mode"))
	assert.Equal(t, "document", got.Get("Sec-Fetch-Dest"))
	assert.True(t, strings.HasPrefix(got.Get("Accept"), "text/html"))
}

func TestHTTPFetcher_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodGet, "https://rentals.example.com/",
				httpmock.NewStringResponder(tt.status, "nope"))

			f := newMockedHTTP(t, transport, nil)
			res, err := f.Fetch(context.Background(), Request{URL: "https://rentals.example.com/"})
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.status, res.StatusCode)
		})
	}
}

func TestHTTPFetcher_CapturesInterceptedJSON(t *testing.T) {
	body := `{"results":[{"daily_price":85.5},{"daily_price":9999}]}`
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://api.example.com/v1/quotes",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, body)
			resp.Header.Set("Content-Type", "application/json; charset=utf-8")
			return resp, nil
		})

	f := newMockedHTTP(t, transport, nil)
	res, err := f.Fetch(context.Background(), Request{
		URL:       "https://api.example.com/v1/quotes",
		Intercept: func(u string) bool { return strings.Contains(u, "/quotes") },
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, "Document", ev.ResourceType)
	assert.Equal(t, 200, ev.Status)
	assert.True(t, ev.HasJSON())
	assert.JSONEq(t, body, string(ev.Body))
	assert.Empty(t, res.HTML, "JSON responses are not treated as HTML")
}

func TestHTTPFetcher_ChallengeDetected(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://rentals.example.com/",
		httpmock.NewStringResponder(200, "<html><head><title>Just a moment...</title></head><body>Verifying</body></html>"))

	detect := func(title, html string) string {
		if strings.Contains(strings.ToLower(title), "just a moment") {
			return "cloudflare"
		}
		return ""
	}
	f := newMockedHTTP(t, transport, detect)

	_, err := f.Fetch(context.Background(), Request{URL: "https://rentals.example.com/"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChallengePresented))
}

func TestHTTPFetcher_EmptyBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://rentals.example.com/",
		httpmock.NewStringResponder(200, "   "))

	f := newMockedHTTP(t, transport, nil)
	_, err := f.Fetch(context.Background(), Request{URL: "https://rentals.example.com/"})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestHTTPFetcher_MalformedURL(t *testing.T) {
	f := newMockedHTTP(t, httpmock.NewMockTransport(), nil)

	for _, raw := range []string{"ftp://rentals.example.com", "https://", "::nope"} {
		_, err := f.Fetch(context.Background(), Request{URL: raw})
		assert.True(t, errors.Is(err, ErrMalformedURL), raw)
	}
}

func TestHTTPFetcher_NotesSkippedSteps(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://rentals.example.com/",
		httpmock.NewStringResponder(200, "<html><body>ok</body></html>"))

	f := newMockedHTTP(t, transport, nil)
	res, err := f.Fetch(context.Background(), Request{
		URL:   "https://rentals.example.com/",
		Steps: []Step{{Action: ActionClick, Selector: "#search"}},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Notes, "http driver skipped 1 navigation steps")
}

func TestHTTPFetcher_LimiterPerHost(t *testing.T) {
	f := newMockedHTTP(t, httpmock.NewMockTransport(), nil)

	a := f.limiter("a.example.com")
	assert.Same(t, a, f.limiter("a.example.com"))
	assert.NotSame(t, a, f.limiter("b.example.com"))
}

func TestIsJSONContentType(t *testing.T) {
	assert.True(t, IsJSONContentType("application/json"))
	assert.True(t, IsJSONContentType("application/json; charset=utf-8"))
	assert.True(t, IsJSONContentType("application/vnd.api+json"))
	assert.False(t, IsJSONContentType("text/html"))
	assert.False(t, IsJSONContentType(""))
}
