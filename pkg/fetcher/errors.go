package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, fetcher.ErrChallengePresented).
var (
	// ErrTimeout indicates the fetch or its navigation exceeded its budget.
	ErrTimeout = errors.New("timeout")
	// ErrNetwork indicates a connection-level failure.
	ErrNetwork = errors.New("network error")
	// ErrChallengePresented indicates an anti-bot challenge did not clear.
	ErrChallengePresented = errors.New("challenge presented")
	// ErrEmptyResponse indicates the page loaded without a body.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMalformedURL indicates the entry URL cannot be fetched at all.
	ErrMalformedURL = errors.New("malformed URL")
	// ErrDNS indicates the host does not resolve.
	ErrDNS = errors.New("host not found")
)

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// ValidateURL rejects URLs that can never be fetched.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrMalformedURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrMalformedURL, raw)
	}
	return nil
}

// ClassifyError maps transport-level failures onto the sentinel errors.
// Errors that already wrap a sentinel are returned unchanged; a status of
// 400 or more without a transport error becomes an *HTTPStatusError.
func ClassifyError(err error, targetURL string, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	for _, sentinel := range []error{ErrTimeout, ErrNetwork, ErrChallengePresented, ErrEmptyResponse, ErrMalformedURL, ErrDNS} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrDNS, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if statusCode >= 400 {
		return &HTTPStatusError{URL: targetURL, StatusCode: statusCode}
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed_out") || strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "err_name_not_resolved"):
		return fmt.Errorf("%w: %v", ErrDNS, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
