// Package resilience retries adapter invocations with exponential backoff,
// validates their records and guards each adapter with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

var (
	// ErrCircuitOpen is returned without invoking the adapter while its
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrInvalidResult marks a record that failed validation.
	ErrInvalidResult = errors.New("invalid result")
	// ErrDataInsufficient marks a page that loaded but yielded no usable
	// prices. It is final: retrying would load the same page.
	ErrDataInsufficient = errors.New("data insufficient")
)

// Class is the failure taxonomy that drives retry decisions.
type Class int

const (
	ClassOK Class = iota
	ClassTransient
	ClassBlocked
	ClassPermanent
	ClassDataInsufficient
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassBlocked:
		return "blocked"
	case ClassPermanent:
		return "permanent"
	case ClassDataInsufficient:
		return "data_insufficient"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (c Class) Retryable() bool {
	return c == ClassTransient || c == ClassBlocked
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}

	var perm *permanentError
	switch {
	case errors.Is(err, ErrDataInsufficient):
		return ClassDataInsufficient
	case errors.As(err, &perm),
		errors.Is(err, fetcher.ErrMalformedURL),
		errors.Is(err, fetcher.ErrDNS),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, context.Canceled):
		return ClassPermanent
	case errors.Is(err, fetcher.ErrChallengePresented),
		errors.Is(err, ErrCircuitOpen):
		return ClassBlocked
	}

	switch code := fetcher.StatusCode(err); {
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return ClassBlocked
	case code == http.StatusRequestTimeout:
		return ClassTransient
	case code >= 400 && code < 500:
		return ClassPermanent
	}
	return ClassTransient
}
