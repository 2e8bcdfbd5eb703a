package musiclink

import (
	"errors"
	"fmt"
)

var (
	// ErrResolver is the root of all resolution errors.
	ErrResolver = errors.New("resolver error")
	// ErrUnsupportedPlatform is returned when no resolver claims a query and the fallback search finds nothing.
	ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported platform", ErrResolver)
	// ErrTrackNotFound is returned when a resolver or matcher finds no eligible result.
	ErrTrackNotFound = fmt.Errorf("%w: track not found", ErrResolver)
)

// UnsupportedPlatformError names the query nothing could resolve.
type UnsupportedPlatformError struct {
	Query string
}

func (e *UnsupportedPlatformError) Error() string {
	return "no resolver for: " + e.Query
}

func (e *UnsupportedPlatformError) Unwrap() error {
	return ErrUnsupportedPlatform
}

// TrackNotFoundError carries the platform, query and cause of a failed resolution.
// Transport failures are wrapped here so they never reach callers raw.
type TrackNotFoundError struct {
	Platform string
	Query    string
	Reason   string
	Err      error
}

func (e *TrackNotFoundError) Error() string {
	msg := fmt.Sprintf("%s: track not found for %q: %s", e.Platform, e.Query, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrackNotFoundError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTrackNotFound}
	}
	return []error{ErrTrackNotFound, e.Err}
}

func notFound(platform, query, reason string, err error) error {
	return &TrackNotFoundError{Platform: platform, Query: query, Reason: reason, Err: err}
}
