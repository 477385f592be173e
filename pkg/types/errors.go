package types

import (
	"fmt"
	"time"
)

// ValidationError rejects a malformed filter value before any request is
// sent. Field names the offending filter key so the UI can surface the
// message next to the control.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filter %q: %s", e.Field, e.Reason)
}

// NetworkError marks a fetch that was refused, reset or answered with an
// error status. Status is 0 when no response arrived at all.
type NetworkError struct {
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError marks a fetch that exceeded its deadline. It is distinct from
// NetworkError so the retry affordance can offer a longer timeout.
type TimeoutError struct {
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch timed out after %s", e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ResponseShapeError marks a backend envelope that matched none of the known
// shapes. Callers degrade to an empty result set instead of failing the view.
type ResponseShapeError struct {
	Err error
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape: %v", e.Err)
}

func (e *ResponseShapeError) Unwrap() error { return e.Err }

// GeoCode classifies why a device position could not be obtained.
type GeoCode int

const (
	GeoPermissionDenied GeoCode = iota + 1
	GeoUnavailable
	GeoTimeout
)

func (c GeoCode) String() string {
	switch c {
	case GeoPermissionDenied:
		return "permission denied"
	case GeoUnavailable:
		return "position unavailable"
	case GeoTimeout:
		return "timed out"
	}
	return "unknown"
}

// GeolocationError is surfaced as a dismissible notice; browsing continues
// without distance data.
type GeolocationError struct {
	Code GeoCode
	Err  error
}

func (e *GeolocationError) Error() string {
	return fmt.Sprintf("geolocation %s", e.Code)
}

func (e *GeolocationError) Unwrap() error { return e.Err }
